// Package fields implements the TN3270 Field Manager (spec §4.9): it
// decodes an inbound terminal data stream's MDT-flagged fields against
// a session's compiled screen, applies per-field attribute rules, and
// emits a validated name->value map for the Router.
package fields

import (
	"strings"

	"github.com/carles-abarca/NEO6/internal/errors"
	"github.com/carles-abarca/NEO6/internal/logger"
	"github.com/carles-abarca/NEO6/internal/tn3270"
	"github.com/carles-abarca/NEO6/internal/tn3270/render"
)

const orderSBA = 0x11

// State is one field's current value as tracked across a session.
type State struct {
	Value string
	Dirty bool
}

// Manager holds per-session field state for one compiled screen.
type Manager struct {
	fields map[string]tn3270.FieldSpan
	states map[string]State
}

// NewManager builds a Manager over screen's field index. All field
// values start empty and clean.
func NewManager(screen *render.Screen) *Manager {
	m := &Manager{fields: screen.Fields, states: make(map[string]State, len(screen.Fields))}
	for name := range screen.Fields {
		m.states[name] = State{}
	}
	return m
}

// ApplyInboundStream decodes data (the AID byte followed by repeated
// [SBA addr][EBCDIC bytes] runs, as a conformant 3270 terminal would
// send for its MDT-flagged fields) and returns the validated
// name->value map for every field whose data arrived.
func (m *Manager) ApplyInboundStream(data []byte) (map[string]interface{}, error) {
	if len(data) == 0 {
		return map[string]interface{}{}, nil
	}

	i := 1 // skip the AID byte
	runs := map[int][]byte{}
	for i < len(data) {
		if data[i] != orderSBA || i+2 >= len(data) {
			break
		}
		addr := render.DecodeAddress12(data[i+1], data[i+2])
		i += 3

		start := i
		for i < len(data) && data[i] != orderSBA {
			i++
		}
		runs[addr] = data[start:i]
	}

	out := make(map[string]interface{}, len(runs))
	log := logger.TN3270()

	for addr, raw := range runs {
		span, name := m.fieldContaining(addr)
		if name == "" {
			continue // data landed outside any known field; ignore
		}

		value := render.FromEBCDIC(raw)
		value, err := m.applyRules(span, value)
		if err != nil {
			return nil, err
		}
		if span.Attrs.Protected {
			continue // input discarded; applyRules kept the stored value
		}

		if span.Attrs.Hidden {
			log.Debug().Str("field", name).Msg("hidden field updated")
		} else {
			log.Debug().Str("field", name).Str("value", value).Msg("field updated")
		}

		m.states[name] = State{Value: value, Dirty: true}
		out[name] = value
	}

	return out, nil
}

func (m *Manager) fieldContaining(addr int) (tn3270.FieldSpan, string) {
	for name, span := range m.fields {
		if addr >= span.Start && addr < span.Start+span.Length {
			return span, name
		}
	}
	return tn3270.FieldSpan{}, ""
}

// applyRules enforces uppercase/numeric/length/protected semantics
// (spec §4.9) and returns the post-validation value.
func (m *Manager) applyRules(span tn3270.FieldSpan, value string) (string, error) {
	if span.Attrs.Protected {
		logger.TN3270().Warn().Str("field", span.Name).Msg("discarding input to a protected field")
		return m.states[span.Name].Value, nil
	}

	if span.Attrs.Uppercase {
		value = strings.ToUpper(value)
	}

	if span.Attrs.Numeric {
		for _, r := range value {
			if r < '0' || r > '9' {
				return "", errors.New(errors.CodeFieldNonNumeric, "field "+span.Name+" requires numeric input").WithField(span.Name)
			}
		}
	}

	if span.Attrs.Length > 0 && len(value) > span.Attrs.Length {
		value = value[:span.Attrs.Length]
	}

	return value, nil
}

// Snapshot returns a copy of every field's current state.
func (m *Manager) Snapshot() map[string]State {
	out := make(map[string]State, len(m.states))
	for k, v := range m.states {
		out[k] = v
	}
	return out
}

