// Package render implements the TN3270 Screen Renderer (spec §4.8):
// stateful execution of a compiled template program against an
// 80x24 cell buffer, producing a 3270 data stream.
package render

import (
	"github.com/carles-abarca/NEO6/internal/tn3270"
)

const (
	Rows = 24
	Cols = 80

	orderSBA = 0x11
	orderSF  = 0x1D

	// orderSA is the 3270 Set Attribute order: a type/value pair that
	// takes effect at the current buffer address and holds for every
	// character written after it, independent of field boundaries,
	// until the next SA for that type (IBM 3270 Data Stream, Extended
	// Attributes). The renderer emits it to carry the markup attribute
	// stack's composed color and highlighting onto the wire.
	orderSA = 0x28

	saTypeColor     = 0xC0
	saTypeHighlight = 0x41

	// wcc is a fixed write-control character: reset-MDT, unlock
	// keyboard, no sound alarm. The proxy only ever emits one screen
	// per render, so a single static WCC covers every case spec §4.8
	// names (full WCC semantics belong to the wire plugin).
	wcc = 0xC3
)

// Cell is one position in the 80x24 buffer: its transcoded character
// byte, the 3270 field attribute byte in force when it was written
// (non-zero only for a field's attribute-byte cell), and the composed
// markup color/highlight in force at that position (spec §3, "the
// active attribute stack is maintained during rendering"; §4.8 cursor
// state "(row, col, attrs)"). Color and Highlight are zero when no
// [COLOR]/[BRIGHT]/[BLINK]/[UNDERLINE] markup is active.
type Cell struct {
	Char      byte
	Attr      byte
	Color     byte
	Highlight byte
}

// Screen is the rendered result: the cell buffer, the cursor's final
// resting position, a copy of the field index (for the Field
// Manager), and the emitted wire bytes.
type Screen struct {
	Buffer     [Rows * Cols]Cell
	CursorRow  int
	CursorCol  int
	Fields     map[string]tn3270.FieldSpan
	DataStream []byte
	Warnings   int
}

type cursor struct {
	row, col int
}

func (c cursor) linear() int { return (c.row-1)*Cols + (c.col - 1) }

// attrStack mirrors the template compiler's own open/close tracking
// (internal/tn3270/compiler) during rendering: colors replace one
// another (at most one active), while BRIGHT/BLINK/UNDERLINE stack
// independently of color and of each other (spec §3). The compiler
// already rejects unbalanced tags at compile time, so pop can assume
// well-formed LIFO nesting.
type attrStack struct {
	entries []tn3270.Attr
}

func (s *attrStack) push(a tn3270.Attr) { s.entries = append(s.entries, a) }

func (s *attrStack) pop() {
	if len(s.entries) > 0 {
		s.entries = s.entries[:len(s.entries)-1]
	}
}

// color returns the topmost active color attribute's SA value, or 0
// (default) if none is active.
func (s *attrStack) color() byte {
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].IsColor() {
			return colorValue(s.entries[i])
		}
	}
	return 0
}

// highlight returns the combined SA highlighting value for whichever
// of BRIGHT/BLINK/UNDERLINE are currently active. 3270 extended
// highlighting carries a single value per position, so nested
// modifiers collapse to the strongest one present, in the fixed
// precedence blink > underline > bright > none.
func (s *attrStack) highlight() byte {
	var bright, blink, underline bool
	for _, a := range s.entries {
		switch a {
		case tn3270.AttrBright:
			bright = true
		case tn3270.AttrBlink:
			blink = true
		case tn3270.AttrUnderline:
			underline = true
		}
	}
	switch {
	case blink:
		return 0xF1
	case underline:
		return 0xF4
	case bright:
		return 0xF8
	default:
		return 0
	}
}

func colorValue(a tn3270.Attr) byte {
	switch a {
	case tn3270.AttrBlue:
		return 0xF1
	case tn3270.AttrRed:
		return 0xF2
	case tn3270.AttrPink:
		return 0xF3
	case tn3270.AttrGreen:
		return 0xF4
	case tn3270.AttrTurquoise:
		return 0xF5
	case tn3270.AttrYellow:
		return 0xF6
	case tn3270.AttrWhite:
		return 0xF7
	default: // AttrDefault
		return 0
	}
}

// Render executes prog against a fresh buffer and returns the
// resulting Screen.
func Render(prog *tn3270.CompiledProgram) *Screen {
	s := &Screen{Fields: prog.Fields}
	for i := range s.Buffer {
		s.Buffer[i] = Cell{Char: cp037[0x20]} // EBCDIC space
	}

	cur := cursor{row: 1, col: 1}
	lastEmitted := -1 // linear address the data stream's cursor is currently at; -1 forces an initial SBA
	s.DataStream = append(s.DataStream, wcc)

	var attrs attrStack
	var wireColor, wireHighlight byte // last SA values actually written to the data stream

	emitSBA := func() {
		addr := encodeAddress12(cur.linear())
		s.DataStream = append(s.DataStream, orderSBA, addr[0], addr[1])
		lastEmitted = cur.linear()
	}

	advance := func(n int) {
		total := cur.linear() + n
		total = ((total % (Rows * Cols)) + Rows*Cols) % (Rows * Cols)
		cur.row, cur.col = total/Cols+1, total%Cols+1
	}

	for _, op := range prog.Ops {
		switch op.Kind {
		case tn3270.OpMoveTo:
			cur.row, cur.col = op.Row, op.Col
		case tn3270.OpMoveCol:
			cur.col = op.Col
		case tn3270.OpMoveRow:
			cur.row = op.Row
		case tn3270.OpPushAttr:
			attrs.push(op.Attr)
		case tn3270.OpPopAttr:
			attrs.pop()

		case tn3270.OpText:
			if cur.linear() != lastEmitted {
				emitSBA()
			}
			color, highlight := attrs.color(), attrs.highlight()
			if color != wireColor {
				s.DataStream = append(s.DataStream, orderSA, saTypeColor, color)
				wireColor = color
			}
			if highlight != wireHighlight {
				s.DataStream = append(s.DataStream, orderSA, saTypeHighlight, highlight)
				wireHighlight = highlight
			}
			bytes, warn := toEBCDIC(op.Text)
			s.Warnings += warn
			for _, b := range bytes {
				s.Buffer[cur.linear()] = Cell{Char: b, Color: color, Highlight: highlight}
				s.DataStream = append(s.DataStream, b)
				advance(1)
			}
			lastEmitted = cur.linear()

		case tn3270.OpBeginField:
			attrByte := fieldAttrByte(op.FieldAttrs)
			s.Buffer[cur.linear()] = Cell{Attr: attrByte}
			addr := encodeAddress12(cur.linear())
			s.DataStream = append(s.DataStream, orderSBA, addr[0], addr[1], orderSF, attrByte)
			advance(1)
			lastEmitted = cur.linear()

		case tn3270.OpEndField:
			// no buffer effect; field content between BeginField/EndField
			// has already been written by nested ops. The field reserves
			// exactly Length cells, as in the compiler's cursor model.
			if span, ok := s.Fields[op.FieldName]; ok {
				advance(span.Start + span.Length - cur.linear())
			}
		}
	}

	s.CursorRow, s.CursorCol = cur.row, cur.col
	return s
}

// fieldAttrByte encodes FieldAttrs into a simplified 3270 attribute
// byte: protected, numeric, and non-display (hidden) bits. Highlight
// and color for a field's own content are carried separately by the
// active markup attribute stack (see attrStack), not by this byte.
// The modified-data-tag bit is always 0 at render time — it is set by
// the terminal on input, not by the screen program.
func fieldAttrByte(attrs tn3270.FieldAttrs) byte {
	var b byte
	if attrs.Protected {
		b |= 0x20
	}
	if attrs.Numeric {
		b |= 0x10
	}
	if attrs.Hidden {
		b |= 0x0C // non-display
	}
	return b
}
