package tcp

import (
	"encoding/json"
	"io"

	"github.com/carles-abarca/NEO6/internal/errors"
	"github.com/carles-abarca/NEO6/internal/router"
)

// encodeEnvelope builds the JSON payload both framings carry: either a
// successful router.Response or an error Response, never both.
func encodeEnvelope(resp router.Response, perr *errors.ProxyError) ([]byte, error) {
	if perr != nil {
		return json.Marshal(perr.ToResponse())
	}
	return json.Marshal(resp)
}

func (l *Listener) replyBinary(w io.Writer, version uint16, txID string, resp router.Response, perr *errors.ProxyError) error {
	body, err := encodeEnvelope(resp, perr)
	if err != nil {
		return err
	}
	return writeBinaryFrame(w, version, txID, body)
}

func (l *Listener) replyBinaryError(w io.Writer, version uint16, txID string, perr *errors.ProxyError) {
	body, err := json.Marshal(perr.ToResponse())
	if err != nil {
		return
	}
	_ = writeBinaryFrame(w, version, txID, body)
}

func (l *Listener) replyText(w io.Writer, version int, txID string, resp router.Response, perr *errors.ProxyError) error {
	body, err := encodeEnvelope(resp, perr)
	if err != nil {
		return err
	}
	return writeTextFrame(w, version, txID, string(body))
}

func (l *Listener) replyTextError(w io.Writer, version int, txID string, perr *errors.ProxyError) {
	body, err := json.Marshal(perr.ToResponse())
	if err != nil {
		return
	}
	_ = writeTextFrame(w, version, txID, string(body))
}
