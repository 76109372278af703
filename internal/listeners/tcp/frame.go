package tcp

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// binaryHeaderSize is the fixed portion of a binary frame that counts
// toward its length prefix: the 4-byte length field itself, a 2-byte
// version, and an 8-byte space-padded transaction id (spec §4.6).
const binaryHeaderSize = 4 + 2 + 8

// txIDFieldSize is the fixed width of the transaction_id field.
const txIDFieldSize = 8

// sniffMode inspects the connection's first byte without consuming it
// to decide binary vs. text framing (spec §4.6: "non-ASCII → binary").
// Printable ASCII (the 'N' of a "NEO6|" text frame) selects text mode;
// anything else, including the high-order zero byte of a binary
// length prefix, selects binary mode.
func sniffMode(r *bufio.Reader) (textMode bool, err error) {
	b, err := r.Peek(1)
	if err != nil {
		return false, err
	}
	return b[0] >= 0x20 && b[0] < 0x7f, nil
}

// binaryFrame is one decoded legacy-framed message.
type binaryFrame struct {
	Version uint16
	TxID    string
	Payload []byte
}

// readBinaryFrame decodes [length:u32 BE][version:u16 BE][transaction_id:8
// bytes][payload]. length counts itself plus every field that follows,
// so payload is length-binaryHeaderSize bytes.
func readBinaryFrame(r io.Reader) (binaryFrame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return binaryFrame{}, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < binaryHeaderSize {
		return binaryFrame{}, fmt.Errorf("tcp frame length %d shorter than header %d", length, binaryHeaderSize)
	}

	rest := make([]byte, length-4)
	if _, err := io.ReadFull(r, rest); err != nil {
		return binaryFrame{}, err
	}

	version := binary.BigEndian.Uint16(rest[0:2])
	txID := strings.TrimSpace(string(rest[2:10]))
	payload := rest[10:]

	return binaryFrame{Version: version, TxID: txID, Payload: payload}, nil
}

// writeBinaryFrame encodes a response in the same legacy framing.
func writeBinaryFrame(w io.Writer, version uint16, txID string, payload []byte) error {
	paddedID := padTxID(txID)

	total := uint32(binaryHeaderSize + len(payload))
	buf := make([]byte, 4, int(total))
	binary.BigEndian.PutUint32(buf, total)
	buf = append(buf, 0, 0)
	binary.BigEndian.PutUint16(buf[4:6], version)
	buf = append(buf, []byte(paddedID)...)
	buf = append(buf, payload...)

	_, err := w.Write(buf)
	return err
}

func padTxID(id string) string {
	if len(id) >= txIDFieldSize {
		return id[:txIDFieldSize]
	}
	return id + strings.Repeat(" ", txIDFieldSize-len(id))
}

// textFrame is one decoded "NEO6|<version>|<tx>|<json>" message.
type textFrame struct {
	Version int
	TxID    string
	JSON    string
}

const textPrefix = "NEO6"

// readTextFrame decodes a single newline-terminated text frame.
func readTextFrame(r *bufio.Reader) (textFrame, error) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return textFrame{}, err
	}
	line = strings.TrimRight(line, "\r\n")

	parts := strings.SplitN(line, "|", 4)
	if len(parts) != 4 || parts[0] != textPrefix {
		return textFrame{}, fmt.Errorf("malformed text frame: %q", line)
	}

	var version int
	if _, err := fmt.Sscanf(parts[1], "%d", &version); err != nil {
		return textFrame{}, fmt.Errorf("malformed text frame version %q: %w", parts[1], err)
	}

	return textFrame{Version: version, TxID: parts[2], JSON: parts[3]}, nil
}

// writeTextFrame encodes a response in the text wire format.
func writeTextFrame(w io.Writer, version int, txID string, jsonBody string) error {
	_, err := fmt.Fprintf(w, "%s|%d|%s|%s\n", textPrefix, version, txID, jsonBody)
	return err
}
