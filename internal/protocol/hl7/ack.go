package hl7

import (
	"bytes"
	"fmt"

	"github.com/danmuck/hl7gate/internal/protocol"
	"github.com/danmuck/hl7gate/internal/protocol/mllp"
)

const (
	FieldDelimiter = '|'
	SegmentEnd     = '\r'

	// ControlIDField is the header field, counted after the segment name, that
	// carries the message control id (MSH-10 in HL7 numbering).
	ControlIDField = 9

	ackHeader = "MSH|^~\\&|||||||ACK||P|2.2"
	ackCode   = "AA"
)

var ErrEmptyMessage = fmt.Errorf("%w: empty message", protocol.ErrInvalidInput)

// ControlID returns header field ControlIDField of msg, or "" when the header
// segment has fewer fields.
func ControlID(msg []byte) string {
	return Field(msg, ControlIDField)
}

// Field returns the n-th (1-based) field of the first segment, not counting the
// segment name. Empty fields are positional.
func Field(msg []byte, n int) string {
	if n < 1 {
		return ""
	}
	header := msg
	if i := bytes.IndexAny(header, "\r\n"); i >= 0 {
		header = header[:i]
	}
	for idx := 0; idx <= n; idx++ {
		i := bytes.IndexByte(header, FieldDelimiter)
		if idx == n {
			if i < 0 {
				return string(header)
			}
			return string(header[:i])
		}
		if i < 0 {
			return ""
		}
		header = header[i+1:]
	}
	return ""
}

// AckBody is the unframed two segment acknowledgment for controlID.
func AckBody(controlID string) []byte {
	var buf bytes.Buffer
	buf.Grow(len(ackHeader) + len(controlID) + 12)
	buf.WriteString(ackHeader)
	buf.WriteByte(SegmentEnd)
	buf.WriteString("MSA|")
	buf.WriteString(ackCode)
	buf.WriteByte(FieldDelimiter)
	buf.WriteString(controlID)
	buf.WriteByte(SegmentEnd)
	return buf.Bytes()
}

// BuildAck returns the framed positive acknowledgment echoing msg's control id.
func BuildAck(msg []byte) ([]byte, error) {
	if len(msg) == 0 {
		return nil, ErrEmptyMessage
	}
	return mllp.Encode(AckBody(ControlID(msg))), nil
}
