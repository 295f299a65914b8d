package mllp

import (
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/hl7gate/internal/protocol"
)

const (
	StartBlock     byte = 0x0B
	EndBlock       byte = 0x1C
	CarriageReturn byte = 0x0D
)

var (
	ErrMissingStart        = fmt.Errorf("%w: missing start marker", protocol.ErrFramingFault)
	ErrUnterminated        = fmt.Errorf("%w: unterminated message", protocol.ErrFramingFault)
	ErrMalformedTerminator = fmt.Errorf("%w: malformed terminator", protocol.ErrFramingFault)
	ErrMessageTooLarge     = fmt.Errorf("%w: message too large", protocol.ErrFramingFault)
)

// Limits constrains how much of a single frame is buffered.
type Limits struct {
	// MaxMessageBytes caps the payload between the markers. Zero disables the cap.
	MaxMessageBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxMessageBytes: 8 * 1024 * 1024}
}

// ReadMessage consumes exactly one envelope from r and returns the bytes between
// the start and end markers. A stream that ends before any byte arrives yields
// io.EOF. Bytes are pulled one at a time so nothing past the terminator is read.
func ReadMessage(r io.Reader, limits Limits) ([]byte, error) {
	br := asByteReader(r)

	b, err := br.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	if b != StartBlock {
		return nil, ErrMissingStart
	}

	msg := make([]byte, 0, 512)
	for {
		b, err = br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrUnterminated
			}
			return nil, err
		}
		if b == EndBlock {
			break
		}
		if limits.MaxMessageBytes > 0 && len(msg) >= limits.MaxMessageBytes {
			return nil, ErrMessageTooLarge
		}
		msg = append(msg, b)
	}

	b, err = br.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrMalformedTerminator
		}
		return nil, err
	}
	if b != CarriageReturn {
		return nil, ErrMalformedTerminator
	}
	return msg, nil
}

// Encode wraps payload in the envelope.
func Encode(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+3)
	out = append(out, StartBlock)
	out = append(out, payload...)
	out = append(out, EndBlock, CarriageReturn)
	return out
}

func WriteMessage(w io.Writer, payload []byte) error {
	_, err := w.Write(Encode(payload))
	return err
}

func asByteReader(r io.Reader) io.ByteReader {
	if br, ok := r.(io.ByteReader); ok {
		return br
	}
	return &singleByteReader{r: r}
}

// singleByteReader issues one Read per byte; it never buffers ahead of the frame.
type singleByteReader struct {
	r   io.Reader
	buf [1]byte
}

func (s *singleByteReader) ReadByte() (byte, error) {
	for {
		n, err := s.r.Read(s.buf[:])
		if n == 1 {
			return s.buf[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}
