package mllp

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/danmuck/hl7gate/internal/protocol"
	"github.com/danmuck/hl7gate/internal/testutil/testlog"
)

func TestReadMessageReturnsPayloadBetweenMarkers(t *testing.T) {
	testlog.Start(t)

	payloads := [][]byte{
		[]byte(""),
		[]byte("MSH|^~\\&|A|B|C|D|E|F|G|CTRL123|P|2.3"),
		[]byte("MSH|^~\\&|A\rPID|1||12345\rPV1|1|I"),
		{0x00, 0x0B, 0x0D, 0xFF},
	}
	for _, p := range payloads {
		got, err := ReadMessage(bytes.NewReader(Encode(p)), DefaultLimits())
		if err != nil {
			t.Fatalf("read %q: %v", p, err)
		}
		if !bytes.Equal(got, p) {
			t.Fatalf("payload mismatch: got=%q want=%q", got, p)
		}
	}
}

func TestReadMessageOneByteAtATime(t *testing.T) {
	testlog.Start(t)

	p := []byte("MSH|^~\\&|A|B|C|D|E|F|G|CTRL123")
	r := iotest.OneByteReader(bytes.NewReader(Encode(p)))
	got, err := ReadMessage(r, DefaultLimits())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, p) {
		t.Fatalf("payload mismatch: got=%q", got)
	}
}

func TestReadMessageDoesNotConsumePastTerminator(t *testing.T) {
	testlog.Start(t)

	stream := append(Encode([]byte("first")), []byte("trailing")...)
	r := bytes.NewReader(stream)
	if _, err := ReadMessage(r, DefaultLimits()); err != nil {
		t.Fatalf("read: %v", err)
	}
	rest, _ := io.ReadAll(r)
	if string(rest) != "trailing" {
		t.Fatalf("expected trailing bytes untouched, got %q", rest)
	}
}

func TestReadMessageEmptyStreamIsEndOfStream(t *testing.T) {
	testlog.Start(t)

	_, err := ReadMessage(bytes.NewReader(nil), DefaultLimits())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReadMessageFaults(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		name  string
		input []byte
		want  error
	}{
		{"missing start", []byte("MSH|x\x1c\r"), ErrMissingStart},
		{"missing start on bare end block", []byte{EndBlock, CarriageReturn}, ErrMissingStart},
		{"missing start on carriage return", []byte{CarriageReturn}, ErrMissingStart},
		{"unterminated", []byte("\x0bMSH|no end"), ErrUnterminated},
		{"unterminated after start only", []byte{StartBlock}, ErrUnterminated},
		{"terminator not cr", []byte("\x0bMSH\x1cX"), ErrMalformedTerminator},
		{"terminator is lf", []byte("\x0bMSH\x1c\n"), ErrMalformedTerminator},
		{"terminator missing", []byte("\x0bMSH\x1c"), ErrMalformedTerminator},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadMessage(bytes.NewReader(tc.input), DefaultLimits())
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !errors.Is(err, protocol.ErrFramingFault) {
				t.Fatalf("expected framing fault class, got %v", err)
			}
		})
	}
}

func TestReadMessageEnforcesLimit(t *testing.T) {
	testlog.Start(t)

	limits := Limits{MaxMessageBytes: 4}
	if _, err := ReadMessage(bytes.NewReader(Encode([]byte("abcd"))), limits); err != nil {
		t.Fatalf("payload at limit should pass: %v", err)
	}
	_, err := ReadMessage(bytes.NewReader(Encode([]byte("abcde"))), limits)
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
	if _, err := ReadMessage(bytes.NewReader(Encode(bytes.Repeat([]byte("a"), 64))), Limits{}); err != nil {
		t.Fatalf("zero limit should be unlimited: %v", err)
	}
}

func TestReadMessageSurfacesReadErrors(t *testing.T) {
	testlog.Start(t)

	boom := errors.New("boom")
	_, err := ReadMessage(iotest.ErrReader(boom), DefaultLimits())
	if !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
	if errors.Is(err, protocol.ErrFramingFault) {
		t.Fatalf("io error must not be classified as framing fault")
	}
}

func TestWriteMessageEnvelope(t *testing.T) {
	testlog.Start(t)

	var buf bytes.Buffer
	if err := WriteMessage(&buf, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := []byte{StartBlock, 'x', EndBlock, CarriageReturn}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("envelope mismatch: got=%v want=%v", buf.Bytes(), want)
	}
}
