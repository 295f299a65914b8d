package hl7

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/hl7gate/internal/protocol"
	"github.com/danmuck/hl7gate/internal/protocol/mllp"
	"github.com/danmuck/hl7gate/internal/testutil/testlog"
)

func TestControlIDPositional(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		name string
		msg  string
		want string
	}{
		{"full header", "MSH|^~\\&|A|B|C|D|E|F|G|CTRL123|P|2.3", "CTRL123"},
		{"control id is last field", "MSH|^~\\&|A|B|C|D|E|F|G|CTRL123", "CTRL123"},
		{"empty positional fields", "MSH|^~\\&|||||||ADT^A01|MSG0001|P|2.5", "MSG0001"},
		{"fewer than nine fields after segment name", "MSH|^~\\&|A|B|C", ""},
		{"eight fields after segment name", "MSH|1|2|3|4|5|6|7|8", ""},
		{"nine fields after segment name", "MSH|1|2|3|4|5|6|7|8|9", "9"},
		{"no delimiter", "garbage", ""},
		{"header only counted", "MSH|^~\\&|A|B\rPID|1|2|3|4|5|6|7|8|9|10", ""},
		{"empty control id", "MSH|1|2|3|4|5|6|7|8||P", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ControlID([]byte(tc.msg)); got != tc.want {
				t.Fatalf("control id: got=%q want=%q", got, tc.want)
			}
		})
	}
}

func TestBuildAckEchoesControlID(t *testing.T) {
	testlog.Start(t)

	ack, err := BuildAck([]byte("MSH|^~\\&|A|B|C|D|E|F|G|CTRL123|P|2.3\rPID|1"))
	if err != nil {
		t.Fatalf("build ack: %v", err)
	}
	want := "\x0bMSH|^~\\&|||||||ACK||P|2.2\rMSA|AA|CTRL123\r\x1c\r"
	if string(ack) != want {
		t.Fatalf("ack mismatch:\n got=%q\nwant=%q", ack, want)
	}
}

func TestBuildAckShortMessageHasEmptyControlID(t *testing.T) {
	testlog.Start(t)

	ack, err := BuildAck([]byte("MSH|^~\\&|A"))
	if err != nil {
		t.Fatalf("build ack: %v", err)
	}
	if !bytes.HasSuffix(ack, []byte("MSA|AA|\r\x1c\r")) {
		t.Fatalf("expected empty control id, got %q", ack)
	}
}

func TestBuildAckRejectsEmptyInput(t *testing.T) {
	testlog.Start(t)

	for _, msg := range [][]byte{nil, {}} {
		_, err := BuildAck(msg)
		if !errors.Is(err, protocol.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	}
}

func TestBuildAckIsReadableByFramer(t *testing.T) {
	testlog.Start(t)

	ack, err := BuildAck([]byte("MSH|^~\\&|A|B|C|D|E|F|G|ID-9"))
	if err != nil {
		t.Fatalf("build ack: %v", err)
	}
	body, err := mllp.ReadMessage(bytes.NewReader(ack), mllp.DefaultLimits())
	if err != nil {
		t.Fatalf("frame ack: %v", err)
	}
	if !bytes.Equal(body, AckBody("ID-9")) {
		t.Fatalf("body mismatch: %q", body)
	}
	if got := Field(body, 8); got != "ACK" {
		t.Fatalf("expected ACK message type, got %q", got)
	}
}
