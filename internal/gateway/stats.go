package gateway

import (
	"sync/atomic"

	"github.com/danmuck/hl7gate/internal/observability"
)

// Outcome labels one finished connection.
type Outcome string

const (
	OutcomeAcked          Outcome = "acked"
	OutcomeEmpty          Outcome = "empty"
	OutcomeFramingFault   Outcome = "framing_fault"
	OutcomeReadFailed     Outcome = "read_failed"
	OutcomeInvalidMessage Outcome = "invalid_message"
	OutcomeUploadFailed   Outcome = "upload_failed"
	OutcomeWriteFailed    Outcome = "write_failed"
)

var outcomes = []Outcome{
	OutcomeAcked,
	OutcomeEmpty,
	OutcomeFramingFault,
	OutcomeReadFailed,
	OutcomeInvalidMessage,
	OutcomeUploadFailed,
	OutcomeWriteFailed,
}

type stats struct {
	accepted atomic.Uint64
	busy     atomic.Int64
	byKind   map[Outcome]*atomic.Uint64
}

func newStats() *stats {
	s := &stats{byKind: make(map[Outcome]*atomic.Uint64, len(outcomes))}
	for _, o := range outcomes {
		s.byKind[o] = new(atomic.Uint64)
	}
	return s
}

func (s *stats) accept() {
	s.accepted.Add(1)
	observability.RecordConnectionAccepted()
}

func (s *stats) record(o Outcome) {
	if c, ok := s.byKind[o]; ok {
		c.Add(1)
	}
	observability.RecordMessageOutcome(string(o))
}

func (s *stats) setBusy(delta int) {
	s.busy.Add(int64(delta))
	observability.AddWorkersBusy(delta)
}

// StatsSnapshot is a point-in-time view of gateway counters.
type StatsSnapshot struct {
	Accepted     uint64            `json:"accepted"`
	Completed    uint64            `json:"completed"`
	QueueDepth   int               `json:"queue_depth"`
	Workers      int               `json:"workers"`
	BusyWorkers  int64             `json:"busy_workers"`
	WorkerStates []string          `json:"worker_states"`
	Outcomes     map[string]uint64 `json:"outcomes"`
}

func (s *stats) snapshot() StatsSnapshot {
	out := StatsSnapshot{
		Accepted:    s.accepted.Load(),
		BusyWorkers: s.busy.Load(),
		Outcomes:    make(map[string]uint64, len(outcomes)),
	}
	for _, o := range outcomes {
		n := s.byKind[o].Load()
		out.Outcomes[string(o)] = n
		out.Completed += n
	}
	return out
}

func (s *stats) depth(n int) {
	observability.SetQueueDepth(n)
}
