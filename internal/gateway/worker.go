package gateway

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/hl7gate/internal/dispatch"
	"github.com/danmuck/hl7gate/internal/protocol"
	"github.com/danmuck/hl7gate/internal/protocol/hl7"
	"github.com/danmuck/hl7gate/internal/protocol/mllp"
	"github.com/danmuck/hl7gate/internal/storage"
	"github.com/rs/zerolog/log"
)

// WorkerState is the stage a worker is in for its current connection.
type WorkerState int32

const (
	StateIdle WorkerState = iota
	StateFraming
	StatePersisting
	StateAcknowledging
	StateClosing
	StateStopped
)

func (s WorkerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFraming:
		return "framing"
	case StatePersisting:
		return "persisting"
	case StateAcknowledging:
		return "acknowledging"
	case StateClosing:
		return "closing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// handler holds what every worker shares. Nothing in it is mutated per
// connection except the active set and the counters.
type handler struct {
	uploader     storage.Uploader
	limits       mllp.Limits
	readTimeout  time.Duration
	writeTimeout time.Duration
	newKey       func() string
	policy       UploadFailurePolicy
	onFatal      func(error)
	stats        *stats

	activeMu sync.Mutex
	active   map[net.Conn]struct{}
	closing  bool
}

func (h *handler) track(conn net.Conn) {
	h.activeMu.Lock()
	defer h.activeMu.Unlock()
	h.active[conn] = struct{}{}
	if h.closing {
		_ = conn.Close()
	}
}

func (h *handler) untrack(conn net.Conn) {
	h.activeMu.Lock()
	delete(h.active, conn)
	h.activeMu.Unlock()
}

// closeActive closes every connection a worker currently owns so blocked reads
// return during shutdown.
func (h *handler) closeActive() {
	h.activeMu.Lock()
	defer h.activeMu.Unlock()
	h.closing = true
	for conn := range h.active {
		_ = conn.Close()
	}
}

// Worker pops one connection at a time and runs it to completion. A failed
// connection never stops the worker.
type Worker struct {
	ID int

	queue *dispatch.Queue[net.Conn]
	h     *handler
	state atomic.Int32
}

func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

func (w *Worker) setState(s WorkerState) {
	w.state.Store(int32(s))
}

// Run loops until the queue is closed.
func (w *Worker) Run(ctx context.Context) {
	defer w.setState(StateStopped)
	for {
		w.setState(StateIdle)
		conn, ok := w.queue.Pop()
		if !ok {
			return
		}
		w.h.stats.depth(w.queue.Len())
		w.h.stats.record(w.handle(ctx, conn))
	}
}

func (w *Worker) handle(ctx context.Context, conn net.Conn) (outcome Outcome) {
	remote := remoteAddr(conn)
	start := time.Now()
	w.h.track(conn)
	w.h.stats.setBusy(1)
	defer func() {
		w.setState(StateClosing)
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Debug().Int("worker", w.ID).Str("remote", remote).Err(err).Msg("close connection")
		}
		w.h.untrack(conn)
		w.h.stats.setBusy(-1)
		log.Debug().
			Int("worker", w.ID).
			Str("remote", remote).
			Str("outcome", string(outcome)).
			Dur("duration", time.Since(start)).
			Msg("connection closed")
	}()

	log.Debug().Int("worker", w.ID).Str("remote", remote).Msg("handling connection")

	w.setState(StateFraming)
	if w.h.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(w.h.readTimeout))
	}
	msg, err := mllp.ReadMessage(conn, w.h.limits)
	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
			log.Debug().Int("worker", w.ID).Str("remote", remote).Msg("peer closed before sending")
			return OutcomeEmpty
		case errors.Is(err, protocol.ErrFramingFault):
			log.Warn().Int("worker", w.ID).Str("remote", remote).Err(err).Msg("framing fault")
			return OutcomeFramingFault
		default:
			log.Warn().Int("worker", w.ID).Str("remote", remote).Err(err).Msg("read failed")
			return OutcomeReadFailed
		}
	}

	// Built before persisting, written only after the upload succeeds.
	ack, err := hl7.BuildAck(msg)
	if err != nil {
		log.Warn().Int("worker", w.ID).Str("remote", remote).Err(err).Msg("rejecting message")
		return OutcomeInvalidMessage
	}
	controlID := hl7.ControlID(msg)

	w.setState(StatePersisting)
	key := w.h.newKey()
	if err := w.h.uploader.Upload(ctx, key, msg); err != nil {
		log.Error().
			Int("worker", w.ID).
			Str("remote", remote).
			Str("key", key).
			Str("control_id", controlID).
			Str("policy", string(w.h.policy)).
			Err(err).
			Msg("upload failed, closing without ack")
		if w.h.policy == UploadFailureExit && w.h.onFatal != nil {
			w.h.onFatal(err)
		}
		return OutcomeUploadFailed
	}

	w.setState(StateAcknowledging)
	if w.h.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(w.h.writeTimeout))
	}
	if _, err := conn.Write(ack); err != nil {
		log.Warn().Int("worker", w.ID).Str("remote", remote).Str("key", key).Err(err).Msg("ack write failed")
		return OutcomeWriteFailed
	}

	log.Info().
		Int("worker", w.ID).
		Str("remote", remote).
		Str("key", key).
		Str("control_id", controlID).
		Int("bytes", len(msg)).
		Msg("message acknowledged")
	return OutcomeAcked
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
