// Package gateway runs the MLLP listener: one acceptor goroutine feeding a
// dispatch queue drained by a fixed pool of workers.
//
// Per connection a worker frames one message, uploads it under a fresh
// "<uuid>.hl7" key, and writes back an HL7 ACK. Every exit path closes the
// connection. Malformed or empty input and failed uploads close without an
// acknowledgment. No ordering holds across connections.
//
// There is no per-read deadline unless ReadTimeout is set, so a stalled peer
// keeps its worker until it disconnects or the gateway stops.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/hl7gate/internal/dispatch"
	"github.com/danmuck/hl7gate/internal/protocol/mllp"
	"github.com/danmuck/hl7gate/internal/storage"
	"github.com/rs/zerolog/log"
)

// UploadFailurePolicy decides what a failed upload does to the process.
type UploadFailurePolicy string

const (
	// UploadFailureDrop logs, closes the connection without an ack and keeps serving.
	UploadFailureDrop UploadFailurePolicy = "drop"
	// UploadFailureExit additionally stops the gateway with ErrUploadFatal.
	UploadFailureExit UploadFailurePolicy = "exit"
)

var (
	ErrBind           = errors.New("gateway: bind failed")
	ErrUploadFatal    = errors.New("gateway: upload failed under exit policy")
	ErrNoUploader     = errors.New("gateway: uploader is required")
	ErrInvalidWorkers = errors.New("gateway: worker count must be >= 1")
	ErrAlreadyServed  = errors.New("gateway: serve called twice")
)

// Config shapes one Gateway.
type Config struct {
	Addr          string
	Workers       int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	// Limits.MaxMessageBytes of 0 disables the frame size cap, matching
	// max_message_bytes = 0. DefaultConfig carries the 8 MiB cap.
	Limits        mllp.Limits
	UploadFailure UploadFailurePolicy
	// Backoff with a zero InitialDelay is replaced by DefaultBackoff.
	Backoff BackoffConfig
	// NewKey mints storage keys; nil uses storage.NewKey.
	NewKey func() string
}

func DefaultConfig() Config {
	return Config{
		Addr:          ":1080",
		Workers:       3,
		Limits:        mllp.DefaultLimits(),
		UploadFailure: UploadFailureDrop,
		Backoff:       DefaultBackoff(),
	}
}

// Gateway is the composition root owning the queue, the pool and the listener.
// A Gateway serves once.
type Gateway struct {
	cfg   Config
	queue *dispatch.Queue[net.Conn]
	h     *handler
	pool  *Pool
	stats *stats

	fatal  chan error
	served atomic.Bool
	ready  atomic.Bool

	addrMu sync.RWMutex
	addr   net.Addr
}

func New(cfg Config, uploader storage.Uploader) (*Gateway, error) {
	if uploader == nil {
		return nil, ErrNoUploader
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkers, cfg.Workers)
	}
	if strings.TrimSpace(string(cfg.UploadFailure)) == "" {
		cfg.UploadFailure = UploadFailureDrop
	}
	if cfg.NewKey == nil {
		cfg.NewKey = storage.NewKey
	}
	if cfg.Backoff.InitialDelay <= 0 {
		cfg.Backoff = DefaultBackoff()
	}

	g := &Gateway{
		cfg:   cfg,
		queue: dispatch.NewQueue[net.Conn](),
		stats: newStats(),
		fatal: make(chan error, 1),
	}
	g.h = &handler{
		uploader:     uploader,
		limits:       cfg.Limits,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		newKey:       cfg.NewKey,
		policy:       cfg.UploadFailure,
		onFatal:      g.raiseFatal,
		stats:        g.stats,
		active:       make(map[net.Conn]struct{}),
	}
	g.pool = newPool(cfg.Workers, g.queue, g.h)
	return g, nil
}

// Listen binds the configured address. A failure here is fatal for the process.
func (g *Gateway) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", g.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBind, g.cfg.Addr, err)
	}
	return ln, nil
}

// ListenAndServe binds and then serves until ctx is cancelled.
func (g *Gateway) ListenAndServe(ctx context.Context) error {
	ln, err := g.Listen()
	if err != nil {
		return err
	}
	return g.Serve(ctx, ln)
}

// Serve runs the pool and the acceptor on ln until ctx is cancelled, the
// listener fails, or an upload fails under UploadFailureExit. On return the
// listener is closed, queued and in-flight connections are closed, and every
// worker has stopped.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	if !g.served.CompareAndSwap(false, true) {
		_ = ln.Close()
		return ErrAlreadyServed
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.setAddr(ln.Addr())
	g.pool.Start(ctx)

	acceptor := &Acceptor{
		ln:      ln,
		queue:   g.queue,
		backoff: g.cfg.Backoff,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		stats:   g.stats,
	}
	acceptDone := make(chan error, 1)
	go func() {
		acceptDone <- acceptor.Run(ctx)
	}()
	g.ready.Store(true)
	log.Info().
		Str("addr", ln.Addr().String()).
		Int("workers", g.pool.Size()).
		Str("upload_failure", string(g.cfg.UploadFailure)).
		Msg("mllp gateway listening")

	var err error
	select {
	case err = <-acceptDone:
	case err = <-g.fatal:
		cancel()
		<-acceptDone
	}
	g.ready.Store(false)

	pending := g.queue.Close()
	for _, conn := range pending {
		_ = conn.Close()
	}
	g.h.closeActive()
	g.pool.Wait()
	g.stats.depth(0)
	log.Info().Int("dropped_pending", len(pending)).Msg("mllp gateway stopped")
	return err
}

func (g *Gateway) raiseFatal(err error) {
	select {
	case g.fatal <- fmt.Errorf("%w: %v", ErrUploadFatal, err):
	default:
	}
}

// Ready reports whether the acceptor is running.
func (g *Gateway) Ready() bool {
	return g.ready.Load()
}

// Addr is the bound listener address, nil before Serve.
func (g *Gateway) Addr() net.Addr {
	g.addrMu.RLock()
	defer g.addrMu.RUnlock()
	return g.addr
}

func (g *Gateway) setAddr(addr net.Addr) {
	g.addrMu.Lock()
	g.addr = addr
	g.addrMu.Unlock()
}

func (g *Gateway) Stats() StatsSnapshot {
	snap := g.stats.snapshot()
	snap.QueueDepth = g.queue.Len()
	snap.Workers = g.pool.Size()
	states := g.pool.States()
	snap.WorkerStates = make([]string, len(states))
	for i, s := range states {
		snap.WorkerStates[i] = s.String()
	}
	return snap
}
