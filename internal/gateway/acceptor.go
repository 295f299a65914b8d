package gateway

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/danmuck/hl7gate/internal/dispatch"
	"github.com/rs/zerolog/log"
)

// Acceptor pushes every accepted connection onto the queue and immediately
// goes back to Accept. It never touches connection bytes.
type Acceptor struct {
	ln      net.Listener
	queue   *dispatch.Queue[net.Conn]
	backoff BackoffConfig
	rng     *rand.Rand
	stats   *stats
}

// Run blocks until ctx is cancelled or the listener fails permanently.
// Individual accept errors are logged and retried with backoff.
func (a *Acceptor) Run(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = a.ln.Close()
		case <-stop:
		}
	}()

	failures := 0
	for {
		conn, err := a.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			failures++
			delay := a.backoff.Delay(failures, a.rng)
			log.Warn().Int("failures", failures).Dur("retry_in", delay).Err(err).Msg("accept failed")
			if !sleepCtx(ctx, delay) {
				return nil
			}
			continue
		}
		failures = 0

		if err := a.queue.Push(conn); err != nil {
			_ = conn.Close()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		a.stats.accept()
		depth := a.queue.Len()
		a.stats.depth(depth)
		log.Debug().Str("remote", remoteAddr(conn)).Int("queued", depth).Msg("connection accepted")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
