package client

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

const (
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffCap  = 30 * time.Second
)

// ReconnectionSupervisor keeps one channel subscription alive. Each
// session starts with a fresh snapshot, so nothing is lost across the
// gap; a few re-rendered messages are absorbed by the reconciler's
// duplicate rule. Connection loss is recovered transparently and only
// an explicit cancellation (ctx) ends the loop.
//
// It implements contract.Worker so it can run under the runtime
// supervisor alongside other client workers.
type ReconnectionSupervisor struct {
	log         *slog.Logger
	client      *ChannelClient
	onFrame     FrameHandler
	backoffBase time.Duration
	backoffCap  time.Duration
}

func NewReconnectionSupervisor(log *slog.Logger, c *ChannelClient, onFrame FrameHandler) *ReconnectionSupervisor {
	return &ReconnectionSupervisor{
		log:         log,
		client:      c,
		onFrame:     onFrame,
		backoffBase: defaultBackoffBase,
		backoffCap:  defaultBackoffCap,
	}
}

func (r *ReconnectionSupervisor) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		started := time.Now()
		err := r.client.Session(ctx, r.onFrame)
		if ctx.Err() != nil {
			return nil
		}

		// A session that held for a while earns a reset; immediate
		// failures keep climbing the backoff ladder.
		if time.Since(started) > r.backoffCap {
			attempt = 0
		}
		attempt++

		delay := r.backoff(attempt)
		r.log.Warn("reconnecting",
			"channel", r.client.channel.Key(),
			"attempt", attempt,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// backoff computes the next delay: exponential from the base, capped,
// with full jitter so a herd of clients does not reconnect in phase.
func (r *ReconnectionSupervisor) backoff(attempt int) time.Duration {
	ceiling := r.backoffBase << uint(attempt-1)
	if ceiling > r.backoffCap || ceiling <= 0 {
		ceiling = r.backoffCap
	}
	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}
