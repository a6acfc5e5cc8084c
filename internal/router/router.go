// Package router routes escalated items across review backends in
// priority order, tracking per-backend rate-limit cooldowns.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modwatch/modwatch/internal/domain"
	"github.com/modwatch/modwatch/internal/logger"
	"github.com/modwatch/modwatch/internal/telemetry"
)

// ErrNoVerdict indicates every backend was in cooldown or failed. The
// caller records the item as escalated but unreviewed.
var ErrNoVerdict = errors.New("no review backend available")

// RateLimitError reports a backend rate limit with the reset hint the
// provider sent, when it sent one.
type RateLimitError struct {
	Backend    string
	ResetAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("backend %s rate limited, reset in %s", e.Backend, e.ResetAfter)
}

// Backend reviews one escalated item and returns a verdict.
type Backend interface {
	Name() string
	Model() string
	Review(ctx context.Context, item *domain.Item, decision *domain.EscalationDecision) (*domain.Verdict, error)
}

// Router holds the priority-ordered backend list and the shared
// cooldown registry.
type Router struct {
	backends     []Backend
	cooldowns    *CooldownRegistry
	timeout      time.Duration
	buffer       time.Duration
	defaultReset time.Duration
	now          func() time.Time
	tel          *telemetry.Provider
	log          logger.Logger
}

// New builds a router. backends must already be sorted by priority,
// highest first. timeout bounds each backend call; a hung backend
// counts as a failure and the walk moves on.
func New(backends []Backend, timeout, buffer, defaultReset time.Duration, tel *telemetry.Provider, log logger.Logger) *Router {
	if log == nil {
		log = logger.Nop()
	}
	names := make([]string, len(backends))
	for i, b := range backends {
		names[i] = b.Name()
	}
	return &Router{
		backends:     backends,
		cooldowns:    NewCooldownRegistry(names),
		timeout:      timeout,
		buffer:       buffer,
		defaultReset: defaultReset,
		now:          time.Now,
		tel:          tel,
		log:          log,
	}
}

// Review walks the backend list until one returns a verdict. A
// rate-limited backend goes into cooldown and the walk continues; any
// other backend error is logged and the walk continues. When the list
// is exhausted Review returns ErrNoVerdict.
func (r *Router) Review(ctx context.Context, item *domain.Item, decision *domain.EscalationDecision) (*domain.Verdict, error) {
	for _, b := range r.backends {
		now := r.now()
		if !r.cooldowns.Eligible(b.Name(), now) {
			r.log.Debug("backend in cooldown",
				logger.String("backend", b.Name()),
				logger.Duration("remaining", r.cooldowns.Remaining(b.Name(), now)))
			continue
		}

		start := now
		verdict, err := r.review(ctx, b, item, decision)
		if r.tel != nil {
			r.tel.ObserveReview(b.Name(), r.now().Sub(start))
		}
		if err != nil {
			var rle *RateLimitError
			if errors.As(err, &rle) {
				reset := rle.ResetAfter
				if reset <= 0 {
					reset = r.defaultReset
				}
				r.cooldowns.Extend(b.Name(), r.now().Add(reset+r.buffer))
				if r.tel != nil {
					r.tel.RateLimited(b.Name())
				}
				r.log.Warn("backend rate limited",
					logger.String("backend", b.Name()),
					logger.Duration("cooldown", reset+r.buffer))
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.log.Error("backend review failed",
				logger.String("backend", b.Name()),
				logger.Error(err))
			continue
		}

		verdict.Backend = b.Name()
		verdict.Model = b.Model()
		return verdict, nil
	}
	return nil, ErrNoVerdict
}

func (r *Router) review(ctx context.Context, b Backend, item *domain.Item, decision *domain.EscalationDecision) (*domain.Verdict, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return b.Review(ctx, item, decision)
}
