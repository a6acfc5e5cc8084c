package router

import (
	"sync/atomic"
	"time"
)

// CooldownRegistry tracks per-backend cooldown expiries. The backend set
// is fixed at construction, so lookups never take a lock; each expiry is
// a single atomic nanosecond timestamp.
type CooldownRegistry struct {
	expiries map[string]*atomic.Int64
}

// NewCooldownRegistry builds a registry for the given backend names.
func NewCooldownRegistry(backends []string) *CooldownRegistry {
	r := &CooldownRegistry{expiries: make(map[string]*atomic.Int64, len(backends))}
	for _, name := range backends {
		r.expiries[name] = &atomic.Int64{}
	}
	return r
}

// Eligible reports whether the backend is out of cooldown at now.
// Unknown backends are always eligible.
func (r *CooldownRegistry) Eligible(backend string, now time.Time) bool {
	e, ok := r.expiries[backend]
	if !ok {
		return true
	}
	return e.Load() <= now.UnixNano()
}

// Extend moves the backend's cooldown expiry to until, but never
// backward. Concurrent extensions race through CAS; the latest expiry
// wins regardless of arrival order.
func (r *CooldownRegistry) Extend(backend string, until time.Time) {
	e, ok := r.expiries[backend]
	if !ok {
		return
	}
	target := until.UnixNano()
	for {
		cur := e.Load()
		if cur >= target {
			return
		}
		if e.CompareAndSwap(cur, target) {
			return
		}
	}
}

// Remaining returns how long the backend stays in cooldown from now,
// or zero when it is eligible.
func (r *CooldownRegistry) Remaining(backend string, now time.Time) time.Duration {
	e, ok := r.expiries[backend]
	if !ok {
		return 0
	}
	d := time.Duration(e.Load() - now.UnixNano())
	if d < 0 {
		return 0
	}
	return d
}
