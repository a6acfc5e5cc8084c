package router

import (
	"sync"
	"testing"
	"time"
)

func TestCooldownRegistry_EligibleUntilExtended(t *testing.T) {
	r := NewCooldownRegistry([]string{"a", "b"})
	now := time.Now()

	if !r.Eligible("a", now) {
		t.Error("fresh backend not eligible")
	}

	r.Extend("a", now.Add(time.Minute))
	if r.Eligible("a", now) {
		t.Error("backend eligible inside cooldown")
	}
	if !r.Eligible("b", now) {
		t.Error("unrelated backend lost eligibility")
	}
	if !r.Eligible("a", now.Add(2*time.Minute)) {
		t.Error("backend not eligible after cooldown expiry")
	}
}

func TestCooldownRegistry_ExtendIsMonotonic(t *testing.T) {
	r := NewCooldownRegistry([]string{"a"})
	now := time.Now()

	r.Extend("a", now.Add(10*time.Minute))
	// A shorter extension must not pull the expiry backward.
	r.Extend("a", now.Add(time.Minute))

	if r.Eligible("a", now.Add(5*time.Minute)) {
		t.Error("shorter extension moved the expiry backward")
	}
}

func TestCooldownRegistry_ConcurrentExtends(t *testing.T) {
	r := NewCooldownRegistry([]string{"a"})
	now := time.Now()

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r.Extend("a", now.Add(time.Duration(n)*time.Second))
		}(i)
	}
	wg.Wait()

	// The longest requested cooldown must win regardless of goroutine
	// interleaving.
	if r.Eligible("a", now.Add(98*time.Second)) {
		t.Error("expiry below the maximum concurrent extension")
	}
	if !r.Eligible("a", now.Add(100*time.Second)) {
		t.Error("expiry beyond the maximum concurrent extension")
	}
}

func TestCooldownRegistry_UnknownBackend(t *testing.T) {
	r := NewCooldownRegistry([]string{"a"})
	now := time.Now()

	r.Extend("ghost", now.Add(time.Hour))
	if !r.Eligible("ghost", now) {
		t.Error("unknown backend should always be eligible")
	}
	if r.Remaining("ghost", now) != 0 {
		t.Error("unknown backend reports remaining cooldown")
	}
}
