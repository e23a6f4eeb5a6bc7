package testutil

import (
	"fmt"
	"sync"
	"time"

	"ct-go/internal/tracker"
)

// StubClock is a manually advanced clock. Tests pin it to a known instant
// so added dates, sync timestamps and staleness checks are deterministic.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// FixedClock returns a StubClock pinned to a fixed reference instant.
func FixedClock() *StubClock {
	return &StubClock{now: time.Date(2025, 3, 9, 8, 15, 0, 0, time.UTC)}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. Advance past the orchestrator's
// staleness window to make the next sync pass fetch again.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// StubIDGenerator hands out sequential IDs ("stub-id-1", "stub-id-2", ...)
// in place of random UUIDs for photos and devices.
type StubIDGenerator struct {
	mu      sync.Mutex
	counter int
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("stub-id-%d", g.counter)
}

var (
	_ tracker.Clock       = (*StubClock)(nil)
	_ tracker.IDGenerator = (*StubIDGenerator)(nil)
)
