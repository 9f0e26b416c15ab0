package testutil

import (
	"fmt"
	"time"

	"s3backup/internal/sb"
)

// RunDate is the day FixedClock reports, as it appears in archive keys.
const RunDate = "20240115"

// StubClock is a manually advanced sb.Clock.
type StubClock struct {
	now time.Time
}

// ClockAt returns a StubClock stopped at t.
func ClockAt(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a clock at 10:30 UTC on RunDate.
func FixedClock() *StubClock {
	day, err := time.Parse("20060102", RunDate)
	if err != nil {
		panic(err)
	}
	return ClockAt(day.Add(10*time.Hour + 30*time.Minute))
}

func (c *StubClock) Now() time.Time { return c.now }

// Advance moves the clock forward by d, typically a whole day so the next
// backup gets a new key.
func (c *StubClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// StubIDGenerator numbers runs "run-1", "run-2" and so on.
type StubIDGenerator struct {
	next int
}

func NewStubIDGenerator() *StubIDGenerator { return &StubIDGenerator{} }

func (g *StubIDGenerator) New() string {
	g.next++
	return fmt.Sprintf("run-%d", g.next)
}

var (
	_ sb.Clock       = (*StubClock)(nil)
	_ sb.IDGenerator = (*StubIDGenerator)(nil)
)
