// Package clock provides the hybrid logical clock that orders replicated writes.
//
// A Stamp combines the wall time of the writing peer with a logical counter and
// the peer id. Observing a remote stamp advances the local clock past it, so a
// write that causally follows another always carries a larger stamp no matter
// how far apart the peers' wall clocks are. Concurrent writes are ordered
// deterministically by (Wall, Logical, Peer), which every peer evaluates the same way.
package clock

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
)

// Stamp is an opaque causal timestamp. The zero Stamp orders before all others.
type Stamp struct {
	Wall    int64  `json:"wall"`
	Logical uint32 `json:"logical"`
	Peer    string `json:"peer"`
}

// Compare returns -1, 0 or +1.
func (s Stamp) Compare(o Stamp) int {
	switch {
	case s.Wall < o.Wall:
		return -1
	case s.Wall > o.Wall:
		return 1
	case s.Logical < o.Logical:
		return -1
	case s.Logical > o.Logical:
		return 1
	default:
		return strings.Compare(s.Peer, o.Peer)
	}
}

// After reports whether s orders strictly after o.
func (s Stamp) After(o Stamp) bool {
	return s.Compare(o) > 0
}

func (s Stamp) IsZero() bool {
	return s == Stamp{}
}

func (s Stamp) String() string {
	return fmt.Sprintf("%d.%d@%s", s.Wall, s.Logical, s.Peer)
}

// Clock issues stamps for one peer. It is safe for concurrent use.
type Clock struct {
	mu   sync.Mutex
	wall clockwork.Clock
	peer string
	last Stamp
}

// New creates a clock for peer. A nil wall source uses the real clock.
func New(peer string, wall clockwork.Clock) *Clock {
	if wall == nil {
		wall = clockwork.NewRealClock()
	}
	return &Clock{wall: wall, peer: peer}
}

func (c *Clock) Peer() string {
	return c.peer
}

// Now returns a stamp for a local event, strictly after every stamp this clock
// has issued or observed.
func (c *Clock) Now() Stamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	physical := c.wall.Now().UnixNano()
	switch {
	case physical > c.last.Wall:
		c.last = Stamp{Wall: physical, Peer: c.peer}
	case c.last.Logical == math.MaxUint32:
		// The counter is exhausted; move one nanosecond ahead of the wall time.
		c.last = Stamp{Wall: c.last.Wall + 1, Peer: c.peer}
	default:
		c.last = Stamp{Wall: c.last.Wall, Logical: c.last.Logical + 1, Peer: c.peer}
	}
	return c.last
}

// Observe merges a remote stamp so that subsequent local stamps order after it.
func (c *Clock) Observe(remote Stamp) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if remote.Wall > c.last.Wall || (remote.Wall == c.last.Wall && remote.Logical > c.last.Logical) {
		c.last = Stamp{Wall: remote.Wall, Logical: remote.Logical, Peer: c.peer}
	}
}

// Last returns the most recent stamp issued or observed.
func (c *Clock) Last() Stamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
