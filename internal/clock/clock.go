package clock

import (
	"fmt"
	"sort"
	"strings"
)

// Version is a logical timestamp issued by exactly one replica.
// Versions are ordered by Counter first and Replica second.
type Version struct {
	Counter uint64
	Replica int
}

// Compare returns -1, 0 or +1 depending on whether v sorts before,
// equal to, or after other.
func (v Version) Compare(other Version) int {
	switch {
	case v.Counter < other.Counter:
		return -1
	case v.Counter > other.Counter:
		return 1
	case v.Replica < other.Replica:
		return -1
	case v.Replica > other.Replica:
		return 1
	}
	return 0
}

// Less reports whether v sorts strictly before other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// IsZero reports whether v was never issued.
func (v Version) IsZero() bool {
	return v.Counter == 0
}

// String returns "counter@replica".
func (v Version) String() string {
	return fmt.Sprintf("%d@%d", v.Counter, v.Replica)
}

// Context is a sorted set of Versions without duplicates.
// The zero value is an empty context.
type Context []Version

// NewContext builds a Context from vs in any order.
func NewContext(vs ...Version) Context {
	c := make(Context, 0, len(vs))
	for _, v := range vs {
		c = c.Add(v)
	}
	return c
}

func (c Context) search(v Version) (int, bool) {
	i := sort.Search(len(c), func(i int) bool {
		return !c[i].Less(v)
	})
	return i, i < len(c) && c[i] == v
}

// Contains reports whether v is a member of c.
func (c Context) Contains(v Version) bool {
	_, ok := c.search(v)
	return ok
}

// Add returns c with v inserted. c may be modified in place.
func (c Context) Add(v Version) Context {
	i, ok := c.search(v)
	if ok {
		return c
	}
	c = append(c, Version{})
	copy(c[i+1:], c[i:])
	c[i] = v
	return c
}

// Union returns c with every member of other inserted.
func (c Context) Union(other Context) Context {
	for _, v := range other {
		c = c.Add(v)
	}
	return c
}

// Max returns the greatest Version in c.
func (c Context) Max() (Version, bool) {
	if len(c) == 0 {
		return Version{}, false
	}
	return c[len(c)-1], true
}

// Len returns the number of Versions in c.
func (c Context) Len() int {
	return len(c)
}

// Equal reports whether c and other hold the same Versions.
func (c Context) Equal(other Context) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

// Copy returns a Context that shares no memory with c.
func (c Context) Copy() Context {
	if c == nil {
		return nil
	}
	return append(Context(nil), c...)
}

// String returns the members in order, e.g. "{1@0, 2@1}".
func (c Context) String() string {
	if len(c) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(c))
	for _, v := range c {
		parts = append(parts, v.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Lamport is the high-water mark of counters a replica has issued or
// observed. It is owned by a single replica and is not safe for
// concurrent use.
type Lamport struct {
	counter uint64
}

// Next advances the counter and issues a fresh Version for replica.
func (l *Lamport) Next(replica int) Version {
	l.counter++
	return Version{Counter: l.counter, Replica: replica}
}

// Observe raises the counter to at least v.Counter, so that every
// Version issued afterwards postdates v.
func (l *Lamport) Observe(v Version) {
	if v.Counter > l.counter {
		l.counter = v.Counter
	}
}

// Current returns the high-water mark.
func (l *Lamport) Current() uint64 {
	return l.counter
}
