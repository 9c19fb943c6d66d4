package registry

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// IDGenerator mints node ids of the form "<type>-<unix millis>". Two nodes
// created within the same millisecond get consecutive stamps, so ids are
// unique across the generator's lifetime.
type IDGenerator struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

// NewIDGenerator returns a generator reading time from now.
func NewIDGenerator(now func() time.Time) *IDGenerator {
	return &IDGenerator{now: now}
}

// Next returns a fresh id for a node of typeTag.
func (g *IDGenerator) Next(typeTag string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	stamp := g.now().UnixMilli()
	if stamp <= g.last {
		stamp = g.last + 1
	}
	g.last = stamp
	return fmt.Sprintf("%s-%d", typeTag, stamp)
}

// Observe advances the generator past the stamp embedded in id. Ids that do
// not follow the scheme are ignored.
func (g *IDGenerator) Observe(id string) {
	i := strings.LastIndexByte(id, '-')
	if i < 0 || i == len(id)-1 {
		return
	}
	stamp, err := strconv.ParseInt(id[i+1:], 10, 64)
	if err != nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if stamp > g.last {
		g.last = stamp
	}
}
