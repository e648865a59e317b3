package reference

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// DefaultPrefix labels transaction references when none is configured.
const DefaultPrefix = "TXN"

const (
	timestampLayout = "20060102150405"
	counterModulo   = 1000
	suffixLength    = 4
	suffixAlphabet  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Generator produces references shaped PREFIX-YYYYMMDDHHMMSS-NNN-XXXX.
// The counter lives only in this instance and restarts with the process;
// uniqueness also leans on the timestamp and the random suffix.
type Generator struct {
	prefix string
	now    func() time.Time

	mu      sync.Mutex
	counter int
}

// Option customises a Generator.
type Option func(*Generator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// New returns a generator using prefix, or DefaultPrefix when empty.
func New(prefix string, opts ...Option) *Generator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	g := &Generator{prefix: prefix, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next returns a fresh reference.
func (g *Generator) Next() string {
	g.mu.Lock()
	seq := g.counter
	g.counter = (g.counter + 1) % counterModulo
	ts := g.now().UTC().Format(timestampLayout)
	g.mu.Unlock()

	return fmt.Sprintf("%s-%s-%03d-%s", g.prefix, ts, seq, randomSuffix())
}

func randomSuffix() string {
	b := make([]byte, suffixLength)
	for i := range b {
		b[i] = suffixAlphabet[rand.IntN(len(suffixAlphabet))]
	}
	return string(b)
}
