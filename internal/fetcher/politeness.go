package fetcher

import (
	"math/rand"
	"sync"
	"time"
)

// defaultUserAgents is the built-in identity pool used when the configuration
// supplies none.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
}

// Politeness decides the pre-request delay and the client identity for each
// fetch attempt. It is injected so tests can substitute a deterministic
// zero-delay implementation without touching retry logic.
type Politeness interface {
	Delay() time.Duration
	UserAgent() string
}

// RandomPoliteness draws the delay uniformly from [min, max] and picks a
// user agent pseudo-randomly from a fixed pool.
type RandomPoliteness struct {
	min    time.Duration
	max    time.Duration
	agents []string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomPoliteness builds the production politeness strategy. An empty
// agent list falls back to the built-in pool.
func NewRandomPoliteness(min, max time.Duration, agents []string) *RandomPoliteness {
	if max < min {
		max = min
	}
	if len(agents) == 0 {
		agents = defaultUserAgents
	}
	return &RandomPoliteness{
		min:    min,
		max:    max,
		agents: agents,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *RandomPoliteness) Delay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.max <= p.min {
		return p.min
	}
	return p.min + time.Duration(p.rng.Int63n(int64(p.max-p.min)))
}

func (p *RandomPoliteness) UserAgent() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.agents[p.rng.Intn(len(p.agents))]
}

// FixedPoliteness returns a constant delay and identity. Intended for tests.
type FixedPoliteness struct {
	Wait  time.Duration
	Agent string
}

func (p FixedPoliteness) Delay() time.Duration { return p.Wait }

func (p FixedPoliteness) UserAgent() string {
	if p.Agent == "" {
		return defaultUserAgents[0]
	}
	return p.Agent
}
