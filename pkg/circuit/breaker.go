package circuit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config holds circuit breaker configuration.
type Config struct {
	Name        string
	MaxFailures int
	Timeout     time.Duration
	HalfOpenMax int
}

// Breaker implements the circuit breaker pattern. All state transitions
// happen under one mutex.
type Breaker struct {
	name        string
	maxFailures int
	timeout     time.Duration
	halfOpenMax int

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	inHalfOpen  int
	lastFailure time.Time
}

// NewBreaker creates a new circuit breaker.
func NewBreaker(cfg Config) *Breaker {
	return &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		timeout:     cfg.Timeout,
		halfOpenMax: cfg.HalfOpenMax,
		state:       StateClosed,
	}
}

// Execute runs fn with circuit breaker protection.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.inHalfOpen > 0 {
		b.inHalfOpen--
	}
	if err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(b.lastFailure) <= b.timeout {
			return ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
		b.inHalfOpen++
		return nil
	default: // StateHalfOpen
		if b.inHalfOpen >= b.halfOpenMax {
			return ErrTooManyRequests
		}
		b.inHalfOpen++
		return nil
	}
}

// recordFailure is called with b.mu held.
func (b *Breaker) recordFailure() {
	b.lastFailure = time.Now()
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.maxFailures {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

// recordSuccess is called with b.mu held.
func (b *Breaker) recordSuccess() {
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.halfOpenMax {
			b.transition(StateClosed)
		}
	}
}

// transition is called with b.mu held.
func (b *Breaker) transition(next State) {
	if b.state == next {
		return
	}
	b.state = next
	b.failures = 0
	b.successes = 0
	b.inHalfOpen = 0
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset returns the breaker to the closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
	b.failures = 0
}

// Group manages named circuit breakers sharing one configuration.
type Group struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	config   Config
}

// NewGroup creates a breaker group.
func NewGroup(defaultConfig Config) *Group {
	return &Group{
		breakers: make(map[string]*Breaker),
		config:   defaultConfig,
	}
}

// Get returns or creates the named breaker.
func (g *Group) Get(name string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	if b, exists := g.breakers[name]; exists {
		return b
	}
	cfg := g.config
	cfg.Name = name
	b := NewBreaker(cfg)
	g.breakers[name] = b
	return b
}

// Execute executes fn with the named breaker.
func (g *Group) Execute(ctx context.Context, name string, fn func() error) error {
	return g.Get(name).Execute(ctx, fn)
}

// States returns the state of every breaker in the group.
func (g *Group) States() map[string]State {
	g.mu.Lock()
	defer g.mu.Unlock()

	states := make(map[string]State, len(g.breakers))
	for name, b := range g.breakers {
		states[name] = b.State()
	}
	return states
}
