package effectors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vthunder/demerzel/internal/authorize"
	"github.com/vthunder/demerzel/internal/ledger"
	"github.com/vthunder/demerzel/internal/logging"
	"github.com/vthunder/demerzel/internal/types"
)

// Defaults for BoundaryConfig
const (
	DefaultPermitMaxAge = 30 * time.Second
	DefaultRate         = 2.0
	DefaultBurst        = 3
)

// BoundaryConfig bounds permit age and actuator call rate
type BoundaryConfig struct {
	PermitMaxAge time.Duration `yaml:"permit_max_age"`
	Rate         float64       `yaml:"actuator_rate"` // calls per second
	Burst        int           `yaml:"actuator_burst"`
}

// Boundary is the only path from a decision to an actuator. It trusts
// nothing but the ledger: the permit string is a lookup key, and the row it
// finds must be an ALLOW for exactly this tool and these arguments, young
// enough, and not yet used.
type Boundary struct {
	mu        sync.Mutex
	registry  *authorize.Registry
	ledger    *ledger.Ledger
	actuators map[string]Actuator
	consumed  map[uint64]bool // ledger sequences already executed
	limiter   *rate.Limiter
	cfg       BoundaryConfig
	clock     func() time.Time
	startedAt time.Time
}

// NewBoundary creates a boundary. Permits recorded before this call are
// refused as stale.
func NewBoundary(registry *authorize.Registry, l *ledger.Ledger, cfg BoundaryConfig) *Boundary {
	if cfg.PermitMaxAge <= 0 {
		cfg.PermitMaxAge = DefaultPermitMaxAge
	}
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	b := &Boundary{
		registry:  registry,
		ledger:    l,
		actuators: make(map[string]Actuator),
		consumed:  make(map[uint64]bool),
		limiter:   rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		cfg:       cfg,
		clock:     time.Now,
	}
	b.startedAt = b.clock()
	return b
}

// WithClock overrides the clock for testing and restarts the stale cutoff
// at the new clock's now.
func (b *Boundary) WithClock(clock func() time.Time) *Boundary {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clock = clock
	b.startedAt = clock()
	return b
}

// Register binds an actuator to a registered tool
func (b *Boundary) Register(tool string, a Actuator) error {
	if _, ok := b.registry.Lookup(tool); !ok {
		return fmt.Errorf("register actuator: %q is not a registered tool", tool)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.actuators[tool]; exists {
		return fmt.Errorf("register actuator: %q already has an actuator", tool)
	}
	b.actuators[tool] = a
	return nil
}

// Has reports whether tool has an actuator
func (b *Boundary) Has(tool string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.actuators[tool]
	return ok
}

// Run invokes tool's actuator if permit authorizes exactly this call.
// Observational tools need no permit. Any refusal wraps ErrRefused and the
// actuator is never called.
func (b *Boundary) Run(ctx context.Context, tool string, args map[string]any, permit string) (string, error) {
	actuator, err := b.admit(ctx, tool, args, permit)
	if err != nil {
		logging.Security("boundary", "refused %s (permit %q): %v", tool, shortPermit(permit), err)
		return "", err
	}
	result, err := actuator.Invoke(ctx, types.CloneArgs(args))
	if err != nil {
		return "", fmt.Errorf("%s: %w", tool, err)
	}
	logging.Debug("boundary", "ran %s: %s", tool, logging.Truncate(result, 60))
	return result, nil
}

// admit performs every check and, on success, consumes the permit's ledger
// row before returning. The lock covers check-and-consume so a permit can't
// be spent twice concurrently.
func (b *Boundary) admit(ctx context.Context, tool string, args map[string]any, permit string) (Actuator, error) {
	def, ok := b.registry.Lookup(tool)
	if !ok {
		return nil, ErrUnknownTool
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	actuator, ok := b.actuators[tool]
	if !ok {
		return nil, ErrNoActuator
	}

	if !def.WorldAffecting {
		if !b.limiter.Allow() {
			return nil, ErrRateLimited
		}
		return actuator, nil
	}

	if permit == "" {
		return nil, ErrNoPermit
	}
	entry, err := b.ledger.FindLatestByPermit(ctx, permit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermitNotFound, err)
	}
	if entry == nil {
		return nil, ErrPermitNotFound
	}
	if entry.Outcome != types.OutcomeAllow {
		return nil, fmt.Errorf("%w (#%d is %s: %s)", ErrNotAllowed, entry.Sequence, entry.Outcome, entry.Reason)
	}
	if entry.Timestamp.Before(b.startedAt) {
		return nil, fmt.Errorf("%w (#%d)", ErrPermitStale, entry.Sequence)
	}
	if age := b.clock().Sub(entry.Timestamp); age > b.cfg.PermitMaxAge {
		return nil, fmt.Errorf("%w (#%d is %s old)", ErrPermitExpired, entry.Sequence, age.Round(time.Millisecond))
	}
	presented := ledger.Entry{Tool: tool, Args: args, UserIntent: entry.UserIntent}
	if !ledger.SameRequest(*entry, presented) {
		return nil, fmt.Errorf("%w (#%d granted %s)", ErrPermitMismatch, entry.Sequence, entry.Tool)
	}
	if b.consumed[entry.Sequence] {
		return nil, fmt.Errorf("%w (#%d)", ErrPermitConsumed, entry.Sequence)
	}
	if !b.limiter.Allow() {
		return nil, ErrRateLimited
	}

	b.consumed[entry.Sequence] = true
	return actuator, nil
}

func shortPermit(p string) string {
	if len(p) > 12 {
		return p[:12]
	}
	return p
}
