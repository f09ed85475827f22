package authorize

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vthunder/demerzel/internal/ledger"
	"github.com/vthunder/demerzel/internal/logging"
	"github.com/vthunder/demerzel/internal/types"
)

// Decision reasons
const (
	ReasonUnknownTool       = "not in allowed toolspace"
	ReasonHarm              = "harmful intent"
	ReasonNeedsConfirmation = "please confirm what you want"
	ReasonAllowed           = "allowed"
	ReasonObservational     = "observational"
	ReasonLedgerUnavailable = "ledger unavailable"
	ReasonCollision         = "permit collision"
)

// GateConfig tunes permit minting
type GateConfig struct {
	PermitBucket time.Duration `yaml:"permit_bucket"`
}

// Gate decides whether a tool request may proceed and records every decision.
// Evaluations are serialized: the collision lookup and the append of the
// decision happen under one lock, so two requests can't both claim a permit.
type Gate struct {
	registry *Registry
	ledger   *ledger.Ledger
	cfg      GateConfig
	clock    func() time.Time

	mu sync.Mutex
}

// NewGate creates a gate over a registry and ledger
func NewGate(registry *Registry, l *ledger.Ledger, cfg GateConfig) *Gate {
	if cfg.PermitBucket <= 0 {
		cfg.PermitBucket = DefaultPermitBucket
	}
	return &Gate{
		registry: registry,
		ledger:   l,
		cfg:      cfg,
		clock:    time.Now,
	}
}

// WithClock overrides the clock for testing
func (g *Gate) WithClock(clock func() time.Time) *Gate {
	g.clock = clock
	return g
}

// Registry returns the gate's capability table
func (g *Gate) Registry() *Registry {
	return g.registry
}

// Evaluate decides req. Every call appends exactly one ledger entry; a permit
// is only returned once its entry is stored. If the ledger can't be written
// the answer is DENY.
func (g *Gate) Evaluate(ctx context.Context, req types.ToolRequest) types.ToolDecision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	entry := ledger.Entry{
		Timestamp:  now,
		Tool:       req.Name,
		Args:       types.CloneArgs(req.Args),
		UserIntent: req.UserIntent,
	}
	entry.Outcome, entry.Reason, entry.Permit = g.decide(ctx, req, now)

	stored, err := g.ledger.Append(ctx, entry)
	if err != nil {
		logging.Warn("gate", "ledger append failed for %s: %v", req.Name, err)
		return types.ToolDecision{Outcome: types.OutcomeDeny, Reason: ReasonLedgerUnavailable}
	}

	d := types.ToolDecision{
		Outcome:  stored.Outcome,
		Reason:   stored.Reason,
		Sequence: stored.Sequence,
	}
	if stored.Outcome == types.OutcomeAllow {
		d.Permit = stored.Permit
	}
	if d.Outcome == types.OutcomeAllow {
		logging.Debug("gate", "#%d ALLOW %s (%s)", stored.Sequence, req.Name, stored.Reason)
	} else {
		logging.Info("gate", "#%d %s %s: %s [intent: %q]", stored.Sequence, d.Outcome, req.Name, d.Reason,
			logging.Truncate(req.UserIntent, 60))
	}
	return d
}

// decide runs the checks in order. The permit key is returned for every
// world-affecting request that got past the registry and argument checks,
// whatever the outcome, so denied rows are findable by it too.
func (g *Gate) decide(ctx context.Context, req types.ToolRequest, now time.Time) (types.Outcome, string, string) {
	tool, ok := g.registry.Lookup(req.Name)
	if !ok {
		return types.OutcomeDeny, ReasonUnknownTool, ""
	}

	if bad := disallowedKeys(tool, req.Args); len(bad) > 0 {
		return types.OutcomeDeny, fmt.Sprintf("argument %q not allowed for %s", bad[0], tool.Name), ""
	}

	if !tool.WorldAffecting {
		return types.OutcomeAllow, ReasonObservational, ""
	}

	permit, err := MintPermit(tool.Name, req.Args, req.UserIntent, now, g.cfg.PermitBucket)
	if err != nil {
		return types.OutcomeDeny, "arguments not canonicalizable", ""
	}

	intent := types.Normalize(req.UserIntent)
	if HarmIndicated(intent) {
		return types.OutcomeDeny, ReasonHarm, permit
	}
	if tool.RequiresExplicitIntent && !ExplicitIntent(intent) {
		return types.OutcomeClarify, ReasonNeedsConfirmation, permit
	}

	if reason, clash := g.collision(ctx, req, permit); clash {
		return types.OutcomeDeny, reason, permit
	}
	return types.OutcomeAllow, ReasonAllowed, permit
}

// collision reports whether permit already names a different request, which
// would let one grant authorize two calls. A failed lookup also refuses.
func (g *Gate) collision(ctx context.Context, req types.ToolRequest, permit string) (string, bool) {
	existing, err := g.ledger.FindLatestByPermit(ctx, permit)
	if err != nil {
		logging.Warn("gate", "permit lookup failed: %v", err)
		return ReasonLedgerUnavailable, true
	}
	if existing == nil {
		return "", false
	}
	candidate := ledger.Entry{Tool: req.Name, Args: req.Args, UserIntent: req.UserIntent}
	if ledger.SameRequest(*existing, candidate) {
		return "", false
	}
	logging.Security("gate", "permit %s already issued for %s (#%d), refusing %s",
		permit[:12], existing.Tool, existing.Sequence, req.Name)
	return ReasonCollision, true
}

func disallowedKeys(tool Tool, args map[string]any) []string {
	var bad []string
	for k := range args {
		if !tool.Allows(k) {
			bad = append(bad, k)
		}
	}
	sort.Strings(bad)
	return bad
}
