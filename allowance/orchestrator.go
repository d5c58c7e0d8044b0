// Package allowance makes sure a spender may move an owner's tokens before a transaction
// is built, with at most one approval in flight per (owner, token, spender).
package allowance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/defistate-router-go/failure"
)

const (
	defaultTTL            = 15 * time.Second
	defaultConfirmTimeout = 2 * time.Minute
)

// Config configures an Orchestrator.
type Config struct {
	Reader   Reader
	Approver Approver

	// TTL is how long a read allowance is trusted. Zero means 15s.
	TTL time.Duration
	// ConfirmTimeout bounds the wait for an approval to be mined. Zero means 2m.
	// Expiry fails the request; the submitted transaction is not retracted.
	ConfirmTimeout time.Duration
	// ApprovalAmount maps a required amount to the amount approved. Nil approves exactly
	// the required amount.
	ApprovalAmount func(required *big.Int) *big.Int
	// Now is the clock. Nil means time.Now.
	Now func() time.Time

	Logger   Logger
	Registry prometheus.Registerer
}

func (c *Config) validate() error {
	if c.Reader == nil {
		return errors.New("config: Reader cannot be nil")
	}
	if c.Approver == nil {
		return errors.New("config: Approver cannot be nil")
	}
	if c.TTL < 0 || c.ConfirmTimeout < 0 {
		return errors.New("config: durations cannot be negative")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// record is the orchestrator-owned state of one key. Guarded by Orchestrator.mu.
type record struct {
	state     State
	allowance *big.Int
	checkedAt time.Time
	inflight  *call
}

// call is one in-flight Ensure that other callers for the same key wait on.
type call struct {
	done     chan struct{}
	required *big.Int
	waiters  int
	outcome  Outcome
	err      error
}

// Orchestrator drives the per-key allowance state machine
// Unknown -> Checking -> {Sufficient, Insufficient} -> Approving -> Approved.
// Calls for the same key are serialized; different keys never block each other.
type Orchestrator struct {
	reader         Reader
	approver       Approver
	ttl            time.Duration
	confirmTimeout time.Duration
	approvalAmount func(*big.Int) *big.Int
	now            func() time.Time
	logger         Logger
	metrics        *Metrics

	mu      sync.Mutex
	records map[Key]*record
}

// NewOrchestrator constructs an orchestrator from a configuration, returning an error if the config is invalid.
func NewOrchestrator(cfg *Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		reader:         cfg.Reader,
		approver:       cfg.Approver,
		ttl:            cfg.TTL,
		confirmTimeout: cfg.ConfirmTimeout,
		approvalAmount: cfg.ApprovalAmount,
		now:            cfg.Now,
		logger:         cfg.Logger,
		metrics:        NewMetrics(cfg.Registry),
		records:        make(map[Key]*record),
	}
	if o.ttl == 0 {
		o.ttl = defaultTTL
	}
	if o.confirmTimeout == 0 {
		o.confirmTimeout = defaultConfirmTimeout
	}
	if o.approvalAmount == nil {
		o.approvalAmount = func(required *big.Int) *big.Int { return new(big.Int).Set(required) }
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// State returns the current state of a key.
func (o *Orchestrator) State(key Key) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rec, ok := o.records[key]; ok {
		return rec.state
	}
	return Unknown
}

// Invalidate forgets the cached allowance of a key, e.g. after a swap spent it.
// An in-flight call is not affected.
func (o *Orchestrator) Invalidate(key Key) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rec, ok := o.records[key]; ok && rec.inflight == nil {
		delete(o.records, key)
	}
}

// Ensure returns once spender may move at least required of owner's token, approving
// first when the allowance is short. If another call for the same key is in flight, Ensure
// waits for it: its outcome is shared when it covered at least the same amount, otherwise
// Ensure runs again against the updated state. ctx bounds only this caller's wait and the
// chain calls it makes itself.
func (o *Orchestrator) Ensure(ctx context.Context, key Key, required *big.Int) (Outcome, error) {
	if required == nil || required.Sign() < 0 {
		return Outcome{}, fmt.Errorf("%w: required allowance must be non-negative, got %v", failure.ErrInvalidAmount, required)
	}

	for {
		o.mu.Lock()
		rec := o.recordLocked(key)

		if c := rec.inflight; c != nil {
			c.waiters++
			o.mu.Unlock()

			select {
			case <-c.done:
			case <-ctx.Done():
				return Outcome{}, fmt.Errorf("%w: waiting on in-flight approval for %s: %w", failure.ErrApprovalFailed, key, ctx.Err())
			}

			if c.required.Cmp(required) >= 0 && (c.err == nil || failure.KindOf(c.err) == failure.KindApprovalFailed) {
				o.metrics.shared.Inc()
				return c.outcome, c.err
			}
			continue
		}

		c := &call{done: make(chan struct{}), required: new(big.Int).Set(required)}
		rec.inflight = c
		cached, checkedAt := rec.allowance, rec.checkedAt
		o.mu.Unlock()

		c.outcome, c.err = o.run(ctx, key, c.required, cached, checkedAt)

		o.mu.Lock()
		rec.inflight = nil
		o.mu.Unlock()
		close(c.done)

		return c.outcome, c.err
	}
}

func (o *Orchestrator) recordLocked(key Key) *record {
	rec, ok := o.records[key]
	if !ok {
		rec = &record{state: Unknown}
		o.records[key] = rec
	}
	return rec
}

// run is executed by exactly one caller per key at a time.
func (o *Orchestrator) run(ctx context.Context, key Key, required, cached *big.Int, checkedAt time.Time) (Outcome, error) {
	if cached != nil && o.now().Sub(checkedAt) < o.ttl && cached.Cmp(required) >= 0 {
		o.transition(key, Sufficient, nil)
		return Outcome{State: Sufficient, Allowance: cached}, nil
	}

	// A short or stale cache is always re-read: someone else may have approved or spent.
	o.transition(key, Checking, nil)
	current, err := o.reader.Allowance(ctx, key.Owner, key.Token, key.Spender)
	if err != nil {
		o.metrics.checks.WithLabelValues("error").Inc()
		o.reset(key)
		return Outcome{}, fmt.Errorf("%w: reading allowance for %s: %w", failure.ErrAllowanceCheckFailed, key, err)
	}
	if current == nil {
		current = new(big.Int)
	}

	if current.Cmp(required) >= 0 {
		o.metrics.checks.WithLabelValues("sufficient").Inc()
		o.transition(key, Sufficient, current)
		return Outcome{State: Sufficient, Allowance: current}, nil
	}
	o.metrics.checks.WithLabelValues("insufficient").Inc()
	o.transition(key, Insufficient, current)

	amount := o.approvalAmount(required)
	if amount == nil || amount.Cmp(required) < 0 {
		amount = new(big.Int).Set(required)
	}

	o.transition(key, Approving, nil)
	o.metrics.submitted.Inc()
	tx, err := o.approver.SubmitApproval(ctx, key.Owner, key.Token, key.Spender, amount)
	if err != nil {
		o.metrics.failed.Inc()
		o.reset(key)
		return Outcome{}, fmt.Errorf("%w: submitting approval for %s: %w", failure.ErrApprovalFailed, key, err)
	}
	o.logger.Info("approval submitted", "key", key.String(), "amount", amount, "tx", tx)

	waitCtx, cancel := context.WithTimeout(ctx, o.confirmTimeout)
	defer cancel()
	if err := o.approver.AwaitApproval(waitCtx, tx); err != nil {
		o.metrics.failed.Inc()
		o.reset(key)
		o.logger.Warn("approval failed", "key", key.String(), "tx", tx, "error", err)
		return Outcome{}, fmt.Errorf("%w: approval %s for %s: %w", failure.ErrApprovalFailed, tx.Hex(), key, err)
	}

	o.transition(key, Approved, amount)
	return Outcome{State: Approved, Allowance: amount, TxHash: tx}, nil
}

// transition moves a key to a new state; a non-nil allowance also refreshes the cache.
func (o *Orchestrator) transition(key Key, to State, allowance *big.Int) {
	o.mu.Lock()
	rec := o.recordLocked(key)
	from := rec.state
	rec.state = to
	if allowance != nil {
		rec.allowance = new(big.Int).Set(allowance)
		rec.checkedAt = o.now()
	}
	o.mu.Unlock()

	o.logger.Debug("allowance state", "key", key.String(), "from", from.String(), "to", to.String())
}

// reset returns a key to Unknown so the next request checks from scratch.
func (o *Orchestrator) reset(key Key) {
	o.mu.Lock()
	rec := o.recordLocked(key)
	rec.state = Unknown
	rec.allowance = nil
	rec.checkedAt = time.Time{}
	o.mu.Unlock()
}

// waitersFor reports how many callers are blocked on the in-flight call of key.
func (o *Orchestrator) waitersFor(key Key) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rec, ok := o.records[key]; ok && rec.inflight != nil {
		return rec.inflight.waiters
	}
	return 0
}
