package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/metrics"
)

// ErrMissingKey is returned when an operation is submitted without a client key.
var ErrMissingKey = errors.New("idempotency key is required")

// Guard replays the cached outcome of a successful operation when the same
// client key, operation kind and parameters are submitted again. Failed
// executions are not cached, so they stay retryable under the same key; the
// one exception is a failure raised after balances already moved.
type Guard struct {
	store   Store
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
	flights singleflight.Group
}

// Option customises a Guard.
type Option func(*Guard)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

// WithMetrics enables lookup counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

// NewGuard builds a guard over store.
func NewGuard(store Store, opts ...Option) *Guard {
	g := &Guard{
		store:  store,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type flightResult struct {
	fingerprint string
	result      []byte
}

// Do executes op at most once per (clientKey, kind, params) within the TTL
// and returns its JSON-encoded result. Reusing clientKey with different
// params or a different kind fails with DUPLICATE_IDEMPOTENT_REQUEST.
// Concurrent calls sharing a client key collapse onto a single execution.
func (g *Guard) Do(ctx context.Context, clientKey, kind string, params any, op func(context.Context) ([]byte, error)) ([]byte, error) {
	if clientKey == "" {
		return nil, ErrMissingKey
	}
	canonical, err := Canonicalize(params)
	if err != nil {
		return nil, err
	}
	fingerprint := Fingerprint(clientKey, kind, canonical)

	for {
		// The flight is shared by every caller with this key, so it must not
		// die with whichever caller happened to start it. Each caller still
		// stops waiting when its own ctx ends.
		flightCtx := context.WithoutCancel(ctx)
		ch := g.flights.DoChan(clientKey, func() (any, error) {
			result, err := g.execute(flightCtx, clientKey, kind, fingerprint, canonical, op)
			return flightResult{fingerprint: fingerprint, result: result}, err
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res = <-ch:
		}

		flight := res.Val.(flightResult)
		if flight.fingerprint != fingerprint {
			// Joined another caller's flight under the same key with different
			// params; go again so this call is judged against the store.
			continue
		}
		return flight.result, res.Err
	}
}

func (g *Guard) execute(ctx context.Context, clientKey, kind, fingerprint string, canonical []byte, op func(context.Context) ([]byte, error)) ([]byte, error) {
	rec, found, err := g.store.Get(ctx, clientKey)
	if err != nil {
		return nil, err
	}
	if found {
		if rec.Fingerprint != fingerprint {
			g.metrics.RecordIdempotencyLookup(kind, "mismatch")
			g.logger.Warn("idempotency key reused with different parameters",
				slog.String("key", clientKey),
				slog.String("operation", kind),
				slog.String("original_operation", rec.Kind))
			return nil, ledger.NewError(ledger.CodeDuplicateIdempotency,
				"idempotency key "+clientKey+" was already used with different parameters",
				map[string]any{"idempotency_key": clientKey, "operation": kind, "original_operation": rec.Kind})
		}
		g.metrics.RecordIdempotencyLookup(kind, "hit")
		g.logger.Debug("idempotent replay", slog.String("key", clientKey), slog.String("operation", kind))
		if rec.Failure != nil {
			return nil, rec.Failure.Err()
		}
		return rec.Result, nil
	}

	g.metrics.RecordIdempotencyLookup(kind, "miss")
	result, err := op(ctx)
	if err != nil {
		// A failure that already moved balances is recorded like a success:
		// running the operation again would move them twice.
		if failure, ok := appliedFailure(err); ok {
			g.persist(ctx, g.record(clientKey, kind, fingerprint, canonical, nil, failure))
		}
		return nil, err
	}

	g.persist(ctx, g.record(clientKey, kind, fingerprint, canonical, result, nil))
	return result, nil
}

func (g *Guard) record(clientKey, kind, fingerprint string, canonical, result []byte, failure *Failure) Record {
	now := g.now()
	return Record{
		Fingerprint: fingerprint,
		Key:         clientKey,
		Kind:        kind,
		Params:      canonical,
		Result:      result,
		Failure:     failure,
		CreatedAt:   now,
		ExpiresAt:   now.Add(g.ttl),
	}
}

func (g *Guard) persist(ctx context.Context, rec Record) {
	if err := g.store.Put(ctx, rec); err != nil {
		// The operation already took effect; report it rather than fail the caller.
		g.logger.Error("failed to persist idempotency record",
			slog.String("key", rec.Key),
			slog.String("operation", rec.Kind),
			slog.Any("error", err))
	}
}

func appliedFailure(err error) (*Failure, bool) {
	if !ledger.BalancesApplied(err) {
		return nil, false
	}
	var coded ledger.Coded
	if !errors.As(err, &coded) {
		return nil, false
	}
	meta := make(map[string]any, len(coded.Metadata()))
	for k, v := range coded.Metadata() {
		meta[k] = v
	}
	return &Failure{Code: coded.ErrorCode(), Message: coded.Error(), Meta: meta}, true
}

// Execute is the typed form of Guard.Do. The result is JSON-encoded for the
// record, and every caller, including the first, receives the decoded value
// so replays are indistinguishable from the original response.
func Execute[T any](ctx context.Context, g *Guard, clientKey, kind string, params any, op func(context.Context) (T, error)) (T, error) {
	var out T
	raw, err := g.Do(ctx, clientKey, kind, params, func(ctx context.Context) ([]byte, error) {
		v, err := op(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

// RunJanitor sweeps expired records every interval until ctx ends. Stores
// without a Sweeper, such as Redis with native expiry, make it return at once.
func (g *Guard) RunJanitor(ctx context.Context, interval time.Duration) {
	sweeper, ok := g.store.(Sweeper)
	if !ok || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sweeper.Sweep(ctx)
			if err != nil {
				g.logger.Warn("idempotency sweep failed", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				g.logger.Debug("idempotency records evicted", slog.Int("count", removed))
			}
		}
	}
}
