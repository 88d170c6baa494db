// Package dispatcher runs one query against many connections concurrently
// and collects an independent outcome for each.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/hyperterse/fanout/core/application/normalizer"
	"github.com/hyperterse/fanout/core/domain"
	"github.com/hyperterse/fanout/core/domain/interfaces"
	"github.com/hyperterse/fanout/core/infrastructure/logging"
	"github.com/hyperterse/fanout/core/observability"
	ctxutil "github.com/hyperterse/fanout/core/shared/context"
	"github.com/hyperterse/fanout/core/shared/errors"
)

const (
	DefaultMaxConcurrency = 4
	DefaultQueryTimeout   = 30 * time.Second
)

// HandleSource hands out pinned connection handles.
type HandleSource interface {
	Acquire(ctx context.Context, name string) (interfaces.Handle, func(), error)
}

// Options tunes a Dispatcher. Zero values select the defaults.
type Options struct {
	// MaxConcurrency bounds how many connections are queried at once.
	MaxConcurrency int
	// QueryTimeout bounds each connection's execution independently.
	QueryTimeout time.Duration
	// MaxRows truncates each outcome when positive.
	MaxRows int
}

// Dispatcher implements interfaces.Dispatcher
type Dispatcher struct {
	source HandleSource
	opts   Options
}

// New creates a Dispatcher that acquires handles from source.
func New(source HandleSource, opts Options) *Dispatcher {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	if opts.MaxRows < 0 {
		opts.MaxRows = 0
	}
	return &Dispatcher{source: source, opts: opts}
}

// Dispatch executes query unmodified on every target and returns an outcome
// for each one. A failure on one connection never affects another. The
// deadline carried by ctx bounds the whole dispatch; units that have not
// started when it expires are reported as timed out without touching their
// backend.
func (d *Dispatcher) Dispatch(ctx context.Context, query string, targets []domain.ConnectionProfile) *domain.DispatchResult {
	ctx, id := ctxutil.EnsureDispatchID(ctx)
	log := logging.New("dispatcher").With("dispatch_id", id)

	unique := make([]domain.ConnectionProfile, 0, len(targets))
	seen := make(map[string]bool, len(targets))
	for _, t := range targets {
		if seen[t.Name] {
			continue
		}
		seen[t.Name] = true
		unique = append(unique, t)
	}

	ctx, span := observability.StartSpan(ctx, "fanout.dispatch",
		attribute.String(observability.AttrDispatchID, id),
		attribute.Int(observability.AttrTargetCount, len(unique)),
	)
	defer span.End()

	log.Debugf("Dispatching to %d target(s), concurrency %d", len(unique), d.opts.MaxConcurrency)

	outcomes := make([]*domain.QueryOutcome, len(unique))
	var g errgroup.Group
	g.SetLimit(d.opts.MaxConcurrency)
	for i, target := range unique {
		g.Go(func() error {
			outcomes[i] = d.runUnit(ctx, query, target)
			return nil
		})
	}
	_ = g.Wait()

	result := &domain.DispatchResult{
		ID:       id,
		Query:    query,
		Targets:  make([]string, len(unique)),
		Outcomes: make(map[string]*domain.QueryOutcome, len(unique)),
	}
	for i, target := range unique {
		result.Targets[i] = target.Name
		result.Outcomes[target.Name] = outcomes[i]
	}

	log.Debugf("Dispatch finished: %d/%d succeeded", result.Succeeded(), len(unique))
	return result
}

type unitResult struct {
	raw *domain.RawResult
	err error
}

func (d *Dispatcher) runUnit(ctx context.Context, query string, target domain.ConnectionProfile) (outcome *domain.QueryOutcome) {
	start := time.Now()
	log := logging.New("dispatch:"+target.Name).With("dispatch_id", ctxutil.GetDispatchID(ctx))

	ctx, span := observability.StartSpan(ctx, "fanout.dispatch.unit",
		attribute.String(observability.AttrConnectionName, target.Name),
		attribute.String(observability.AttrBackendKind, string(target.Kind)),
	)
	defer func() {
		outcome.Duration = time.Since(start)
		label := observability.OutcomeSuccess
		if !outcome.Succeeded {
			label = string(outcome.Error.Kind)
			span.SetStatus(codes.Error, outcome.Error.Message)
			log.Warnf("Query failed after %s: %s", outcome.Duration, outcome.Error.Error())
		} else {
			log.Debugf("Query returned %d row(s) in %s", outcome.RowCount, outcome.Duration)
		}
		span.SetAttributes(
			attribute.String(observability.AttrOutcome, label),
			attribute.Int(observability.AttrRowCount, outcome.RowCount),
		)
		span.End()
		observability.RecordDispatchUnit(ctx, string(target.Kind), label, outcome.Duration)
	}()

	if err := ctx.Err(); err != nil {
		return domain.FailedOutcome(target.Name, contextKind(ctx), "dispatch deadline reached before the query started")
	}

	unitCtx, cancel := context.WithTimeout(ctx, d.opts.QueryTimeout)
	defer cancel()

	// The driver call runs on its own goroutine so a driver that ignores
	// cancellation cannot hold the unit past its deadline.
	done := make(chan unitResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- unitResult{err: fmt.Errorf("driver panic: %v", r)}
			}
		}()

		h, release, err := d.source.Acquire(unitCtx, target.Name)
		if err != nil {
			done <- unitResult{err: err}
			return
		}
		defer release()

		raw, err := h.Execute(unitCtx, query)
		done <- unitResult{raw: raw, err: err}
	}()

	var res unitResult
	select {
	case res = <-done:
	case <-unitCtx.Done():
		// A result that landed together with the deadline still counts.
		select {
		case res = <-done:
		default:
			res = unitResult{err: unitCtx.Err()}
		}
	}

	if res.err != nil {
		return d.failure(ctx, unitCtx, target.Name, res.err)
	}
	return d.success(target.Name, res.raw)
}

func (d *Dispatcher) success(name string, raw *domain.RawResult) *domain.QueryOutcome {
	columns, rows := normalizer.Normalize(raw)
	truncated := false
	if d.opts.MaxRows > 0 && len(rows) > d.opts.MaxRows {
		rows = rows[:d.opts.MaxRows]
		truncated = true
	}
	return &domain.QueryOutcome{
		Connection: name,
		Succeeded:  true,
		Columns:    columns,
		Rows:       rows,
		RowCount:   len(rows),
		Truncated:  truncated,
	}
}

// failure classifies err. Registry errors keep their own code; anything that
// coincides with an expired context is a timeout or a cancellation; the rest
// is a driver error.
func (d *Dispatcher) failure(ctx, unitCtx context.Context, name string, err error) *domain.QueryOutcome {
	if errors.IsNotFound(err) {
		return domain.FailedOutcome(name, errors.ErrCodeNotFound, fmt.Sprintf("Connection '%s' not found", name))
	}
	if unitCtx.Err() != nil {
		kind := contextKind(ctx)
		msg := "dispatch cancelled"
		if kind == errors.ErrCodeTimeout {
			msg = fmt.Sprintf("query did not complete within %s", d.opts.QueryTimeout)
			if ctx.Err() != nil {
				msg = "dispatch deadline exceeded"
			}
		}
		return domain.FailedOutcome(name, kind, msg)
	}
	if errors.HasCode(err, errors.ErrCodeDialFailure) {
		return domain.FailedOutcome(name, errors.ErrCodeDialFailure, err.Error())
	}
	return domain.FailedOutcome(name, errors.ErrCodeDriverError, err.Error())
}

// contextKind maps the caller's context state to an outcome kind: explicit
// cancellation is CANCELLED, anything else (own or per-unit deadline) is
// TIMEOUT.
func contextKind(ctx context.Context) errors.ErrorCode {
	if ctx.Err() == context.Canceled {
		return errors.ErrCodeCancelled
	}
	return errors.ErrCodeTimeout
}

var _ interfaces.Dispatcher = (*Dispatcher)(nil)
