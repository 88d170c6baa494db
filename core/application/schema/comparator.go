// Package schema compares the table layouts of several connections.
package schema

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hyperterse/fanout/core/domain"
	"github.com/hyperterse/fanout/core/domain/interfaces"
	"github.com/hyperterse/fanout/core/infrastructure/logging"
	"github.com/hyperterse/fanout/core/shared/errors"
)

const (
	DefaultCacheTTL        = 30 * time.Second
	DefaultDescribeTimeout = 30 * time.Second
	defaultMaxConcurrency  = 4
)

// HandleSource hands out pinned connection handles.
type HandleSource interface {
	Acquire(ctx context.Context, name string) (interfaces.Handle, func(), error)
}

// Options tunes a Comparator.
type Options struct {
	MaxConcurrency  int
	DescribeTimeout time.Duration
	// CacheTTL is how long a described schema is reused. Zero disables
	// caching.
	CacheTTL time.Duration
}

// Report is the result of comparing several connections. Connections lists
// those that were described successfully; failed ones are in Errors and are
// not counted as missing anything.
type Report struct {
	Connections []string             `json:"connections"`
	Tables      []TableDiff          `json:"tables"`
	Errors      []domain.SourceError `json:"errors"`
}

// HasDifferences reports whether any table differs between connections.
func (r *Report) HasDifferences() bool {
	for _, t := range r.Tables {
		if !t.Consistent() {
			return true
		}
	}
	return false
}

// Comparator describes connections and diffs their schemas. It never changes
// profile state beyond what lazily establishing a handle does.
type Comparator struct {
	source HandleSource
	cache  *schemaCache
	opts   Options
}

// New creates a Comparator.
func New(source HandleSource, opts Options) (*Comparator, error) {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	if opts.DescribeTimeout <= 0 {
		opts.DescribeTimeout = DefaultDescribeTimeout
	}
	cache, err := newSchemaCache()
	if err != nil {
		return nil, fmt.Errorf("failed to create schema cache: %w", err)
	}
	return &Comparator{source: source, cache: cache, opts: opts}, nil
}

// Invalidate drops the cached schema of one connection.
func (c *Comparator) Invalidate(name string) {
	c.cache.Invalidate(name)
}

// Close releases the cache.
func (c *Comparator) Close() {
	c.cache.Close()
}

// Compare describes every target in parallel and diffs the results.
func (c *Comparator) Compare(ctx context.Context, targets []domain.ConnectionProfile) *Report {
	log := logging.New("schema")

	names := make([]string, 0, len(targets))
	seen := make(map[string]bool, len(targets))
	for _, t := range targets {
		if !seen[t.Name] {
			seen[t.Name] = true
			names = append(names, t.Name)
		}
	}

	tables := make([]domain.TableList, len(names))
	failures := make([]*domain.SourceError, len(names))

	var g errgroup.Group
	g.SetLimit(c.opts.MaxConcurrency)
	for i, name := range names {
		g.Go(func() error {
			tables[i], failures[i] = c.describe(ctx, name)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{Connections: []string{}, Errors: []domain.SourceError{}}
	schemas := make(map[string]domain.TableList, len(names))
	for i, name := range names {
		if failures[i] != nil {
			report.Errors = append(report.Errors, *failures[i])
			continue
		}
		report.Connections = append(report.Connections, name)
		schemas[name] = tables[i]
	}
	report.Tables = Diff(report.Connections, schemas)

	log.Debugf("Compared %d connection(s): %d table(s), %d error(s)", len(report.Connections), len(report.Tables), len(report.Errors))
	return report
}

func (c *Comparator) describe(ctx context.Context, name string) (domain.TableList, *domain.SourceError) {
	if tables, ok := c.cache.Get(name); ok {
		return tables, nil
	}
	gen := c.cache.generation(name)

	dctx, cancel := context.WithTimeout(ctx, c.opts.DescribeTimeout)
	defer cancel()

	h, release, err := c.source.Acquire(dctx, name)
	if err != nil {
		return nil, describeError(dctx, name, err)
	}
	defer release()

	tables, err := h.Describe(dctx)
	if err != nil {
		return nil, describeError(dctx, name, err)
	}

	c.cache.Set(name, gen, tables, c.opts.CacheTTL)
	return tables, nil
}

func describeError(ctx context.Context, name string, err error) *domain.SourceError {
	kind := errors.ErrCodeDriverError
	switch {
	case errors.IsNotFound(err):
		kind = errors.ErrCodeNotFound
	case ctx.Err() == context.Canceled:
		kind = errors.ErrCodeCancelled
	case ctx.Err() != nil:
		kind = errors.ErrCodeTimeout
	case errors.HasCode(err, errors.ErrCodeDialFailure):
		kind = errors.ErrCodeDialFailure
	}
	msg := err.Error()
	if kind == errors.ErrCodeNotFound {
		msg = fmt.Sprintf("Connection '%s' not found", name)
	}
	return &domain.SourceError{Connection: name, Kind: kind, Message: msg}
}
