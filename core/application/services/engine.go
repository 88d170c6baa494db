// Package services exposes the engine operations shared by every transport.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperterse/fanout/core/application/dispatcher"
	"github.com/hyperterse/fanout/core/application/merger"
	"github.com/hyperterse/fanout/core/application/registry"
	"github.com/hyperterse/fanout/core/application/schema"
	"github.com/hyperterse/fanout/core/domain"
	"github.com/hyperterse/fanout/core/infrastructure/logging"
	"github.com/hyperterse/fanout/core/observability"
	"github.com/hyperterse/fanout/core/shared/errors"
)

// EngineOptions tunes an Engine.
type EngineOptions struct {
	// DispatchTimeout bounds a whole RunQuery call. Zero means the caller's
	// context is the only deadline.
	DispatchTimeout time.Duration
}

// Engine is the facade used by the CLI and the HTTP API.
type Engine struct {
	registry   *registry.Registry
	dispatcher *dispatcher.Dispatcher
	comparator *schema.Comparator
	opts       EngineOptions
}

// NewEngine wires the components together. Removing or re-validating a
// connection drops its cached schema.
func NewEngine(reg *registry.Registry, disp *dispatcher.Dispatcher, cmp *schema.Comparator, opts EngineOptions) *Engine {
	if cmp != nil {
		reg.OnInvalidate(cmp.Invalidate)
	}
	return &Engine{registry: reg, dispatcher: disp, comparator: cmp, opts: opts}
}

// AddConnectionRequest describes a connection to register.
type AddConnectionRequest struct {
	Name        string            `json:"name" validate:"required"`
	Kind        string            `json:"kind" validate:"required"`
	Host        string            `json:"host,omitempty"`
	Port        int               `json:"port,omitempty" validate:"gte=0,lte=65535"`
	Database    string            `json:"database" validate:"required"`
	User        string            `json:"user,omitempty"`
	Password    string            `json:"password,omitempty"`
	PasswordEnv string            `json:"password_env,omitempty"`
	Options     map[string]string `json:"options,omitempty"`
	// Validate pings the backend right after registering it.
	Validate bool `json:"validate,omitempty"`
}

// AddConnection registers a profile. When req.Validate is set the profile
// is validated too; a failed validation leaves it registered in the failed
// state and the error is returned alongside the summary.
func (e *Engine) AddConnection(ctx context.Context, req AddConnectionRequest) (domain.ProfileSummary, error) {
	kind, err := domain.ParseBackendKind(req.Kind)
	if err != nil {
		return domain.ProfileSummary{}, errors.NewAppError(errors.ErrCodeInvalidInput, err.Error(), nil)
	}

	params := domain.DialParameters{
		Host:        req.Host,
		Port:        req.Port,
		Database:    req.Database,
		User:        req.User,
		Password:    req.Password,
		PasswordEnv: req.PasswordEnv,
		Options:     req.Options,
	}
	if err := e.registry.Add(ctx, req.Name, kind, params); err != nil {
		return domain.ProfileSummary{}, err
	}

	if !req.Validate {
		return e.summary(req.Name), nil
	}
	err = e.registry.Validate(ctx, req.Name)
	return e.summary(req.Name), err
}

// ValidateConnection connects to and pings one backend.
func (e *Engine) ValidateConnection(ctx context.Context, name string) (domain.ProfileSummary, error) {
	err := e.registry.Validate(ctx, name)
	if errors.IsNotFound(err) {
		return domain.ProfileSummary{}, err
	}
	return e.summary(name), err
}

// RemoveConnection deletes a profile.
func (e *Engine) RemoveConnection(ctx context.Context, name string) error {
	return e.registry.Remove(ctx, name)
}

// ListConnections returns every profile in registration order.
func (e *Engine) ListConnections() []domain.ProfileSummary {
	return e.registry.List()
}

func (e *Engine) summary(name string) domain.ProfileSummary {
	p, ok := e.registry.Get(name)
	if !ok {
		return domain.ProfileSummary{Name: name}
	}
	return p.Summary()
}

// RunQueryRequest is one fan-out invocation.
type RunQueryRequest struct {
	Query       string   `json:"query" validate:"required"`
	Connections []string `json:"connections,omitempty"`
	Merge       string   `json:"merge,omitempty"`
	JoinKey     string   `json:"join_key,omitempty"`
}

// ConnectionResult is one connection's outcome in an unmerged response. A
// successful outcome always carries data, even when it is empty.
type ConnectionResult struct {
	Success    bool                 `json:"success"`
	Columns    []string             `json:"columns,omitzero"`
	Data       []map[string]any     `json:"data,omitzero"`
	RowCount   int                  `json:"row_count"`
	Truncated  bool                 `json:"truncated,omitempty"`
	DurationMS int64                `json:"duration_ms"`
	Error      *domain.OutcomeError `json:"error,omitempty"`

	// Rows keeps the positional values for table rendering.
	Rows [][]any `json:"-"`
}

// MergeMetadata summarizes where merged rows came from.
type MergeMetadata struct {
	TotalRows     int              `json:"total_rows"`
	SourceCount   int              `json:"source_count"`
	RowsPerSource map[string]int   `json:"rows_per_source"`
	MergeType     domain.MergeType `json:"merge_type"`
	KeyColumn     string           `json:"key_column,omitempty"`
}

// RunQueryResponse is the result of RunQuery. Results is set when no merge
// was requested; the merged fields are set otherwise.
type RunQueryResponse struct {
	DispatchID  string                       `json:"dispatch_id"`
	MergeType   domain.MergeType             `json:"merge_type"`
	Connections []string                     `json:"connections"`
	Results     map[string]*ConnectionResult `json:"results,omitempty"`

	Columns         []string             `json:"columns,omitzero"`
	Data            []map[string]any     `json:"data,omitzero"`
	RowCount        int                  `json:"row_count"`
	SourceDatabases []string             `json:"source_databases,omitempty"`
	Errors          []domain.SourceError `json:"errors,omitempty"`
	Metadata        *MergeMetadata       `json:"metadata,omitempty"`

	Rows [][]any `json:"-"`
}

// RunQuery dispatches req.Query to the requested connections and optionally
// merges the outcomes. Per-connection failures are reported in the response;
// only invalid input and merge failures are returned as errors.
func (e *Engine) RunQuery(ctx context.Context, req RunQueryRequest) (*RunQueryResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.NewAppError(errors.ErrCodeInvalidInput, "query is required", nil)
	}
	mergeType, err := domain.ParseMergeType(req.Merge)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrCodeInvalidInput, err.Error(), nil)
	}
	if mergeType == domain.MergeJoin && strings.TrimSpace(req.JoinKey) == "" {
		return nil, errors.NewAppError(errors.ErrCodeInvalidInput, "join merge requires a join key", nil)
	}

	targets := e.registry.Resolve(req.Connections)
	if len(targets) == 0 {
		return nil, errors.NewAppError(errors.ErrCodeInvalidInput, "no connections registered", nil)
	}

	if e.opts.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.DispatchTimeout)
		defer cancel()
	}

	result := e.dispatcher.Dispatch(ctx, req.Query, targets)
	resp := &RunQueryResponse{
		DispatchID:  result.ID,
		MergeType:   mergeType,
		Connections: result.Targets,
	}

	if mergeType == domain.MergeNone {
		resp.Results = make(map[string]*ConnectionResult, len(result.Targets))
		for _, outcome := range result.Ordered() {
			resp.Results[outcome.Connection] = connectionResult(outcome)
			resp.RowCount += outcome.RowCount
		}
		return resp, nil
	}

	merged, err := merger.Merge(mergeType, result.Ordered(), strings.TrimSpace(req.JoinKey))
	observability.RecordMerge(ctx, string(mergeType), err == nil)
	if err != nil {
		logging.New("merger").Warnf("Merge %s failed for dispatch %s: %v", mergeType, result.ID, err)
		return nil, err
	}

	resp.Columns = merged.Columns
	resp.Rows = merged.Rows
	resp.Data = merged.RowObjects()
	resp.RowCount = merged.RowCount()
	resp.SourceDatabases = merged.SourceDatabases
	resp.Errors = merged.Errors
	resp.Metadata = &MergeMetadata{
		TotalRows:     merged.RowCount(),
		SourceCount:   len(merged.SourceDatabases),
		RowsPerSource: merged.RowsPerSource,
		MergeType:     merged.MergeType,
		KeyColumn:     merged.KeyColumn,
	}
	return resp, nil
}

func connectionResult(o *domain.QueryOutcome) *ConnectionResult {
	r := &ConnectionResult{
		Success:    o.Succeeded,
		DurationMS: o.Duration.Milliseconds(),
		Error:      o.Error,
	}
	if o.Succeeded {
		r.Columns = o.Columns
		r.Rows = o.Rows
		r.Data = o.RowObjects()
		r.RowCount = o.RowCount
		r.Truncated = o.Truncated
	}
	return r
}

// CompareSchemas describes the requested connections and diffs their
// schemas.
func (e *Engine) CompareSchemas(ctx context.Context, names []string) (*schema.Report, error) {
	if e.comparator == nil {
		return nil, errors.NewAppError(errors.ErrCodeInternalError, "schema comparison is not configured", nil)
	}
	targets := e.registry.Resolve(names)
	if len(targets) == 0 {
		return nil, errors.NewAppError(errors.ErrCodeInvalidInput, "no connections registered", nil)
	}
	if len(targets) < 2 {
		logging.New("schema").Debugf("Comparing a single connection (%s)", targets[0].Name)
	}
	return e.comparator.Compare(ctx, targets), nil
}

// Close releases every connection handle and the schema cache.
func (e *Engine) Close() error {
	if e.comparator != nil {
		e.comparator.Close()
	}
	if err := e.registry.Close(); err != nil {
		return fmt.Errorf("failed to close connections: %w", err)
	}
	return nil
}
