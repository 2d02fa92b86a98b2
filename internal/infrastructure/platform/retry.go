package platform

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/erp/migrator/internal/domain/migration"
	"github.com/erp/migrator/internal/infrastructure/logger"
)

// RetryPolicy describes exponential backoff with jitter around collaborator calls.
type RetryPolicy struct {
	// Attempts is the number of retries after the first call. Zero disables retrying.
	Attempts  uint64
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    time.Duration
}

// DefaultRetryPolicy is used when no policy is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  3,
		BaseDelay: 200 * time.Millisecond,
		MaxDelay:  30 * time.Second,
		Jitter:    100 * time.Millisecond,
	}
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultRetryPolicy().BaseDelay
	}
	b := retry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	if p.Jitter > 0 {
		b = retry.WithJitter(p.Jitter, b)
	}
	return retry.WithMaxRetries(p.Attempts, b)
}

// do runs fn under the policy. Only transient errors are retried.
func (p RetryPolicy) do(ctx context.Context, log *zap.Logger, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || !IsTransient(err) {
			return err
		}
		logger.WithLogger(ctx, log).Warn("Transient failure, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return retry.RetryableError(err)
	})
}

// RetryingTarget retries transient target failures with backoff. Creates are
// retried too, so the wrapped target must only report a create as transient
// when it is known not to have happened.
type RetryingTarget struct {
	next   migration.TargetSystem
	policy RetryPolicy
	logger *zap.Logger
}

// NewRetryingTarget wraps next
func NewRetryingTarget(next migration.TargetSystem, policy RetryPolicy, log *zap.Logger) *RetryingTarget {
	if log == nil {
		log = zap.NewNop()
	}
	return &RetryingTarget{next: next, policy: policy, logger: log}
}

var _ migration.TargetSystem = (*RetryingTarget)(nil)

// Create implements migration.TargetSystem
func (r *RetryingTarget) Create(ctx context.Context, model string, values migration.TransformedRecord) (migration.TargetID, error) {
	var id migration.TargetID
	err := r.policy.do(ctx, r.logger, "create "+model, func(ctx context.Context) error {
		var err error
		id, err = r.next.Create(ctx, model, values)
		return err
	})
	return id, err
}

// Search implements migration.TargetSystem
func (r *RetryingTarget) Search(ctx context.Context, model string, filters []migration.Filter) ([]migration.TargetID, error) {
	var ids []migration.TargetID
	err := r.policy.do(ctx, r.logger, "search "+model, func(ctx context.Context) error {
		var err error
		ids, err = r.next.Search(ctx, model, filters)
		return err
	})
	return ids, err
}

// SearchRead implements migration.TargetSystem
func (r *RetryingTarget) SearchRead(ctx context.Context, model string, filters []migration.Filter, fields []string) ([]map[string]any, error) {
	var rows []map[string]any
	err := r.policy.do(ctx, r.logger, "search_read "+model, func(ctx context.Context) error {
		var err error
		rows, err = r.next.SearchRead(ctx, model, filters, fields)
		return err
	})
	return rows, err
}

// RetryingSource retries a transient extraction failure with backoff
type RetryingSource struct {
	next   migration.SourceExtractor
	policy RetryPolicy
	logger *zap.Logger
}

// NewRetryingSource wraps next
func NewRetryingSource(next migration.SourceExtractor, policy RetryPolicy, log *zap.Logger) *RetryingSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &RetryingSource{next: next, policy: policy, logger: log}
}

var _ migration.SourceExtractor = (*RetryingSource)(nil)

// ExtractAll implements migration.SourceExtractor
func (r *RetryingSource) ExtractAll(ctx context.Context) (migration.ExtractedData, error) {
	var data migration.ExtractedData
	err := r.policy.do(ctx, r.logger, "extract", func(ctx context.Context) error {
		var err error
		data, err = r.next.ExtractAll(ctx)
		return err
	})
	return data, err
}
