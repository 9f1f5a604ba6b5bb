package calls

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory call store for tests and early development.
// Merge semantics mirror the Postgres implementation exactly.
type MemoryRepo struct {
	mu      sync.Mutex
	calls   map[string]CallRecord // by call_id
	metrics map[string]MetricsRecord

	// FailNext makes the next n operations return an error, for
	// exercising retry and degradation paths.
	FailNext int
	FailErr  error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		calls:   map[string]CallRecord{},
		metrics: map[string]MetricsRecord{},
	}
}

func (r *MemoryRepo) fail() error {
	if r.FailNext > 0 {
		r.FailNext--
		if r.FailErr != nil {
			return r.FailErr
		}
		return errors.New("memory repo: injected failure")
	}
	return nil
}

func (r *MemoryRepo) Upsert(ctx context.Context, up CallUpsert) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return CallRecord{}, err
	}

	now := time.Now().UTC()
	rec, ok := r.calls[up.CallID]
	if !ok {
		rec = CallRecord{
			ID:        uuid.NewString(),
			CallID:    up.CallID,
			Status:    CallStatusInitiated,
			CreatedAt: now,
		}
	}
	if up.PhoneNumber != nil {
		rec.PhoneNumber = *up.PhoneNumber
	}
	if up.Status != nil {
		rec.Status = *up.Status
	}
	if up.Language != nil {
		rec.Language = *up.Language
	}
	if up.StartedAt != nil {
		rec.StartedAt = up.StartedAt
	}
	if up.EndedAt != nil {
		rec.EndedAt = up.EndedAt
	}
	if up.DurationMs != nil {
		rec.DurationMs = up.DurationMs
	}
	if up.Transcript != nil && *up.Transcript != "" {
		if rec.Transcript == "" {
			rec.Transcript = *up.Transcript
		} else {
			rec.Transcript = rec.Transcript + "\n" + *up.Transcript
		}
	}
	if up.Metadata != nil {
		rec.Metadata = up.Metadata
	}
	rec.UpdatedAt = now
	r.calls[up.CallID] = rec
	return rec, nil
}

func (r *MemoryRepo) Get(ctx context.Context, callID string) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return CallRecord{}, err
	}
	rec, ok := r.calls[callID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepo) List(ctx context.Context, f ListFilter) ([]CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return nil, err
	}

	out := make([]CallRecord, 0)
	for _, rec := range r.calls {
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && rec.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !rec.CreatedAt.Before(f.To) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []CallRecord{}, nil
		}
		out = out[f.Offset:]
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) UpdateSummary(ctx context.Context, callID string, su SummaryUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return err
	}
	rec, ok := r.calls[callID]
	if !ok {
		return ErrNotFound
	}
	if su.CostUSD != nil {
		rec.VapiCostUSD = su.CostUSD
	}
	if su.TelephonyCost != nil {
		rec.VapiTelephonyCost = su.TelephonyCost
	}
	if su.STTCost != nil {
		rec.VapiSTTCost = su.STTCost
	}
	if su.TTSCost != nil {
		rec.VapiTTSCost = su.TTSCost
	}
	if su.AICost != nil {
		rec.VapiAICost = su.AICost
	}
	if su.TokensUsed != nil {
		rec.VapiTokensUsed = su.TokensUsed
	}
	if su.ModelUsed != nil {
		rec.VapiModelUsed = su.ModelUsed
	}
	if su.RecordingURL != nil {
		rec.VapiRecordingURL = su.RecordingURL
	}
	if su.FunctionCallsCount != nil {
		rec.VapiFunctionCallsCount = su.FunctionCallsCount
	}
	if su.HangupReason != nil {
		rec.VapiHangupReason = su.HangupReason
	}
	if su.Direction != nil {
		rec.VapiDirection = su.Direction
	}
	if su.Transferred != nil {
		rec.VapiTransferred = su.Transferred
	}
	rec.UpdatedAt = time.Now().UTC()
	r.calls[callID] = rec
	return nil
}

func (r *MemoryRepo) UpsertMetrics(ctx context.Context, rec MetricsRecord) (MetricsRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return MetricsRecord{}, err
	}

	now := time.Now().UTC()
	if old, ok := r.metrics[rec.CallID]; ok {
		rec.ID = old.ID
		rec.CreatedAt = old.CreatedAt
	} else {
		rec.ID = uuid.NewString()
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	r.metrics[rec.CallID] = rec
	return rec, nil
}

func (r *MemoryRepo) GetMetrics(ctx context.Context, callID string) (MetricsRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return MetricsRecord{}, err
	}
	rec, ok := r.metrics[callID]
	if !ok {
		return MetricsRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepo) ListMetrics(ctx context.Context, f MetricsFilter) ([]MetricsRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return nil, err
	}

	out := make([]MetricsRecord, 0)
	for _, rec := range r.metrics {
		if !f.From.IsZero() && rec.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !rec.CreatedAt.Before(f.To) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
