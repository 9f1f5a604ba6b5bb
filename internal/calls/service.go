package calls

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"support-console/internal/breaker"
	"support-console/internal/vapimetrics"
)

// Repository abstracts call persistence so the service can run against
// Postgres in deployment and MemoryRepo in tests.
type Repository interface {
	Upsert(ctx context.Context, up CallUpsert) (CallRecord, error)
	Get(ctx context.Context, callID string) (CallRecord, error)
	List(ctx context.Context, f ListFilter) ([]CallRecord, error)
	UpdateSummary(ctx context.Context, callID string, su SummaryUpdate) error
	UpsertMetrics(ctx context.Context, rec MetricsRecord) (MetricsRecord, error)
	GetMetrics(ctx context.Context, callID string) (MetricsRecord, error)
	ListMetrics(ctx context.Context, f MetricsFilter) ([]MetricsRecord, error)
}

type ListFilter struct {
	Status CallStatus
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

type MetricsFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

// Service fronts the repository with retry and load-shedding. Storage
// failures are absorbed: after the shim gives up the caller gets a nil,
// false or empty result and the error goes to the log only. Call handling
// must keep moving even when the database does not.
type Service struct {
	repo Repository
	br   *breaker.Breaker
	log  *slog.Logger
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo: repo,
		log:  log,
		br: breaker.New(breaker.Config{
			Retryable: func(err error) bool { return !errors.Is(err, ErrNotFound) },
		}),
	}
}

// UpsertCallLog creates or partially updates the row for up.CallID.
// Returns nil when the call id is missing or storage stays down.
func (s *Service) UpsertCallLog(ctx context.Context, up CallUpsert) *CallRecord {
	if up.CallID == "" {
		s.log.Warn("calls: upsert without call_id dropped")
		return nil
	}

	// Derive duration when the end timestamp arrives without one. The
	// start may live only in the stored row, so read first.
	if up.EndedAt != nil && up.DurationMs == nil {
		started := up.StartedAt
		if started == nil {
			if cur, ok := s.get(ctx, up.CallID); ok {
				started = cur.StartedAt
			}
		}
		if started != nil && up.EndedAt.After(*started) {
			d := up.EndedAt.Sub(*started).Milliseconds()
			up.DurationMs = &d
		}
	}

	var rec CallRecord
	err := s.br.Do(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.repo.Upsert(ctx, up)
		return err
	})
	if err != nil {
		s.log.Error("calls: upsert failed", "call_id", up.CallID, "error", err)
		return nil
	}
	return &rec
}

// GetCallLog returns the row for callID, or ok=false when it does not
// exist or storage is unavailable.
func (s *Service) GetCallLog(ctx context.Context, callID string) (*CallRecord, bool) {
	if callID == "" {
		return nil, false
	}
	rec, ok := s.get(ctx, callID)
	if !ok {
		return nil, false
	}
	return &rec, true
}

func (s *Service) get(ctx context.Context, callID string) (CallRecord, bool) {
	var rec CallRecord
	err := s.br.Do(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.repo.Get(ctx, callID)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Error("calls: get failed", "call_id", callID, "error", err)
		}
		return CallRecord{}, false
	}
	return rec, true
}

// UpdateStatus sets the status and merges metadata into the stored bag.
// Terminal statuses stamp ended_at when the row has none.
func (s *Service) UpdateStatus(ctx context.Context, callID string, status CallStatus, metadata map[string]any) bool {
	if callID == "" || !status.IsValid() {
		s.log.Warn("calls: invalid status update dropped", "call_id", callID, "status", string(status))
		return false
	}

	up := CallUpsert{CallID: callID, Status: &status}

	cur, exists := s.get(ctx, callID)
	if len(metadata) > 0 {
		merged := map[string]any{}
		for k, v := range cur.Metadata {
			merged[k] = v
		}
		for k, v := range metadata {
			merged[k] = v
		}
		up.Metadata = merged
	}
	if status.IsTerminal() && (!exists || cur.EndedAt == nil) {
		now := time.Now().UTC()
		up.EndedAt = &now
	}

	return s.UpsertCallLog(ctx, up) != nil
}

// AppendTranscript adds one chunk to the transcript. Empty chunks are a no-op.
func (s *Service) AppendTranscript(ctx context.Context, callID, chunk string) bool {
	if callID == "" || chunk == "" {
		return false
	}
	return s.UpsertCallLog(ctx, CallUpsert{CallID: callID, Transcript: &chunk}) != nil
}

// RecentCalls lists newest-first. Empty slice on storage failure.
func (s *Service) RecentCalls(ctx context.Context, f ListFilter) []CallRecord {
	var out []CallRecord
	err := s.br.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.repo.List(ctx, f)
		return err
	})
	if err != nil {
		s.log.Error("calls: list failed", "error", err)
		return []CallRecord{}
	}
	return out
}

// Statistics aggregates the call log over [from, to). Zero-valued times
// leave the range unbounded on that side.
func (s *Service) Statistics(ctx context.Context, from, to time.Time) Statistics {
	rows := s.RecentCalls(ctx, ListFilter{From: from, To: to, Limit: 10000})

	var st Statistics
	for _, c := range rows {
		st.Total++
		switch c.Status {
		case CallStatusCompleted:
			st.Completed++
		case CallStatusFailed:
			st.Failed++
		}
		if c.DurationMs != nil {
			st.TotalDurationMs += *c.DurationMs
		}
	}
	if st.Total > 0 {
		st.AverageDurationMs = st.TotalDurationMs / int64(st.Total)
	}
	return st
}

// StoreMetrics writes the end-of-call metrics for callID: first the
// denormalized summary columns on the call row, then the detailed metrics
// row. The two writes are not atomic; a crash between them leaves the
// summary without a metrics row until the vendor retries the report.
func (s *Service) StoreMetrics(ctx context.Context, callID string, m vapimetrics.Metrics, raw json.RawMessage) bool {
	if callID == "" {
		s.log.Warn("calls: metrics without call_id dropped")
		return false
	}

	// Ensure the call row exists before touching its summary columns. A
	// report can arrive for a call whose earlier events were never seen.
	if s.UpsertCallLog(ctx, CallUpsert{CallID: callID}) == nil {
		return false
	}

	err := s.br.Do(ctx, func(ctx context.Context) error {
		return s.repo.UpdateSummary(ctx, callID, summaryFromMetrics(m))
	})
	if err != nil {
		s.log.Error("calls: summary update failed", "call_id", callID, "error", err)
		return false
	}

	err = s.br.Do(ctx, func(ctx context.Context) error {
		_, err := s.repo.UpsertMetrics(ctx, MetricsRecord{CallID: callID, Metrics: m, RawPayload: raw})
		return err
	})
	if err != nil {
		s.log.Error("calls: metrics upsert failed", "call_id", callID, "error", err)
		return false
	}
	return true
}

// GetMetrics returns the stored metrics row, or ok=false.
func (s *Service) GetMetrics(ctx context.Context, callID string) (*MetricsRecord, bool) {
	if callID == "" {
		return nil, false
	}
	var rec MetricsRecord
	err := s.br.Do(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.repo.GetMetrics(ctx, callID)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Error("calls: get metrics failed", "call_id", callID, "error", err)
		}
		return nil, false
	}
	return &rec, true
}

// MetricsBatch lists metrics rows newest-first. Empty slice on failure.
func (s *Service) MetricsBatch(ctx context.Context, f MetricsFilter) []MetricsRecord {
	var out []MetricsRecord
	err := s.br.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.repo.ListMetrics(ctx, f)
		return err
	})
	if err != nil {
		s.log.Error("calls: list metrics failed", "error", err)
		return []MetricsRecord{}
	}
	return out
}

func summaryFromMetrics(m vapimetrics.Metrics) SummaryUpdate {
	su := SummaryUpdate{
		CostUSD:            m.TotalCostUSD,
		TelephonyCost:      m.TelephonyCostUSD,
		STTCost:            m.STTCostUSD,
		TTSCost:            m.TTSCostUSD,
		AICost:             m.AICostUSD,
		ModelUsed:          m.AIModel,
		RecordingURL:       m.RecordingURL,
		FunctionCallsCount: m.FunctionCallsCount,
		HangupReason:       m.HangupReason,
		Direction:          m.Direction,
		Transferred:        m.Transferred,
	}
	if m.AITokensInput != nil || m.AITokensOutput != nil {
		total := 0
		if m.AITokensInput != nil {
			total += *m.AITokensInput
		}
		if m.AITokensOutput != nil {
			total += *m.AITokensOutput
		}
		su.TokensUsed = &total
	}
	return su
}
