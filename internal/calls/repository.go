package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// NOTE: This repository assumes the following tables exist:
// - call_logs   (one row per call, UNIQUE (call_id))
// - call_metrics (one row per call, UNIQUE (call_id))
//
// phone_number, language and transcript are NOT NULL DEFAULT ''.

var ErrNotFound = errors.New("calls: not found")

// PostgresRepo persists call rows via database/sql.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const callColumns = `
id, call_id, phone_number, status, language, started_at, ended_at, duration_ms,
transcript, metadata,
vapi_cost_usd, vapi_telephony_cost, vapi_stt_cost, vapi_tts_cost, vapi_ai_cost,
vapi_tokens_used, vapi_model_used, vapi_recording_url, vapi_function_calls_count,
vapi_hangup_reason, vapi_direction, vapi_transferred,
created_at, updated_at`

func (r *PostgresRepo) Upsert(ctx context.Context, up CallUpsert) (CallRecord, error) {
	// Only the non-nil fields of up overwrite stored values. Transcript
	// chunks are appended, never replaced.
	const q = `
INSERT INTO call_logs (
  id, call_id, phone_number, status, language, started_at, ended_at, duration_ms,
  transcript, metadata, created_at, updated_at
) VALUES (
  $1, $2, COALESCE($3,''), COALESCE($4,'initiated'), COALESCE($5,''), $6, $7, $8,
  COALESCE($9,''), $10, $11, $11
)
ON CONFLICT (call_id) DO UPDATE SET
  phone_number = COALESCE($3, call_logs.phone_number),
  status       = COALESCE($4, call_logs.status),
  language     = COALESCE($5, call_logs.language),
  started_at   = COALESCE(EXCLUDED.started_at, call_logs.started_at),
  ended_at     = COALESCE(EXCLUDED.ended_at, call_logs.ended_at),
  duration_ms  = COALESCE(EXCLUDED.duration_ms, call_logs.duration_ms),
  transcript   = CASE
                   WHEN $9 IS NULL OR $9 = '' THEN call_logs.transcript
                   WHEN call_logs.transcript = '' THEN $9
                   ELSE call_logs.transcript || E'\n' || $9
                 END,
  metadata     = COALESCE(EXCLUDED.metadata, call_logs.metadata),
  updated_at   = $11
RETURNING ` + callColumns

	meta, err := marshalMeta(up.Metadata)
	if err != nil {
		return CallRecord{}, err
	}
	row := r.db.QueryRowContext(ctx, q,
		uuid.NewString(),
		up.CallID,
		up.PhoneNumber,
		(*string)(up.Status),
		up.Language,
		up.StartedAt,
		up.EndedAt,
		up.DurationMs,
		up.Transcript,
		meta,
		time.Now().UTC(),
	)
	return scanCall(row)
}

func (r *PostgresRepo) Get(ctx context.Context, callID string) (CallRecord, error) {
	const q = `SELECT ` + callColumns + ` FROM call_logs WHERE call_id = $1`
	rec, err := scanCall(r.db.QueryRowContext(ctx, q, callID))
	if errors.Is(err, sql.ErrNoRows) {
		return CallRecord{}, ErrNotFound
	}
	return rec, err
}

func (r *PostgresRepo) List(ctx context.Context, f ListFilter) ([]CallRecord, error) {
	const q = `
SELECT ` + callColumns + `
FROM call_logs
WHERE ($1 = '' OR status = $1)
  AND ($2::timestamptz IS NULL OR created_at >= $2)
  AND ($3::timestamptz IS NULL OR created_at < $3)
ORDER BY created_at DESC
LIMIT $4 OFFSET $5
`
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, q,
		string(f.Status), nullTime(f.From), nullTime(f.To), limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallRecord, 0)
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) UpdateSummary(ctx context.Context, callID string, su SummaryUpdate) error {
	const q = `
UPDATE call_logs SET
  vapi_cost_usd             = COALESCE($2, vapi_cost_usd),
  vapi_telephony_cost       = COALESCE($3, vapi_telephony_cost),
  vapi_stt_cost             = COALESCE($4, vapi_stt_cost),
  vapi_tts_cost             = COALESCE($5, vapi_tts_cost),
  vapi_ai_cost              = COALESCE($6, vapi_ai_cost),
  vapi_tokens_used          = COALESCE($7, vapi_tokens_used),
  vapi_model_used           = COALESCE($8, vapi_model_used),
  vapi_recording_url        = COALESCE($9, vapi_recording_url),
  vapi_function_calls_count = COALESCE($10, vapi_function_calls_count),
  vapi_hangup_reason        = COALESCE($11, vapi_hangup_reason),
  vapi_direction            = COALESCE($12, vapi_direction),
  vapi_transferred          = COALESCE($13, vapi_transferred),
  updated_at                = $14
WHERE call_id = $1
`
	res, err := r.db.ExecContext(ctx, q, callID,
		su.CostUSD, su.TelephonyCost, su.STTCost, su.TTSCost, su.AICost,
		su.TokensUsed, su.ModelUsed, su.RecordingURL, su.FunctionCallsCount,
		su.HangupReason, su.Direction, su.Transferred, time.Now().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const metricsColumns = `
id, call_id,
total_cost_usd, telephony_cost_usd, stt_cost_usd, stt_minutes, tts_cost_usd,
tts_characters, ai_cost_usd, ai_tokens_input, ai_tokens_output, ai_model,
average_latency_ms, jitter_ms, packet_loss_percent, connection_quality,
recording_url, recording_duration_ms,
function_calls_count, function_calls_success, function_calls_failed,
transfers_count, sentiment_score, hangup_reason, direction, transferred,
assistant_id, phone_number_id, raw_vapi_data,
created_at, updated_at`

func (r *PostgresRepo) UpsertMetrics(ctx context.Context, rec MetricsRecord) (MetricsRecord, error) {
	// Wholesale replace: a newer end-of-call report supersedes the old row.
	const q = `
INSERT INTO call_metrics (
  id, call_id,
  total_cost_usd, telephony_cost_usd, stt_cost_usd, stt_minutes, tts_cost_usd,
  tts_characters, ai_cost_usd, ai_tokens_input, ai_tokens_output, ai_model,
  average_latency_ms, jitter_ms, packet_loss_percent, connection_quality,
  recording_url, recording_duration_ms,
  function_calls_count, function_calls_success, function_calls_failed,
  transfers_count, sentiment_score, hangup_reason, direction, transferred,
  assistant_id, phone_number_id, raw_vapi_data,
  created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
  $21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$30
)
ON CONFLICT (call_id) DO UPDATE SET
  total_cost_usd = EXCLUDED.total_cost_usd,
  telephony_cost_usd = EXCLUDED.telephony_cost_usd,
  stt_cost_usd = EXCLUDED.stt_cost_usd,
  stt_minutes = EXCLUDED.stt_minutes,
  tts_cost_usd = EXCLUDED.tts_cost_usd,
  tts_characters = EXCLUDED.tts_characters,
  ai_cost_usd = EXCLUDED.ai_cost_usd,
  ai_tokens_input = EXCLUDED.ai_tokens_input,
  ai_tokens_output = EXCLUDED.ai_tokens_output,
  ai_model = EXCLUDED.ai_model,
  average_latency_ms = EXCLUDED.average_latency_ms,
  jitter_ms = EXCLUDED.jitter_ms,
  packet_loss_percent = EXCLUDED.packet_loss_percent,
  connection_quality = EXCLUDED.connection_quality,
  recording_url = EXCLUDED.recording_url,
  recording_duration_ms = EXCLUDED.recording_duration_ms,
  function_calls_count = EXCLUDED.function_calls_count,
  function_calls_success = EXCLUDED.function_calls_success,
  function_calls_failed = EXCLUDED.function_calls_failed,
  transfers_count = EXCLUDED.transfers_count,
  sentiment_score = EXCLUDED.sentiment_score,
  hangup_reason = EXCLUDED.hangup_reason,
  direction = EXCLUDED.direction,
  transferred = EXCLUDED.transferred,
  assistant_id = EXCLUDED.assistant_id,
  phone_number_id = EXCLUDED.phone_number_id,
  raw_vapi_data = EXCLUDED.raw_vapi_data,
  updated_at = EXCLUDED.updated_at
RETURNING ` + metricsColumns

	var raw any
	if len(rec.RawPayload) > 0 {
		raw = []byte(rec.RawPayload)
	}
	m := rec.Metrics
	row := r.db.QueryRowContext(ctx, q,
		uuid.NewString(), rec.CallID,
		m.TotalCostUSD, m.TelephonyCostUSD, m.STTCostUSD, m.STTMinutes, m.TTSCostUSD,
		m.TTSCharacters, m.AICostUSD, m.AITokensInput, m.AITokensOutput, m.AIModel,
		m.AverageLatencyMs, m.JitterMs, m.PacketLossPercent, m.ConnectionQuality,
		m.RecordingURL, m.RecordingDurationMs,
		m.FunctionCallsCount, m.FunctionCallsSuccess, m.FunctionCallsFailed,
		m.TransfersCount, m.SentimentScore, m.HangupReason, m.Direction, m.Transferred,
		m.AssistantID, m.PhoneNumberID, raw,
		time.Now().UTC(),
	)
	return scanMetrics(row)
}

func (r *PostgresRepo) GetMetrics(ctx context.Context, callID string) (MetricsRecord, error) {
	const q = `SELECT ` + metricsColumns + ` FROM call_metrics WHERE call_id = $1`
	rec, err := scanMetrics(r.db.QueryRowContext(ctx, q, callID))
	if errors.Is(err, sql.ErrNoRows) {
		return MetricsRecord{}, ErrNotFound
	}
	return rec, err
}

func (r *PostgresRepo) ListMetrics(ctx context.Context, f MetricsFilter) ([]MetricsRecord, error) {
	const q = `
SELECT ` + metricsColumns + `
FROM call_metrics
WHERE ($1::timestamptz IS NULL OR created_at >= $1)
  AND ($2::timestamptz IS NULL OR created_at < $2)
ORDER BY created_at DESC
LIMIT $3
`
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, q, nullTime(f.From), nullTime(f.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]MetricsRecord, 0)
	for rows.Next() {
		rec, err := scanMetrics(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (CallRecord, error) {
	var rec CallRecord
	var meta []byte
	if err := row.Scan(
		&rec.ID,
		&rec.CallID,
		&rec.PhoneNumber,
		&rec.Status,
		&rec.Language,
		&rec.StartedAt,
		&rec.EndedAt,
		&rec.DurationMs,
		&rec.Transcript,
		&meta,
		&rec.VapiCostUSD,
		&rec.VapiTelephonyCost,
		&rec.VapiSTTCost,
		&rec.VapiTTSCost,
		&rec.VapiAICost,
		&rec.VapiTokensUsed,
		&rec.VapiModelUsed,
		&rec.VapiRecordingURL,
		&rec.VapiFunctionCallsCount,
		&rec.VapiHangupReason,
		&rec.VapiDirection,
		&rec.VapiTransferred,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return CallRecord{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return CallRecord{}, err
		}
	}
	return rec, nil
}

func scanMetrics(row rowScanner) (MetricsRecord, error) {
	var rec MetricsRecord
	var raw []byte
	m := &rec.Metrics
	if err := row.Scan(
		&rec.ID,
		&rec.CallID,
		&m.TotalCostUSD,
		&m.TelephonyCostUSD,
		&m.STTCostUSD,
		&m.STTMinutes,
		&m.TTSCostUSD,
		&m.TTSCharacters,
		&m.AICostUSD,
		&m.AITokensInput,
		&m.AITokensOutput,
		&m.AIModel,
		&m.AverageLatencyMs,
		&m.JitterMs,
		&m.PacketLossPercent,
		&m.ConnectionQuality,
		&m.RecordingURL,
		&m.RecordingDurationMs,
		&m.FunctionCallsCount,
		&m.FunctionCallsSuccess,
		&m.FunctionCallsFailed,
		&m.TransfersCount,
		&m.SentimentScore,
		&m.HangupReason,
		&m.Direction,
		&m.Transferred,
		&m.AssistantID,
		&m.PhoneNumberID,
		&raw,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return MetricsRecord{}, err
	}
	if len(raw) > 0 {
		rec.RawPayload = json.RawMessage(raw)
	}
	return rec, nil
}

func marshalMeta(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
