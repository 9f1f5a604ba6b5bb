package calls

import (
	"encoding/json"
	"time"

	"support-console/internal/vapimetrics"
)

// CallRecord is one row of the call log, keyed by the vendor call id.
//
// Lifecycle: created on the first webhook event referencing an unseen call id
// and mutated by every later event for that id. Status transitions are not
// validated; any status can overwrite any other. Rows are never deleted by
// the system.
//
// The vapi_* columns are a denormalized subset of Metrics duplicated here so
// call listings don't need a join.
type CallRecord struct {
	ID     string     `json:"id,omitempty"`
	CallID string     `json:"call_id"`
	Status CallStatus `json:"status"`

	PhoneNumber string `json:"phone_number,omitempty"`
	Language    string `json:"language,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	DurationMs *int64     `json:"duration_ms,omitempty"`

	// Transcript is append-only, newline-joined.
	Transcript string         `json:"transcript,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	VapiCostUSD            *float64 `json:"vapi_cost_usd,omitempty"`
	VapiTelephonyCost      *float64 `json:"vapi_telephony_cost,omitempty"`
	VapiSTTCost            *float64 `json:"vapi_stt_cost,omitempty"`
	VapiTTSCost            *float64 `json:"vapi_tts_cost,omitempty"`
	VapiAICost             *float64 `json:"vapi_ai_cost,omitempty"`
	VapiTokensUsed         *int     `json:"vapi_tokens_used,omitempty"`
	VapiModelUsed          *string  `json:"vapi_model_used,omitempty"`
	VapiRecordingURL       *string  `json:"vapi_recording_url,omitempty"`
	VapiFunctionCallsCount *int     `json:"vapi_function_calls_count,omitempty"`
	VapiHangupReason       *string  `json:"vapi_hangup_reason,omitempty"`
	VapiDirection          *string  `json:"vapi_direction,omitempty"`
	VapiTransferred        *bool    `json:"vapi_transferred,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CallStatus string

const (
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusCancelled  CallStatus = "cancelled"
)

// IsTerminal reports whether the status ends a call.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusCancelled:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is one of the known statuses.
func (s CallStatus) IsValid() bool {
	switch s {
	case CallStatusInitiated, CallStatusRinging, CallStatusInProgress,
		CallStatusCompleted, CallStatusFailed, CallStatusCancelled:
		return true
	default:
		return false
	}
}

// CallUpsert is a partial write against a CallRecord. Nil fields leave the
// stored value untouched, which keeps retried upserts idempotent by call id.
type CallUpsert struct {
	CallID string

	PhoneNumber *string
	Status      *CallStatus
	Language    *string
	StartedAt   *time.Time
	EndedAt     *time.Time
	DurationMs  *int64
	Transcript  *string

	// Metadata replaces the stored bag wholesale when non-nil.
	// Merging is the caller's job (read, merge, write).
	Metadata map[string]any
}

// MetricsRecord is the detailed per-call metrics row, 1:1 with CallRecord by
// call id. It is written wholesale on every end-of-call report: last write
// wins, no incremental merge. The raw vendor payload is retained for audit.
type MetricsRecord struct {
	ID     string `json:"id,omitempty"`
	CallID string `json:"call_id"`

	vapimetrics.Metrics

	RawPayload json.RawMessage `json:"raw_vapi_data,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SummaryUpdate carries the denormalized vapi_* columns written onto the
// call row when metrics arrive. Nil fields are left untouched.
type SummaryUpdate struct {
	CostUSD            *float64
	TelephonyCost      *float64
	STTCost            *float64
	TTSCost            *float64
	AICost             *float64
	TokensUsed         *int
	ModelUsed          *string
	RecordingURL       *string
	FunctionCallsCount *int
	HangupReason       *string
	Direction          *string
	Transferred        *bool
}

// Statistics summarizes the call log over an optional date range.
type Statistics struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`

	AverageDurationMs int64 `json:"average_duration_ms"`
	TotalDurationMs   int64 `json:"total_duration_ms"`
}
