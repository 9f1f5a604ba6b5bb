package vapimetrics

import (
	"encoding/json"
	"math"
	"strings"
)

// Metrics is the normalized view of one call's cost, usage and quality data.
// Every field is a pointer: nil means the vendor did not report it, which is
// distinct from a reported zero.
type Metrics struct {
	// Cost breakdown
	TotalCostUSD     *float64 `json:"total_cost_usd,omitempty"`
	TelephonyCostUSD *float64 `json:"telephony_cost_usd,omitempty"`
	STTCostUSD       *float64 `json:"stt_cost_usd,omitempty"`
	STTMinutes       *float64 `json:"stt_minutes,omitempty"`
	TTSCostUSD       *float64 `json:"tts_cost_usd,omitempty"`
	TTSCharacters    *int     `json:"tts_characters,omitempty"`
	AICostUSD        *float64 `json:"ai_cost_usd,omitempty"`
	AITokensInput    *int     `json:"ai_tokens_input,omitempty"`
	AITokensOutput   *int     `json:"ai_tokens_output,omitempty"`
	AIModel          *string  `json:"ai_model,omitempty"`

	// Quality
	AverageLatencyMs  *float64 `json:"average_latency_ms,omitempty"`
	JitterMs          *float64 `json:"jitter_ms,omitempty"`
	PacketLossPercent *float64 `json:"packet_loss_percent,omitempty"`
	ConnectionQuality *string  `json:"connection_quality,omitempty"`

	// Call outcome
	RecordingURL         *string  `json:"recording_url,omitempty"`
	RecordingDurationMs  *float64 `json:"recording_duration_ms,omitempty"`
	FunctionCallsCount   *int     `json:"function_calls_count,omitempty"`
	FunctionCallsSuccess *int     `json:"function_calls_success,omitempty"`
	FunctionCallsFailed  *int     `json:"function_calls_failed,omitempty"`
	TransfersCount       *int     `json:"transfers_count,omitempty"`
	SentimentScore       *float64 `json:"sentiment_score,omitempty"`

	// Call details
	HangupReason  *string `json:"hangup_reason,omitempty"`
	Direction     *string `json:"direction,omitempty"`
	Transferred   *bool   `json:"transferred,omitempty"`
	AssistantID   *string `json:"assistant_id,omitempty"`
	PhoneNumberID *string `json:"phone_number_id,omitempty"`
}

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// object is one JSON object level of the webhook payload.
type object map[string]any

// ref names a single candidate field. Extraction works through ordered ref
// lists: the first candidate that resolves wins, the rest are ignored.
type ref struct {
	o   object
	key string
}

// Extract maps a vendor webhook payload onto Metrics.
//
// The vendor has shipped several payload shapes over time, so every field is
// looked up across the plausible nesting scopes in a fixed precedence:
// itemized costs array, then the costBreakdown object, then a bare total
// number; quality/outcome fields each have their own candidate list.
func Extract(raw []byte) (Metrics, error) {
	var root object
	if err := json.Unmarshal(raw, &root); err != nil {
		return Metrics{}, err
	}
	return ExtractObject(root), nil
}

// ExtractObject is Extract for an already-decoded payload.
func ExtractObject(root map[string]any) Metrics {
	var m Metrics
	if root == nil {
		return m
	}

	// Scope resolution. For end-of-call reports the data lives under
	// "message"; older payloads put everything at the top level.
	message := childOr(object(root), "message", object(root))
	call := firstChild([]ref{{message, "call"}, {object(root), "call"}}, message)

	m.extractCosts(object(root), message, call)
	m.extractUsage(object(root), message, call)
	m.extractQuality(object(root), message, call)
	m.extractOutcome(object(root), message, call)
	m.extractDetails(object(root), message, call)
	return m
}

func (m *Metrics) extractCosts(root, message, call object) {
	// Highest precedence: the itemized costs array with typed line items.
	costs := firstArray(ref{message, "costs"}, ref{call, "costs"}, ref{root, "costs"})
	for _, item := range costs {
		it, ok := item.(map[string]any)
		if !ok {
			continue
		}
		o := object(it)
		switch str(o["type"]) {
		case "transcriber":
			setNum(&m.STTCostUSD, o["cost"])
			setNum(&m.STTMinutes, o["minutes"])
		case "model":
			setNum(&m.AICostUSD, o["cost"])
			setInt(&m.AITokensInput, o["promptTokens"])
			setInt(&m.AITokensOutput, o["completionTokens"])
			if model := childOr(o, "model", nil); model != nil {
				setStr(&m.AIModel, model["model"])
			}
		case "voice":
			setNum(&m.TTSCostUSD, o["cost"])
			setInt(&m.TTSCharacters, o["characters"])
		case "vapi":
			setNum(&m.TelephonyCostUSD, o["cost"])
		}
	}

	// Next: the cost / costBreakdown object, or a bare total number.
	costSrc := firstValue(ref{message, "cost"}, ref{message, "costBreakdown"}, ref{call, "cost"}, ref{root, "cost"})
	switch c := costSrc.(type) {
	case float64:
		setNumIfNil(&m.TotalCostUSD, c)
	case map[string]any:
		o := object(c)
		setNumFirstIfNil(&m.TotalCostUSD, ref{o, "total"}, ref{o, "totalCost"})
		setNumFirstIfNil(&m.STTCostUSD, ref{o, "stt"})
		setNumFirstIfNil(&m.AICostUSD, ref{o, "llm"})
		setNumFirstIfNil(&m.TTSCostUSD, ref{o, "tts"})
		setNumFirstIfNil(&m.TelephonyCostUSD, ref{o, "vapi"})
		setIntFirstIfNil(&m.AITokensInput, ref{o, "llmPromptTokens"})
		setIntFirstIfNil(&m.AITokensOutput, ref{o, "llmCompletionTokens"})
		setIntFirstIfNil(&m.TTSCharacters, ref{o, "ttsCharacters"})
	}
}

func (m *Metrics) extractUsage(root, message, call object) {
	metricsData := childOr(message, "metrics", childOr(call, "metrics", childOr(root, "metrics", nil)))

	if stt := firstChild([]ref{{metricsData, "stt"}, {call, "stt"}}, nil); stt != nil {
		setNumFirstIfNil(&m.STTMinutes, ref{stt, "minutes"}, ref{stt, "duration"})
		setNumFirstIfNil(&m.STTCostUSD, ref{stt, "cost"})
	}
	if tts := firstChild([]ref{{metricsData, "tts"}, {call, "tts"}}, nil); tts != nil {
		setIntFirstIfNil(&m.TTSCharacters, ref{tts, "characters"}, ref{tts, "chars"})
		setNumFirstIfNil(&m.TTSCostUSD, ref{tts, "cost"})
	}
	if ai := firstChild([]ref{{metricsData, "llm"}, {metricsData, "ai"}, {call, "llm"}, {call, "ai"}}, nil); ai != nil {
		setStrFirstIfNil(&m.AIModel, ref{ai, "model"}, ref{ai, "modelName"})
		setIntFirstIfNil(&m.AITokensInput, ref{ai, "inputTokens"}, ref{ai, "tokensInput"}, ref{ai, "promptTokens"})
		setIntFirstIfNil(&m.AITokensOutput, ref{ai, "outputTokens"}, ref{ai, "tokensOutput"}, ref{ai, "completionTokens"})
		setNumFirstIfNil(&m.AICostUSD, ref{ai, "cost"})
	}

	// Aggregate-only token count: estimate a 70/30 input/output split.
	// This is a documented approximation, not vendor data.
	if m.AITokensInput == nil && m.AITokensOutput == nil {
		if tokens := firstNumber(ref{call, "tokens"}, ref{root, "tokens"}); tokens != nil {
			in := int(math.Round(*tokens * 0.7))
			out := int(math.Round(*tokens * 0.3))
			m.AITokensInput = &in
			m.AITokensOutput = &out
		}
	}

	setStrFirstIfNil(&m.AIModel, ref{call, "model"}, ref{call, "modelName"}, ref{root, "model"})
}

func (m *Metrics) extractQuality(root, message, call object) {
	metricsData := childOr(message, "metrics", childOr(call, "metrics", childOr(root, "metrics", nil)))

	if q := firstChild([]ref{{metricsData, "quality"}, {call, "quality"}}, nil); q != nil {
		setNumFirstIfNil(&m.AverageLatencyMs, ref{q, "latency"}, ref{q, "averageLatency"}, ref{q, "avgLatency"})
		setNumFirstIfNil(&m.JitterMs, ref{q, "jitter"})
		setNumFirstIfNil(&m.PacketLossPercent, ref{q, "packetLoss"}, ref{q, "packetLossPercent"})
		setStrFirstIfNil(&m.ConnectionQuality, ref{q, "quality"}, ref{q, "connectionQuality"})
	}

	if analysis := firstChild([]ref{{message, "analysis"}, {call, "analysis"}, {root, "analysis"}}, nil); analysis != nil {
		setNum(&m.SentimentScore, analysis["sentiment"])
		// Analysis latency wins over the quality block when both exist.
		setNum(&m.AverageLatencyMs, analysis["latency"])
	}
}

func (m *Metrics) extractOutcome(root, message, call object) {
	setStrFirstIfNil(&m.RecordingURL,
		ref{message, "recordingUrl"}, ref{call, "recordingUrl"}, ref{call, "recording"}, ref{root, "recordingUrl"})
	setNumFirstIfNil(&m.RecordingDurationMs,
		ref{message, "recordingDurationMs"}, ref{message, "durationMs"},
		ref{call, "recordingDurationMs"}, ref{call, "recordingDuration"})

	switch fc := firstValue(ref{call, "functionCalls"}, ref{root, "functionCalls"}).(type) {
	case []any:
		count := len(fc)
		success := 0
		for _, item := range fc {
			o, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if str(o["status"]) == "success" || o["success"] == true || o["error"] == nil {
				success++
			}
		}
		failed := count - success
		m.FunctionCallsCount = &count
		m.FunctionCallsSuccess = &success
		m.FunctionCallsFailed = &failed
	case map[string]any:
		o := object(fc)
		setIntFirstIfNil(&m.FunctionCallsCount, ref{o, "count"}, ref{o, "total"})
		setIntFirstIfNil(&m.FunctionCallsSuccess, ref{o, "success"}, ref{o, "successCount"})
		setIntFirstIfNil(&m.FunctionCallsFailed, ref{o, "failed"}, ref{o, "failedCount"})
	}

	switch tr := firstValue(ref{call, "transfers"}, ref{root, "transfers"}).(type) {
	case []any:
		count := len(tr)
		transferred := count > 0
		m.TransfersCount = &count
		m.Transferred = &transferred
	case map[string]any:
		o := object(tr)
		setIntFirstIfNil(&m.TransfersCount, ref{o, "count"}, ref{o, "total"})
		if m.TransfersCount != nil {
			transferred := *m.TransfersCount > 0
			m.Transferred = &transferred
		}
	case bool:
		m.Transferred = &tr
	}
}

func (m *Metrics) extractDetails(root, message, call object) {
	setStrFirstIfNil(&m.HangupReason,
		ref{message, "endedReason"}, ref{call, "hangupReason"}, ref{call, "hangup_reason"},
		ref{call, "reason"}, ref{root, "hangupReason"})

	if dir := firstString(ref{message, "direction"}, ref{call, "direction"}, ref{root, "direction"}, ref{call, "type"}); dir != nil {
		switch d := strings.ToLower(*dir); {
		case d == "in" || d == "incoming" || strings.Contains(d, DirectionInbound):
			v := DirectionInbound
			m.Direction = &v
		case d == "out" || d == "outgoing" || strings.Contains(d, DirectionOutbound):
			v := DirectionOutbound
			m.Direction = &v
		}
	}

	assistant := childOr(message, "assistant", childOr(call, "assistant", nil))
	setStrFirstIfNil(&m.AssistantID,
		ref{assistant, "id"}, ref{call, "assistantId"}, ref{call, "assistant_id"}, ref{root, "assistantId"})

	phoneNumber := childOr(message, "phoneNumber", childOr(call, "phoneNumber", nil))
	setStrFirstIfNil(&m.PhoneNumberID,
		ref{phoneNumber, "id"}, ref{call, "phoneNumberId"}, ref{call, "phone_number_id"}, ref{root, "phoneNumberId"})
}

// TotalCost returns the explicit total when present, else the sum of the four
// category costs.
func TotalCost(m Metrics) float64 {
	if m.TotalCostUSD != nil {
		return *m.TotalCostUSD
	}
	var total float64
	for _, c := range []*float64{m.TelephonyCostUSD, m.STTCostUSD, m.TTSCostUSD, m.AICostUSD} {
		if c != nil {
			total += *c
		}
	}
	return total
}

// Normalize fills derivable fields that the payload left absent: the total
// cost (sum of categories), the function-call count (success + failed), and
// the transferred flag (transfers count > 0).
func Normalize(m Metrics) Metrics {
	out := m

	if out.TotalCostUSD == nil {
		total := TotalCost(out)
		out.TotalCostUSD = &total
	}

	if out.FunctionCallsCount == nil && (out.FunctionCallsSuccess != nil || out.FunctionCallsFailed != nil) {
		count := 0
		if out.FunctionCallsSuccess != nil {
			count += *out.FunctionCallsSuccess
		}
		if out.FunctionCallsFailed != nil {
			count += *out.FunctionCallsFailed
		}
		out.FunctionCallsCount = &count
	}

	if out.Transferred == nil && out.TransfersCount != nil {
		transferred := *out.TransfersCount > 0
		out.Transferred = &transferred
	}

	return out
}
