package vapimetrics

// UsageStats aggregates non-cost usage over a batch of metrics.
type UsageStats struct {
	Calls int `json:"calls"`

	TotalTokensInput  int `json:"total_tokens_input"`
	TotalTokensOutput int `json:"total_tokens_output"`

	AverageLatencyMs float64 `json:"average_latency_ms"`

	FunctionCalls           int     `json:"function_calls"`
	FunctionCallSuccessRate float64 `json:"function_call_success_rate"`

	Transfers int `json:"transfers"`

	ModelDistribution map[string]int `json:"model_distribution"`
}

// Usage computes UsageStats over a batch. Records missing a field simply
// don't contribute to that field's aggregate.
func Usage(batch []Metrics) UsageStats {
	out := UsageStats{ModelDistribution: map[string]int{}}

	var latencySum float64
	var latencyCount int
	var fnSuccess, fnFailed int
	for _, m := range batch {
		out.Calls++
		if m.AITokensInput != nil {
			out.TotalTokensInput += *m.AITokensInput
		}
		if m.AITokensOutput != nil {
			out.TotalTokensOutput += *m.AITokensOutput
		}
		if m.AverageLatencyMs != nil {
			latencySum += *m.AverageLatencyMs
			latencyCount++
		}
		if m.FunctionCallsCount != nil {
			out.FunctionCalls += *m.FunctionCallsCount
		}
		if m.FunctionCallsSuccess != nil {
			fnSuccess += *m.FunctionCallsSuccess
		}
		if m.FunctionCallsFailed != nil {
			fnFailed += *m.FunctionCallsFailed
		}
		if m.TransfersCount != nil {
			out.Transfers += *m.TransfersCount
		}
		if m.AIModel != nil && *m.AIModel != "" {
			out.ModelDistribution[*m.AIModel]++
		}
	}
	if latencyCount > 0 {
		out.AverageLatencyMs = latencySum / float64(latencyCount)
	}
	if fnSuccess+fnFailed > 0 {
		out.FunctionCallSuccessRate = float64(fnSuccess) / float64(fnSuccess+fnFailed)
	}
	return out
}
