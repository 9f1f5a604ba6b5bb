package vapimetrics

// CostBreakdown is the four category sums plus the total for one or more calls.
type CostBreakdown struct {
	Total     float64 `json:"total"`
	Telephony float64 `json:"telephony"`
	STT       float64 `json:"stt"`
	TTS       float64 `json:"tts"`
	AI        float64 `json:"ai"`
}

// CategoryStat is a category's absolute spend and its share of the total.
type CategoryStat struct {
	Total      float64 `json:"total"`
	Percentage float64 `json:"percentage"`
}

// CostStatistics aggregates cost data over a batch of call metrics.
type CostStatistics struct {
	TotalCost          float64       `json:"total_cost"`
	AverageCostPerCall float64       `json:"average_cost_per_call"`
	CostBreakdown      CostBreakdown `json:"cost_breakdown"`
	CostByCategory     struct {
		Telephony CategoryStat `json:"telephony"`
		STT       CategoryStat `json:"stt"`
		TTS       CategoryStat `json:"tts"`
		AI        CategoryStat `json:"ai"`
	} `json:"cost_by_category"`
}

// Breakdown computes the per-record cost breakdown. Missing categories count
// as zero; the total falls back to the category sum when no explicit total
// was reported.
func Breakdown(m Metrics) CostBreakdown {
	return CostBreakdown{
		Total:     TotalCost(m),
		Telephony: deref(m.TelephonyCostUSD),
		STT:       deref(m.STTCostUSD),
		TTS:       deref(m.TTSCostUSD),
		AI:        deref(m.AICostUSD),
	}
}

// Statistics aggregates a fully materialized batch. The caller is responsible
// for any date-range filtering before aggregation. An empty batch yields
// all-zero statistics; percentages are zero when the total is zero.
func Statistics(batch []Metrics) CostStatistics {
	var out CostStatistics
	if len(batch) == 0 {
		return out
	}

	for _, m := range batch {
		b := Breakdown(m)
		out.CostBreakdown.Total += b.Total
		out.CostBreakdown.Telephony += b.Telephony
		out.CostBreakdown.STT += b.STT
		out.CostBreakdown.TTS += b.TTS
		out.CostBreakdown.AI += b.AI
	}

	out.TotalCost = out.CostBreakdown.Total
	out.AverageCostPerCall = out.TotalCost / float64(len(batch))

	out.CostByCategory.Telephony = categoryStat(out.CostBreakdown.Telephony, out.TotalCost)
	out.CostByCategory.STT = categoryStat(out.CostBreakdown.STT, out.TotalCost)
	out.CostByCategory.TTS = categoryStat(out.CostBreakdown.TTS, out.TotalCost)
	out.CostByCategory.AI = categoryStat(out.CostBreakdown.AI, out.TotalCost)
	return out
}

func categoryStat(total, grandTotal float64) CategoryStat {
	s := CategoryStat{Total: total}
	if grandTotal > 0 {
		s.Percentage = total / grandTotal * 100
	}
	return s
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
