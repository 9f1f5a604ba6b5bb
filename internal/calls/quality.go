package calls

import "time"

// QualityReport summarizes operational health over a set of call rows.
type QualityReport struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Active    int `json:"active"`

	SuccessRate       float64 `json:"success_rate"`
	AverageDurationMs int64   `json:"average_duration_ms"`

	// HealthScore is 0..1: success rate weighted 0.7 plus a duration
	// factor weighted 0.3 (average duration over a 5 minute cap).
	HealthScore float64 `json:"health_score"`

	LanguageDistribution map[string]int `json:"language_distribution"`

	// PeakHour is the UTC hour (0-23) with the most call starts, -1
	// when no call carries a start time.
	PeakHour int `json:"peak_hour"`
}

const healthDurationCap = 5 * time.Minute

// Quality computes the health report for rows. Empty input yields the
// zero report with PeakHour -1.
func Quality(rows []CallRecord) QualityReport {
	rep := QualityReport{
		LanguageDistribution: map[string]int{},
		PeakHour:             -1,
	}

	var durTotal int64
	var durCount int
	hours := [24]int{}
	for _, c := range rows {
		rep.Total++
		switch c.Status {
		case CallStatusCompleted:
			rep.Completed++
		case CallStatusFailed:
			rep.Failed++
		case CallStatusCancelled:
			rep.Cancelled++
		case CallStatusInitiated, CallStatusRinging, CallStatusInProgress:
			rep.Active++
		}
		if c.DurationMs != nil {
			durTotal += *c.DurationMs
			durCount++
		}
		if c.Language != "" {
			rep.LanguageDistribution[c.Language]++
		}
		if c.StartedAt != nil {
			hours[c.StartedAt.UTC().Hour()]++
		}
	}
	if rep.Total == 0 {
		return rep
	}

	// Active calls have no outcome yet, so rate them over finished ones.
	finished := rep.Completed + rep.Failed + rep.Cancelled
	if finished > 0 {
		rep.SuccessRate = float64(rep.Completed) / float64(finished)
	}
	if durCount > 0 {
		rep.AverageDurationMs = durTotal / int64(durCount)
	}

	durationFactor := float64(rep.AverageDurationMs) / float64(healthDurationCap.Milliseconds())
	if durationFactor > 1 {
		durationFactor = 1
	}
	rep.HealthScore = 0.7*rep.SuccessRate + 0.3*durationFactor

	peak := 0
	for h, n := range hours {
		if n > peak {
			peak = n
			rep.PeakHour = h
		}
	}
	return rep
}
