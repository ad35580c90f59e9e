// Package guardrail classifies run acceptance rates and escalates sustained
// anomalies.
package guardrail

import "fmt"

// Band classifies a run's acceptance rate relative to the expected range.
type Band string

const (
	BandNoData       Band = "no_data"
	BandCriticalLow  Band = "critical_low"
	BandLow          Band = "low"
	BandOK           Band = "ok"
	BandHigh         Band = "high"
	BandCriticalHigh Band = "critical_high"
)

// Expected acceptance band and the critical margins around it.
const (
	okLow        = 0.05
	okHigh       = 0.15
	criticalLow  = 0.02
	criticalHigh = 0.30
)

// trendWindow is how many consecutive out-of-band runs escalate.
const trendWindow = 3

// Healthy reports whether the band needs no operator attention. no_data is
// healthy: an empty run carries no signal either way.
func (b Band) Healthy() bool {
	return b == BandOK || b == BandNoData
}

// Classify buckets one run's outcome. A run that screened nothing is
// no_data, never a zero rate.
func Classify(admitted, screened int) Band {
	if screened == 0 {
		return BandNoData
	}
	rate := float64(admitted) / float64(screened)
	switch {
	case rate < criticalLow:
		return BandCriticalLow
	case rate < okLow:
		return BandLow
	case rate <= okHigh:
		return BandOK
	case rate <= criticalHigh:
		return BandHigh
	default:
		return BandCriticalHigh
	}
}

// Severity of an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is the monitor's output for an anomalous run or trend.
type Alert struct {
	Severity Severity
	Message  string
	Bands    []Band
}

// CheckTrend inspects recent run bands, newest first, and decides whether to
// alert. A single out-of-band run yields a warning. When the streak of
// consecutive out-of-band runs reaches exactly the trend window, one
// critical escalation fires; longer streaks do not re-escalate, so three bad
// runs produce one escalation rather than three independent alerts.
func CheckTrend(recent []Band) *Alert {
	var streak []Band
	for _, b := range recent {
		if b == BandNoData {
			continue
		}
		if b.Healthy() {
			break
		}
		streak = append(streak, b)
		if len(streak) > trendWindow {
			break
		}
	}

	switch {
	case len(streak) == 0:
		return nil
	case len(streak) == trendWindow:
		return &Alert{
			Severity: SeverityCritical,
			Message: fmt.Sprintf("acceptance rate out of band for %d consecutive runs; "+
				"suspect a filter regression or source-quality change", trendWindow),
			Bands: streak,
		}
	case len(streak) < trendWindow:
		return &Alert{
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("acceptance rate out of band (%s)", streak[0]),
			Bands:    streak[:1],
		}
	default:
		// Streak already escalated on an earlier run.
		return nil
	}
}
