package audit

import (
	"fmt"
	"math"
)

// maxFindings caps every list embedded in a trimmed report.
const maxFindings = 5

// blockingTaskThresholdMS is the portion of a long task that does not count
// toward total blocking time.
const blockingTaskThresholdMS = 50

// band is a metric's scoring range: at or below good scores 1.0, at or
// above poor scores 0.0, linear in between.
type band struct {
	good float64
	poor float64
}

var (
	fcpBand = band{good: 1800, poor: 3000}
	lcpBand = band{good: 2500, poor: 4000}
	tbtBand = band{good: 200, poor: 600}
	clsBand = band{good: 0.1, poor: 0.25}
	siBand  = band{good: 3400, poor: 5800}
)

// Trim reduces a FullReport to the compact form downstream analysis
// consumes: named top-level fields, capped finding lists, no raw payloads.
// It is pure; the same report always trims to the same result.
func Trim(full *FullReport) TrimmedReport {
	m := Metrics{
		FCP:        round(full.FCP, 0),
		LCP:        round(full.LCP, 0),
		TBT:        round(totalBlockingTime(full.LongTasks), 0),
		CLS:        round(full.CLS, 3),
		SpeedIndex: round(speedIndex(full), 0),
	}
	return TrimmedReport{
		FinalURL: full.FinalURL,
		Scores: Scores{
			Performance:   performanceScore(m),
			Accessibility: categoryScore(full.Checks, CategoryAccessibility),
			BestPractices: categoryScore(full.Checks, CategoryBestPractices),
			SEO:           categoryScore(full.Checks, CategorySEO),
		},
		Metrics:             m,
		Opportunities:       capFindings(opportunities(full, m)),
		AccessibilityIssues: capFindings(accessibilityIssues(full.Checks)),
	}
}

func totalBlockingTime(tasks []LongTask) float64 {
	var tbt float64
	for _, task := range tasks {
		if task.DurationMS > blockingTaskThresholdMS {
			tbt += task.DurationMS - blockingTaskThresholdMS
		}
	}
	return tbt
}

// speedIndex approximates the speed index from paint timing; the real
// metric needs filmstrip analysis a headless collector does not have.
func speedIndex(full *FullReport) float64 {
	settled := math.Max(full.LCP, full.Timing.DOMContentLoaded)
	return (full.FCP + settled) / 2
}

// performanceScore is a weighted blend of the metric bands, heaviest on
// blocking time and largest paint.
func performanceScore(m Metrics) float64 {
	score := 0.10*ramp(m.FCP, fcpBand) +
		0.25*ramp(m.LCP, lcpBand) +
		0.30*ramp(m.TBT, tbtBand) +
		0.25*ramp(m.CLS, clsBand) +
		0.10*ramp(m.SpeedIndex, siBand)
	return round(score, 2)
}

func categoryScore(checks []Check, category string) float64 {
	total, passed := 0, 0
	for _, check := range checks {
		if check.Category != category {
			continue
		}
		total++
		if check.Passed {
			passed++
		}
	}
	if total == 0 {
		return 1
	}
	return round(float64(passed)/float64(total), 2)
}

func ramp(value float64, b band) float64 {
	switch {
	case value <= b.good:
		return 1
	case value >= b.poor:
		return 0
	default:
		return (b.poor - value) / (b.poor - b.good)
	}
}

func opportunities(full *FullReport, m Metrics) []Finding {
	var out []Finding
	if m.LCP > lcpBand.good {
		out = append(out, Finding{
			ID:     "largest-contentful-paint",
			Title:  "Improve Largest Contentful Paint",
			Detail: fmt.Sprintf("%.0fms, target %.0fms", m.LCP, lcpBand.good),
		})
	}
	if m.FCP > fcpBand.good {
		out = append(out, Finding{
			ID:     "first-contentful-paint",
			Title:  "Improve First Contentful Paint",
			Detail: fmt.Sprintf("%.0fms, target %.0fms", m.FCP, fcpBand.good),
		})
	}
	if m.TBT > tbtBand.good {
		out = append(out, Finding{
			ID:     "total-blocking-time",
			Title:  "Reduce main-thread blocking time",
			Detail: fmt.Sprintf("%.0fms across %d long tasks", m.TBT, len(full.LongTasks)),
		})
	}
	if m.CLS > clsBand.good {
		out = append(out, Finding{
			ID:     "cumulative-layout-shift",
			Title:  "Reduce layout shift",
			Detail: fmt.Sprintf("%.3f, target %.2f", m.CLS, clsBand.good),
		})
	}
	if m.SpeedIndex > siBand.good {
		out = append(out, Finding{
			ID:     "speed-index",
			Title:  "Improve how quickly content is visibly populated",
			Detail: fmt.Sprintf("%.0fms, target %.0fms", m.SpeedIndex, siBand.good),
		})
	}
	const transferBudget = 2 << 20
	if full.Timing.TransferBytes > transferBudget {
		out = append(out, Finding{
			ID:     "total-byte-weight",
			Title:  "Reduce total transfer size",
			Detail: fmt.Sprintf("%.1f MB transferred", float64(full.Timing.TransferBytes)/(1<<20)),
		})
	}
	return out
}

func accessibilityIssues(checks []Check) []Finding {
	var out []Finding
	for _, check := range checks {
		if check.Category != CategoryAccessibility || check.Passed {
			continue
		}
		finding := Finding{ID: check.ID, Title: check.Title}
		if check.Count > 0 {
			finding.Detail = fmt.Sprintf("%d occurrences", check.Count)
		}
		out = append(out, finding)
	}
	return out
}

func capFindings(findings []Finding) []Finding {
	if len(findings) > maxFindings {
		return findings[:maxFindings]
	}
	return findings
}

func round(value float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(value*factor) / factor
}
