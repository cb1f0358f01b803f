package audit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func fastReport() *FullReport {
	return &FullReport{
		URL:      "https://example.com/",
		FinalURL: "https://example.com/",
		Status:   200,
		Timing:   Timing{TTFB: 120, DOMContentLoaded: 900, Load: 1200, TransferBytes: 400_000},
		FCP:      1000,
		LCP:      2000,
		CLS:      0.05,
		Checks: []Check{
			{ID: "image-alt", Category: CategoryAccessibility, Passed: true},
			{ID: "html-lang", Category: CategoryAccessibility, Passed: true},
			{ID: "document-title", Category: CategorySEO, Passed: true},
			{ID: "viewport", Category: CategoryBestPractices, Passed: true},
		},
	}
}

func TestTrimFastPage(t *testing.T) {
	trimmed := Trim(fastReport())

	require.Equal(t, "https://example.com/", trimmed.FinalURL)
	require.Equal(t, 1.0, trimmed.Scores.Performance)
	require.Equal(t, 1.0, trimmed.Scores.Accessibility)
	require.Equal(t, 1.0, trimmed.Scores.BestPractices)
	require.Equal(t, 1.0, trimmed.Scores.SEO)

	require.Equal(t, 1000.0, trimmed.Metrics.FCP)
	require.Equal(t, 2000.0, trimmed.Metrics.LCP)
	require.Equal(t, 0.0, trimmed.Metrics.TBT)
	require.Equal(t, 0.05, trimmed.Metrics.CLS)
	require.Equal(t, 1500.0, trimmed.Metrics.SpeedIndex)

	require.Empty(t, trimmed.Opportunities)
	require.Empty(t, trimmed.AccessibilityIssues)
}

func TestTrimSlowPage(t *testing.T) {
	full := &FullReport{
		FinalURL: "https://slow.example.com/",
		Timing:   Timing{DOMContentLoaded: 4000, TransferBytes: 1 << 20},
		FCP:      3500,
		LCP:      5000,
		CLS:      0.3,
		LongTasks: []LongTask{
			{StartMS: 0, DurationMS: 400},
			{StartMS: 500, DurationMS: 400},
		},
	}
	trimmed := Trim(full)

	require.Equal(t, 700.0, trimmed.Metrics.TBT)
	require.Equal(t, 4250.0, trimmed.Metrics.SpeedIndex)
	require.Less(t, trimmed.Scores.Performance, 0.2)

	ids := make([]string, 0, len(trimmed.Opportunities))
	for _, f := range trimmed.Opportunities {
		ids = append(ids, f.ID)
	}
	require.Contains(t, ids, "largest-contentful-paint")
	require.Contains(t, ids, "first-contentful-paint")
	require.Contains(t, ids, "total-blocking-time")
	require.Contains(t, ids, "cumulative-layout-shift")
}

func TestTrimCapsFindingLists(t *testing.T) {
	full := &FullReport{
		Timing: Timing{DOMContentLoaded: 9000, TransferBytes: 5 << 20},
		FCP:    4000,
		LCP:    6000,
		CLS:    0.4,
		LongTasks: []LongTask{
			{DurationMS: 900},
		},
		Checks: []Check{
			{ID: "a1", Category: CategoryAccessibility, Passed: false},
			{ID: "a2", Category: CategoryAccessibility, Passed: false},
			{ID: "a3", Category: CategoryAccessibility, Passed: false},
			{ID: "a4", Category: CategoryAccessibility, Passed: false},
			{ID: "a5", Category: CategoryAccessibility, Passed: false},
			{ID: "a6", Category: CategoryAccessibility, Passed: false},
		},
	}
	trimmed := Trim(full)

	// Six candidate opportunities and six failing checks exist; both lists
	// must stay capped.
	require.Len(t, trimmed.Opportunities, maxFindings)
	require.Len(t, trimmed.AccessibilityIssues, maxFindings)
}

func TestTrimAccessibilityIssues(t *testing.T) {
	full := fastReport()
	full.Checks = []Check{
		{ID: "image-alt", Title: "Images have alternative text", Category: CategoryAccessibility, Passed: false, Count: 4},
		{ID: "html-lang", Title: "Document has a lang attribute", Category: CategoryAccessibility, Passed: false},
		{ID: "link-text", Title: "Links have discernible text", Category: CategoryAccessibility, Passed: true},
		{ID: "meta-description", Title: "Document has a meta description", Category: CategorySEO, Passed: false},
	}
	trimmed := Trim(full)

	require.Len(t, trimmed.AccessibilityIssues, 2)
	require.Equal(t, "image-alt", trimmed.AccessibilityIssues[0].ID)
	require.Equal(t, "4 occurrences", trimmed.AccessibilityIssues[0].Detail)
	require.Equal(t, "html-lang", trimmed.AccessibilityIssues[1].ID)

	require.InDelta(t, 0.33, trimmed.Scores.Accessibility, 0.001)
	require.Equal(t, 0.0, trimmed.Scores.SEO)
}

func TestTrimDeterministic(t *testing.T) {
	full := fastReport()
	full.LongTasks = []LongTask{{StartMS: 10, DurationMS: 120}}

	require.Equal(t, Trim(full), Trim(full))
}
