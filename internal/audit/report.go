package audit

// Timing holds raw navigation timing collected from the page, in
// milliseconds unless noted.
type Timing struct {
	TTFB             float64 `json:"ttfb"`
	DOMContentLoaded float64 `json:"dom_content_loaded"`
	Load             float64 `json:"load"`
	TransferBytes    int64   `json:"transfer_bytes"`
	EncodedBodyBytes int64   `json:"encoded_body_bytes"`
}

// LongTask is one entry reported by the browser's longtask observer.
type LongTask struct {
	StartMS    float64 `json:"start_ms"`
	DurationMS float64 `json:"duration_ms"`
}

// Check is one DOM inspection outcome. Category groups checks into the
// score buckets: "accessibility", "seo" or "best-practices".
type Check struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Passed   bool   `json:"passed"`
	Count    int    `json:"count,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// FullReport is the complete audit result for one page. It is persisted
// as-is to the artifact store; downstream analysis only ever sees the
// trimmed form derived from it.
type FullReport struct {
	URL      string `json:"url"`
	FinalURL string `json:"final_url"`
	Status   int    `json:"status"`
	Title    string `json:"title"`

	Timing    Timing     `json:"timing"`
	FCP       float64    `json:"fcp"`
	LCP       float64    `json:"lcp"`
	CLS       float64    `json:"cls"`
	LongTasks []LongTask `json:"long_tasks"`

	DOMNodes  int     `json:"dom_nodes"`
	HTMLBytes int     `json:"html_bytes"`
	Checks    []Check `json:"checks"`
}

// Scores are category scores in the 0..1 range.
type Scores struct {
	Performance   float64 `json:"performance"`
	Accessibility float64 `json:"accessibility"`
	BestPractices float64 `json:"bestPractices"`
	SEO           float64 `json:"seo"`
}

// Metrics are the core timing metrics of the trimmed report. Times are in
// milliseconds; CLS is unitless.
type Metrics struct {
	FCP        float64 `json:"fcp"`
	LCP        float64 `json:"lcp"`
	TBT        float64 `json:"tbt"`
	CLS        float64 `json:"cls"`
	SpeedIndex float64 `json:"speedIndex"`
}

// Finding is one capped entry in the trimmed report's lists.
type Finding struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// TrimmedReport is the compact subset of a FullReport that downstream
// analysis consumes.
type TrimmedReport struct {
	FinalURL            string    `json:"finalUrl"`
	Scores              Scores    `json:"scores"`
	Metrics             Metrics   `json:"metrics"`
	Opportunities       []Finding `json:"opportunities"`
	AccessibilityIssues []Finding `json:"accessibilityIssues"`
}
