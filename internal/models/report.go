package models

import (
	"fmt"
	"strings"
	"time"
)

// RunStatus is the outcome of one analyzer run
type RunStatus string

const (
	RunSucceeded  RunStatus = "succeeded"
	RunNothingNew RunStatus = "nothing_new"
	RunPartial    RunStatus = "partial"
	RunFailed     RunStatus = "failed"
	RunStopped    RunStatus = "stopped"
)

// MaxDigestErrors is how many errors a digest lists before summarizing the rest
const MaxDigestErrors = 5

// RunReport summarizes one run. Exactly one is sent per run.
type RunReport struct {
	RunID     string        `json:"run_id"`
	Platform  string        `json:"platform"`
	Status    RunStatus     `json:"status"`
	Message   string        `json:"message,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	RawRows          int `json:"raw_rows"`
	Units            int `json:"units"`
	AlreadyProcessed int `json:"already_processed"`
	Relevant         int `json:"relevant"`
	Rewritten        int `json:"rewritten"`
	RewriteFailed    int `json:"rewrite_failed"`
	EmptySource      int `json:"empty_source"`
	Synced           int `json:"synced"`

	TargetPartition string   `json:"target_partition"`
	Errors          []string `json:"errors,omitempty"`
}

// AddError records a non-fatal error
func (r *RunReport) AddError(err error) {
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
	}
}

// Title is a one-line headline for the report
func (r *RunReport) Title() string {
	switch r.Status {
	case RunSucceeded:
		return fmt.Sprintf("✅ Analyzer (%s) finished in %s", r.Platform, r.Duration.Round(time.Second))
	case RunNothingNew:
		return fmt.Sprintf("ℹ️ Analyzer (%s) finished: nothing new to process", r.Platform)
	case RunPartial:
		return fmt.Sprintf("⚠️ Analyzer (%s) finished with %d error(s)", r.Platform, len(r.Errors))
	case RunStopped:
		return fmt.Sprintf("🛑 Analyzer (%s) stopped by user", r.Platform)
	default:
		return fmt.Sprintf("🚨 Analyzer (%s) failed", r.Platform)
	}
}

// Text renders the report as a plain-text notification
func (r *RunReport) Text() string {
	var b strings.Builder
	b.WriteString(r.Title())
	b.WriteString("\n")
	if r.Message != "" {
		b.WriteString(r.Message)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Run: %s\n", r.RunID)
	fmt.Fprintf(&b, "Units: %d consolidated, %d already processed, %d relevant\n", r.Units, r.AlreadyProcessed, r.Relevant)
	fmt.Fprintf(&b, "Rewrites: %d ok, %d failed, %d empty\n", r.Rewritten, r.RewriteFailed, r.EmptySource)
	fmt.Fprintf(&b, "Synced to %s: %d", r.TargetPartition, r.Synced)
	if len(r.Errors) > 0 {
		b.WriteString("\n\n")
		b.WriteString(ErrorDigest(r.Errors))
	}
	return b.String()
}

// ErrorDigest lists the first MaxDigestErrors errors and counts the rest
func ErrorDigest(errs []string) string {
	if len(errs) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d error(s) occurred:", len(errs))
	for i, e := range errs {
		if i == MaxDigestErrors {
			fmt.Fprintf(&b, "\n- ... and %d more.", len(errs)-MaxDigestErrors)
			break
		}
		b.WriteString("\n- ")
		b.WriteString(e)
	}
	return b.String()
}
