package model

import (
	"slices"
	"time"
)

// CompletenessReport holds per-field presence fractions over a violation set.
type CompletenessReport struct {
	Total       int                `json:"total"`
	Fields      map[string]float64 `json:"fields"`
	HighQuality float64            `json:"high_quality"`
}

// Summary aggregates a violation set for display.
type Summary struct {
	TotalViolations int      `json:"total_violations"`
	TotalAmountDue  float64  `json:"total_amount_due"`
	Paid            int      `json:"paid"`
	Outstanding     int      `json:"outstanding"`
	Agencies        []string `json:"agencies"`
	ViolationTypes  []string `json:"violation_types"`
}

// Summarize computes a Summary over vs.
func Summarize(vs []Violation) Summary {
	s := Summary{TotalViolations: len(vs), Agencies: []string{}, ViolationTypes: []string{}}
	for i := range vs {
		v := &vs[i]
		if v.AmountDue != nil {
			s.TotalAmountDue += *v.AmountDue
		}
		switch v.Status {
		case StatusPaid:
			s.Paid++
		case StatusOutstanding:
			s.Outstanding++
		}
		if !IsPlaceholder(v.IssuingAgency) && !slices.Contains(s.Agencies, v.IssuingAgency) {
			s.Agencies = append(s.Agencies, v.IssuingAgency)
		}
		if !IsPlaceholder(v.ViolationCode) && !slices.Contains(s.ViolationTypes, v.ViolationCode) {
			s.ViolationTypes = append(s.ViolationTypes, v.ViolationCode)
		}
	}
	slices.Sort(s.Agencies)
	slices.Sort(s.ViolationTypes)
	return s
}

// ArtifactOutcome records one artifact download attempt.
type ArtifactOutcome struct {
	IdentityKey string `json:"identity_key"`
	URL         string `json:"url"`
	LocalPath   string `json:"local_path,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

// ArtifactSuccessRate returns the fraction of successful downloads, or zero
// when none were attempted.
func ArtifactSuccessRate(outcomes []ArtifactOutcome) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	ok := 0
	for _, o := range outcomes {
		if o.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(outcomes))
}

// DebugInfo captures how the browser path reached its result page.
type DebugInfo struct {
	InitialURL     string `json:"initial_url,omitempty"`
	FinalURL       string `json:"final_url,omitempty"`
	PageTitle      string `json:"page_title,omitempty"`
	FillStrategy   string `json:"fill_strategy,omitempty"`
	SubmitStrategy string `json:"submit_strategy,omitempty"`
	CaptchaPresent bool   `json:"captcha_present"`
	CaptchaSolved  bool   `json:"captcha_solved"`
	TimedOut       bool   `json:"timed_out"`
	AbortedAt      string `json:"aborted_at,omitempty"`
}

// AcquisitionResult is the outcome of one plate lookup. Error is set only
// when no acquisition path produced data.
type AcquisitionResult struct {
	ID           string             `json:"id"`
	Plate        string             `json:"plate"`
	State        string             `json:"state"`
	Violations   []Violation        `json:"violations"`
	Sources      []SourceTag        `json:"sources"`
	Completeness CompletenessReport `json:"completeness"`
	Summary      Summary            `json:"summary"`
	Artifacts    []ArtifactOutcome  `json:"artifacts,omitempty"`
	Warnings     []string           `json:"warnings,omitempty"`
	Debug        *DebugInfo         `json:"debug,omitempty"`
	StartedAt    time.Time          `json:"started_at"`
	Elapsed      time.Duration      `json:"elapsed_ns"`
	Error        string             `json:"error,omitempty"`
}

// AddSource records that tag contributed to the result.
func (r *AcquisitionResult) AddSource(tag SourceTag) {
	if slices.Contains(r.Sources, tag) {
		return
	}
	r.Sources = append(r.Sources, tag)
	slices.Sort(r.Sources)
}

// Warn appends a non-fatal warning.
func (r *AcquisitionResult) Warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
