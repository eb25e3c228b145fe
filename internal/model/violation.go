package model

import (
	"slices"
	"strings"
)

// SourceTag identifies which acquisition path supplied a record or field.
type SourceTag string

const (
	SourceStructured SourceTag = "STRUCTURED"
	SourceScraped    SourceTag = "SCRAPED"
)

// Status is the payment state of a violation. It is always derived from
// amounts, never copied from source text.
type Status string

const (
	StatusPaid        Status = "PAID"
	StatusOutstanding Status = "OUTSTANDING"
	StatusUnknown     Status = "UNKNOWN"
)

// RawKeyPrefix marks an identity key synthesized from a record's text when it
// has no summons number, issue date or description. Such keys keep records
// distinct but do not count as an identifier.
const RawKeyPrefix = "raw:"

// IsRawKey reports whether key was synthesized rather than derived.
func IsRawKey(key string) bool {
	return strings.HasPrefix(key, RawKeyPrefix)
}

// Violation is a single cited infraction.
type Violation struct {
	IdentityKey     string   `json:"identity_key"`
	SummonsNumber   string   `json:"summons_number,omitempty"`
	IssueDate       string   `json:"issue_date,omitempty"`
	ViolationTime   string   `json:"violation_time,omitempty"`
	ViolationCode   string   `json:"violation_code,omitempty"`
	FineAmount      *float64 `json:"fine_amount,omitempty"`
	PenaltyAmount   *float64 `json:"penalty_amount,omitempty"`
	InterestAmount  *float64 `json:"interest_amount,omitempty"`
	ReductionAmount *float64 `json:"reduction_amount,omitempty"`
	PaymentAmount   *float64 `json:"payment_amount,omitempty"`
	AmountDue       *float64 `json:"amount_due,omitempty"`
	Status          Status   `json:"status"`
	IssuingAgency   string   `json:"issuing_agency,omitempty"`
	Location        string   `json:"location,omitempty"`
	County          string   `json:"county,omitempty"`
	Precinct        string   `json:"precinct,omitempty"`
	OfficerBadge    string   `json:"officer_badge,omitempty"`

	ArtifactURL       string `json:"artifact_url,omitempty"`
	LocalArtifactPath string `json:"local_artifact_path,omitempty"`

	SourceTags      []SourceTag          `json:"source_tags"`
	FieldProvenance map[string]SourceTag `json:"field_provenance,omitempty"`

	// Raw holds the scraped cell or element text the record was built from.
	Raw []string `json:"raw,omitempty"`
}

// Float returns a pointer to f. Amount fields use nil for "absent".
func Float(f float64) *float64 { return &f }

// DeriveStatus applies the payment rule: nothing due and something paid is
// PAID, anything still due is OUTSTANDING, everything else UNKNOWN.
func DeriveStatus(amountDue, payment *float64) Status {
	due := 0.0
	if amountDue != nil {
		due = *amountDue
	}
	paid := 0.0
	if payment != nil {
		paid = *payment
	}
	switch {
	case due <= 0 && paid > 0:
		return StatusPaid
	case due > 0:
		return StatusOutstanding
	default:
		return StatusUnknown
	}
}

// DeriveIdentityKey returns the upper-cased summons number, or a composite of
// issue date and normalized description when no summons number is known.
func DeriveIdentityKey(summons, issueDate, description string) string {
	if s := strings.ToUpper(strings.TrimSpace(summons)); s != "" && !IsPlaceholder(s) {
		return s
	}
	date := NormalizeDate(issueDate)
	desc := NormalizeText(description)
	if date == "" && desc == "" {
		return ""
	}
	return "date:" + date + "|" + desc
}

// Normalize canonicalizes the issue date and recomputes the identity key and
// status from the record's own fields.
func (v *Violation) Normalize() {
	v.IssueDate = NormalizeDate(v.IssueDate)
	v.IdentityKey = DeriveIdentityKey(v.SummonsNumber, v.IssueDate, v.ViolationCode)
	v.Status = DeriveStatus(v.AmountDue, v.PaymentAmount)
}

// AddSource adds tag to the record's source set, keeping it sorted and unique.
func (v *Violation) AddSource(tag SourceTag) {
	if v.HasSource(tag) {
		return
	}
	v.SourceTags = append(v.SourceTags, tag)
	slices.Sort(v.SourceTags)
}

// HasSource reports whether tag is in the record's source set.
func (v *Violation) HasSource(tag SourceTag) bool {
	return slices.Contains(v.SourceTags, tag)
}

// Clone returns a deep copy.
func (v Violation) Clone() Violation {
	out := v
	out.FineAmount = cloneFloat(v.FineAmount)
	out.PenaltyAmount = cloneFloat(v.PenaltyAmount)
	out.InterestAmount = cloneFloat(v.InterestAmount)
	out.ReductionAmount = cloneFloat(v.ReductionAmount)
	out.PaymentAmount = cloneFloat(v.PaymentAmount)
	out.AmountDue = cloneFloat(v.AmountDue)
	out.SourceTags = slices.Clone(v.SourceTags)
	out.Raw = slices.Clone(v.Raw)
	if v.FieldProvenance != nil {
		out.FieldProvenance = make(map[string]SourceTag, len(v.FieldProvenance))
		for k, t := range v.FieldProvenance {
			out.FieldProvenance[k] = t
		}
	}
	return out
}

// MissingEnhancementData reports whether the record lacks a violation code or
// an artifact URL, the two gaps browser enhancement can fill.
func (v *Violation) MissingEnhancementData() bool {
	return IsPlaceholder(v.ViolationCode) || IsPlaceholder(v.ArtifactURL)
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}
