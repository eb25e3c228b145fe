package model

// Field keys used in FieldProvenance and CompletenessReport.
const (
	FieldIdentityKey     = "identity_key"
	FieldSummonsNumber   = "summons_number"
	FieldIssueDate       = "issue_date"
	FieldViolationTime   = "violation_time"
	FieldViolationCode   = "violation_code"
	FieldFineAmount      = "fine_amount"
	FieldPenaltyAmount   = "penalty_amount"
	FieldInterestAmount  = "interest_amount"
	FieldReductionAmount = "reduction_amount"
	FieldPaymentAmount   = "payment_amount"
	FieldAmountDue       = "amount_due"
	FieldIssuingAgency   = "issuing_agency"
	FieldLocation        = "location"
	FieldCounty          = "county"
	FieldPrecinct        = "precinct"
	FieldOfficerBadge    = "officer_badge"
	FieldArtifactURL     = "artifact_url"
)

// Field describes one mergeable Violation attribute: how to tell whether a
// record carries a real value for it and how to copy it between records.
type Field struct {
	Key     string
	present func(*Violation) bool
	copy    func(dst, src *Violation)
}

// Present reports whether v has a non-placeholder value for the field.
func (f Field) Present(v *Violation) bool { return f.present(v) }

// Copy sets the field on dst from src.
func (f Field) Copy(dst, src *Violation) { f.copy(dst, src) }

func textField(key string, get func(*Violation) *string) Field {
	return Field{
		Key:     key,
		present: func(v *Violation) bool { return !IsPlaceholder(*get(v)) },
		copy:    func(dst, src *Violation) { *get(dst) = *get(src) },
	}
}

// amountField treats zero as absent when zeroIsAbsent is set. Fines are
// never legitimately zero; amounts due and payments are.
func amountField(key string, zeroIsAbsent bool, get func(*Violation) **float64) Field {
	return Field{
		Key: key,
		present: func(v *Violation) bool {
			p := *get(v)
			if p == nil {
				return false
			}
			return !zeroIsAbsent || *p != 0
		},
		copy: func(dst, src *Violation) { *get(dst) = cloneFloat(*get(src)) },
	}
}

// Fields lists every mergeable attribute in display order. The identity key
// is not listed: it is owned by whichever record anchors a merge.
var Fields = []Field{
	textField(FieldSummonsNumber, func(v *Violation) *string { return &v.SummonsNumber }),
	textField(FieldIssueDate, func(v *Violation) *string { return &v.IssueDate }),
	textField(FieldViolationTime, func(v *Violation) *string { return &v.ViolationTime }),
	textField(FieldViolationCode, func(v *Violation) *string { return &v.ViolationCode }),
	amountField(FieldFineAmount, true, func(v *Violation) **float64 { return &v.FineAmount }),
	amountField(FieldPenaltyAmount, true, func(v *Violation) **float64 { return &v.PenaltyAmount }),
	amountField(FieldInterestAmount, true, func(v *Violation) **float64 { return &v.InterestAmount }),
	amountField(FieldReductionAmount, true, func(v *Violation) **float64 { return &v.ReductionAmount }),
	amountField(FieldPaymentAmount, false, func(v *Violation) **float64 { return &v.PaymentAmount }),
	amountField(FieldAmountDue, false, func(v *Violation) **float64 { return &v.AmountDue }),
	textField(FieldIssuingAgency, func(v *Violation) *string { return &v.IssuingAgency }),
	textField(FieldLocation, func(v *Violation) *string { return &v.Location }),
	textField(FieldCounty, func(v *Violation) *string { return &v.County }),
	textField(FieldPrecinct, func(v *Violation) *string { return &v.Precinct }),
	textField(FieldOfficerBadge, func(v *Violation) *string { return &v.OfficerBadge }),
	textField(FieldArtifactURL, func(v *Violation) *string { return &v.ArtifactURL }),
}

var fieldsByKey = func() map[string]Field {
	m := make(map[string]Field, len(Fields)+1)
	for _, f := range Fields {
		m[f.Key] = f
	}
	m[FieldIdentityKey] = textField(FieldIdentityKey, func(v *Violation) *string { return &v.IdentityKey })
	return m
}()

// FieldByKey returns the field descriptor for key, including identity_key.
func FieldByKey(key string) (Field, bool) {
	f, ok := fieldsByKey[key]
	return f, ok
}

// CompletenessFields are the fields a CompletenessReport measures.
var CompletenessFields = []string{
	FieldIdentityKey,
	FieldViolationCode,
	FieldIssueDate,
	FieldFineAmount,
	FieldAmountDue,
	FieldIssuingAgency,
	FieldLocation,
	FieldArtifactURL,
}

// HighQualityFields must all be present for a record to count as high quality.
var HighQualityFields = []string{
	FieldIdentityKey,
	FieldViolationCode,
	FieldIssueDate,
	FieldFineAmount,
}
