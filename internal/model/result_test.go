package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	t.Parallel()

	vs := []Violation{
		{AmountDue: Float(40), Status: StatusOutstanding, IssuingAgency: "TRAFFIC", ViolationCode: "NO STANDING"},
		{AmountDue: Float(0), Status: StatusPaid, IssuingAgency: "POLICE DEPARTMENT", ViolationCode: "FIRE HYDRANT"},
		{Status: StatusUnknown, IssuingAgency: "TRAFFIC", ViolationCode: "-"},
	}
	s := Summarize(vs)

	assert.Equal(t, 3, s.TotalViolations)
	assert.InDelta(t, 40.0, s.TotalAmountDue, 0.001)
	assert.Equal(t, 1, s.Paid)
	assert.Equal(t, 1, s.Outstanding)
	assert.Equal(t, []string{"POLICE DEPARTMENT", "TRAFFIC"}, s.Agencies)
	assert.Equal(t, []string{"FIRE HYDRANT", "NO STANDING"}, s.ViolationTypes)
}

func TestSummarize_Empty(t *testing.T) {
	t.Parallel()

	s := Summarize(nil)
	assert.Zero(t, s.TotalViolations)
	assert.Empty(t, s.Agencies)
}

func TestArtifactSuccessRate(t *testing.T) {
	t.Parallel()

	assert.Zero(t, ArtifactSuccessRate(nil))
	assert.InDelta(t, 0.5, ArtifactSuccessRate([]ArtifactOutcome{{Success: true}, {Success: false}}), 0.001)
}

func TestAcquisitionResult_AddSource(t *testing.T) {
	t.Parallel()

	var r AcquisitionResult
	r.AddSource(SourceStructured)
	r.AddSource(SourceScraped)
	r.AddSource(SourceStructured)
	assert.Equal(t, []SourceTag{SourceScraped, SourceStructured}, r.Sources)

	r.Warn("enhancement skipped")
	assert.Equal(t, []string{"enhancement skipped"}, r.Warnings)
}
