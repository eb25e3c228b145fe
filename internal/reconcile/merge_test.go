package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/violation-cli/internal/model"
)

func structuredRecord(summons, date, code string) model.Violation {
	v := model.Violation{
		SummonsNumber: summons,
		IssueDate:     date,
		ViolationCode: code,
		IssuingAgency: "TRAFFIC",
		SourceTags:    []model.SourceTag{model.SourceStructured},
	}
	v.Normalize()
	return v
}

func scrapedRecord(summons, date, code string) model.Violation {
	v := model.Violation{
		SummonsNumber: summons,
		IssueDate:     date,
		ViolationCode: code,
		SourceTags:    []model.SourceTag{model.SourceScraped},
	}
	v.Normalize()
	return v
}

func TestMerge_PaidScenario(t *testing.T) {
	s := structuredRecord("1234567890", "2024-01-15", "NO PARKING-STREET CLEANING")
	s.AmountDue = model.Float(0)
	s.PaymentAmount = model.Float(25)

	got, report := Merge([]model.Violation{s}, nil)
	require.Len(t, got, 1)
	assert.Equal(t, model.StatusPaid, got[0].Status)
	assert.Equal(t, []model.SourceTag{model.SourceStructured}, got[0].SourceTags)
	assert.Equal(t, 1, report.Total)
}

func TestMerge_OutstandingScenario(t *testing.T) {
	s := structuredRecord("1234567890", "2024-01-15", "NO PARKING-STREET CLEANING")
	s.AmountDue = model.Float(40)
	s.FineAmount = model.Float(65)

	got, report := Merge([]model.Violation{s}, nil)
	require.Len(t, got, 1)
	assert.Equal(t, model.StatusOutstanding, got[0].Status)
	assert.InDelta(t, 1.0, report.Fields[model.FieldFineAmount], 1e-9)
	assert.InDelta(t, 1.0, report.Fields[model.FieldAmountDue], 1e-9)
	assert.InDelta(t, 0.0, report.Fields[model.FieldLocation], 1e-9)
	assert.InDelta(t, 1.0, report.HighQuality, 1e-9)

	s.FineAmount = model.Float(0)
	_, report = Merge([]model.Violation{s}, nil)
	assert.InDelta(t, 0.0, report.Fields[model.FieldFineAmount], 1e-9, "zero fine is absent")
	assert.InDelta(t, 0.0, report.HighQuality, 1e-9)
}

func TestMerge_FillsGapsStructuredWins(t *testing.T) {
	s := structuredRecord("1234567890", "2024-01-15", "NO PARKING-STREET CLEANING")
	s.FineAmount = model.Float(65)

	c := scrapedRecord("1234567890", "01/15/2024", "NO PARKING")
	c.FineAmount = model.Float(999)
	c.Location = "W 42 ST"
	c.ArtifactURL = "https://example.com/img/1234567890"
	c.Raw = []string{"1234567890", "01/15/2024"}

	got, _ := Merge([]model.Violation{s}, []model.Violation{c})
	require.Len(t, got, 1)
	v := got[0]

	assert.Equal(t, "NO PARKING-STREET CLEANING", v.ViolationCode)
	assert.InDelta(t, 65.0, *v.FineAmount, 1e-9)
	assert.Equal(t, "W 42 ST", v.Location)
	assert.Equal(t, "https://example.com/img/1234567890", v.ArtifactURL)
	assert.Equal(t, []model.SourceTag{model.SourceScraped, model.SourceStructured}, v.SourceTags)
	assert.Equal(t, model.SourceStructured, v.FieldProvenance[model.FieldViolationCode])
	assert.Equal(t, model.SourceStructured, v.FieldProvenance[model.FieldFineAmount])
	assert.Equal(t, model.SourceScraped, v.FieldProvenance[model.FieldLocation])
	assert.Equal(t, model.SourceScraped, v.FieldProvenance[model.FieldArtifactURL])
	assert.Equal(t, c.Raw, v.Raw)
}

func TestMerge_PlaceholderCountsAsAbsent(t *testing.T) {
	s := structuredRecord("1234567890", "2024-01-15", "NO STANDING")
	s.Location = "N/A"
	c := scrapedRecord("1234567890", "2024-01-15", "NO STANDING")
	c.Location = "BROADWAY"

	got, _ := Merge([]model.Violation{s}, []model.Violation{c})
	require.Len(t, got, 1)
	assert.Equal(t, "BROADWAY", got[0].Location)
}

func TestMerge_IdentityKeyBeatsFuzzyMatch(t *testing.T) {
	s := structuredRecord("1234567890", "2024-01-15", "NO PARKING-STREET CLEANING")

	fuzzy := scrapedRecord("", "01/15/2024", "street cleaning")
	fuzzy.Location = "FUZZY AVE"
	exact := scrapedRecord("1234567890", "2024-02-01", "OTHER")
	exact.Location = "EXACT ST"

	got, _ := Merge([]model.Violation{s}, []model.Violation{fuzzy, exact})
	require.Len(t, got, 2)
	assert.Equal(t, "EXACT ST", got[0].Location)
	assert.Equal(t, fuzzy.IdentityKey, got[1].IdentityKey)
	assert.Equal(t, []model.SourceTag{model.SourceScraped}, got[1].SourceTags)
}

func TestMerge_FuzzySecondaryMatch(t *testing.T) {
	s := structuredRecord("1234567890", "2024-01-15", "NO PARKING-STREET CLEANING")
	c := scrapedRecord("", "01/15/2024", "Street Cleaning")
	c.Location = "W 42 ST"

	got, _ := Merge([]model.Violation{s}, []model.Violation{c})
	require.Len(t, got, 1)
	assert.Equal(t, "1234567890", got[0].IdentityKey)
	assert.Equal(t, "W 42 ST", got[0].Location)
	assert.True(t, got[0].HasSource(model.SourceScraped))
}

func TestMerge_CandidateUsedOnce(t *testing.T) {
	s1 := structuredRecord("111", "2024-01-15", "NO STANDING")
	s2 := structuredRecord("222", "2024-01-15", "NO STANDING")
	c := scrapedRecord("", "2024-01-15", "no standing")
	c.Location = "ONCE ST"

	got, _ := Merge([]model.Violation{s1, s2}, []model.Violation{c})
	require.Len(t, got, 2)
	assert.Equal(t, "ONCE ST", got[0].Location, "first structured record wins")
	assert.Empty(t, got[1].Location)
	assert.False(t, got[1].HasSource(model.SourceScraped))
}

func TestMerge_OrderAndUnmatchedAppended(t *testing.T) {
	s1 := structuredRecord("B2", "2024-01-01", "X")
	s2 := structuredRecord("A1", "2024-01-02", "Y")
	c1 := scrapedRecord("Z9", "2024-03-01", "Z")
	c2 := scrapedRecord("A1", "2024-01-02", "Y")

	got, report := Merge([]model.Violation{s1, s2}, []model.Violation{c1, c2})
	require.Len(t, got, 3)
	assert.Equal(t, "B2", got[0].IdentityKey)
	assert.Equal(t, "A1", got[1].IdentityKey)
	assert.Equal(t, "Z9", got[2].IdentityKey)
	assert.Equal(t, []model.SourceTag{model.SourceScraped}, got[2].SourceTags)
	assert.Equal(t, 3, report.Total)
}

func TestMerge_Invariants(t *testing.T) {
	s := []model.Violation{
		structuredRecord("111", "2024-01-01", "A"),
		structuredRecord("111", "2024-01-01", "A"),
		{IssueDate: "2024-05-05", AmountDue: model.Float(10)},
		{FineAmount: model.Float(50)},
		{FineAmount: model.Float(65)},
	}
	s[1].Location = "DUP ST"
	c := []model.Violation{
		scrapedRecord("333", "2024-02-02", "C"),
		{SummonsNumber: "444", PaymentAmount: model.Float(5), AmountDue: model.Float(0)},
	}

	got, _ := Merge(s, c)
	require.Len(t, got, 6)
	keys := map[string]bool{}
	for _, v := range got {
		assert.NotEmpty(t, v.IdentityKey)
		assert.NotEmpty(t, v.SourceTags)
		assert.Equal(t, model.DeriveStatus(v.AmountDue, v.PaymentAmount), v.Status)
		assert.False(t, keys[v.IdentityKey], "duplicate key %s", v.IdentityKey)
		keys[v.IdentityKey] = true
	}
	assert.Equal(t, "DUP ST", got[0].Location, "duplicate structured record fills gaps")
}

func TestMerge_KeylessRecordsStayDistinct(t *testing.T) {
	s := []model.Violation{
		{FineAmount: model.Float(50)},
		{FineAmount: model.Float(65)},
	}
	c := []model.Violation{{Raw: []string{"x", "y"}}}

	got, rep := Merge(s, c)
	require.Len(t, got, 3)
	assert.NotEqual(t, got[0].IdentityKey, got[1].IdentityKey)
	for _, v := range got {
		assert.True(t, model.IsRawKey(v.IdentityKey), v.IdentityKey)
	}
	require.NotNil(t, got[0].FineAmount)
	assert.InDelta(t, 50.0, *got[0].FineAmount, 1e-9)
	require.NotNil(t, got[1].FineAmount)
	assert.InDelta(t, 65.0, *got[1].FineAmount, 1e-9)
	assert.InDelta(t, 0.0, rep.Fields[model.FieldIdentityKey], 1e-9, "synthesized keys are not identifiers")

	again, _ := Merge(s, c)
	assert.Equal(t, got, again)
}

func TestMerge_Idempotent(t *testing.T) {
	s := []model.Violation{
		structuredRecord("1234567890", "2024-01-15", "NO PARKING-STREET CLEANING"),
		structuredRecord("5555555555", "2024-02-01", "FIRE HYDRANT"),
	}
	s[0].AmountDue = model.Float(40)
	c := []model.Violation{
		scrapedRecord("", "01/15/2024", "street cleaning"),
		scrapedRecord("7777777777", "2024-03-03", "BUS LANE"),
	}
	c[0].Location = "W 42 ST"

	got1, r1 := Merge(s, c)
	got2, r2 := Merge(s, c)
	assert.Equal(t, got1, got2)
	assert.Equal(t, r1, r2)
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	s := structuredRecord("1234567890", "2024-01-15", "NO STANDING")
	c := scrapedRecord("1234567890", "2024-01-15", "NO STANDING")
	c.Location = "W 42 ST"
	sIn := []model.Violation{s.Clone()}
	cIn := []model.Violation{c.Clone()}

	got, _ := Merge(sIn, cIn)
	got[0].ViolationCode = "CHANGED"

	assert.Equal(t, s, sIn[0])
	assert.Equal(t, c, cIn[0])
}

func TestCompleteness_Empty(t *testing.T) {
	r := Completeness(nil)
	assert.Zero(t, r.Total)
	assert.Zero(t, r.HighQuality)
	require.Len(t, r.Fields, len(model.CompletenessFields))
	for k, v := range r.Fields {
		assert.Zero(t, v, k)
	}
}

func TestCompleteness_Fractions(t *testing.T) {
	full := structuredRecord("1", "2024-01-01", "A")
	full.FineAmount = model.Float(65)
	full.Location = "MAIN ST"
	partial := structuredRecord("2", "", "-")

	r := Completeness([]model.Violation{full, partial})
	assert.Equal(t, 2, r.Total)
	assert.InDelta(t, 1.0, r.Fields[model.FieldIdentityKey], 1e-9)
	assert.InDelta(t, 0.5, r.Fields[model.FieldViolationCode], 1e-9)
	assert.InDelta(t, 0.5, r.Fields[model.FieldIssueDate], 1e-9)
	assert.InDelta(t, 0.5, r.Fields[model.FieldLocation], 1e-9)
	assert.InDelta(t, 1.0, r.Fields[model.FieldIssuingAgency], 1e-9)
	assert.InDelta(t, 0.0, r.Fields[model.FieldArtifactURL], 1e-9)
	assert.InDelta(t, 0.5, r.HighQuality, 1e-9)
}
