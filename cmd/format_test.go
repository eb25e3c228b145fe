package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/violation-cli/internal/model"
	"github.com/sells-group/violation-cli/internal/store"
)

func TestFormatResult(t *testing.T) {
	v := model.Violation{
		SummonsNumber: "1234567890",
		IssueDate:     "2024-01-15",
		ViolationCode: "NO PARKING-STREET CLEANING",
		FineAmount:    model.Float(65),
		AmountDue:     model.Float(65),
		Status:        model.StatusOutstanding,
		SourceTags:    []model.SourceTag{model.SourceScraped, model.SourceStructured},
	}
	res := &model.AcquisitionResult{
		Plate:      "ABC1234",
		State:      "NY",
		Violations: []model.Violation{v},
		Sources:    []model.SourceTag{model.SourceScraped, model.SourceStructured},
		Summary:    model.Summarize([]model.Violation{v}),
		Warnings:   []string{"enhancement failed: timeout"},
		Elapsed:    1500 * time.Millisecond,
	}

	var buf bytes.Buffer
	formatResult(&buf, res)
	out := buf.String()

	assert.Contains(t, out, "ABC1234 (NY)")
	assert.Contains(t, out, "SCRAPED,STRUCTURED")
	assert.Contains(t, out, "Amount due:  $65.00")
	assert.Contains(t, out, "Warning:     enhancement failed: timeout")
	assert.Contains(t, out, "1234567890")
	assert.Contains(t, out, "OUTSTANDING")
	assert.NotContains(t, out, "Error:")
}

func TestFormatResult_Empty(t *testing.T) {
	res := &model.AcquisitionResult{Plate: "XYZ", State: "NJ", Error: "acquire: structured source unavailable: down"}

	var buf bytes.Buffer
	formatResult(&buf, res)

	assert.Contains(t, buf.String(), "Sources:     -")
	assert.Contains(t, buf.String(), "Error:       acquire: structured source unavailable")
	assert.NotContains(t, buf.String(), "SUMMONS")
}

func TestFormatHistory(t *testing.T) {
	results := []store.StoredResult{{
		ID:             "0d4f3c2e-1111-2222-3333-444455556666",
		Plate:          "ABC1234",
		State:          "NY",
		ViolationCount: 3,
		AmountDue:      115,
		CreatedAt:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}}

	var buf bytes.Buffer
	formatHistory(&buf, results)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

	assert.Len(t, lines, 2)
	assert.Contains(t, lines[1], "0d4f3c2e")
	assert.NotContains(t, lines[1], "1111")
	assert.Contains(t, lines[1], "$115.00")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
