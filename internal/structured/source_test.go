package structured

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/violation-cli/internal/model"
	"github.com/sells-group/violation-cli/internal/resilience"
	"github.com/sells-group/violation-cli/pkg/opendata"
)

type mockClient struct {
	searchFn func(ctx context.Context, plate, state string) ([]opendata.Record, error)
	calls    atomic.Int32
}

func (m *mockClient) Search(ctx context.Context, plate, state string) ([]opendata.Record, error) {
	m.calls.Add(1)
	return m.searchFn(ctx, plate, state)
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func TestConvert(t *testing.T) {
	v := Convert(opendata.Record{
		SummonsNumber: "8712345670",
		IssueDate:     "03/14/2024",
		ViolationTime: "09:12A",
		Violation:     "NO PARKING-STREET CLEANING",
		FineAmount:    "65",
		PaymentAmount: "65",
		AmountDue:     "0",
		Precinct:      "019",
		County:        "NY",
		IssuingAgency: "TRAFFIC",
		SummonsImage:  &opendata.Image{URL: "http://img/abc"},
	})

	assert.Equal(t, "8712345670", v.IdentityKey)
	assert.Equal(t, "2024-03-14", v.IssueDate)
	assert.Equal(t, "NO PARKING-STREET CLEANING", v.ViolationCode)
	require.NotNil(t, v.FineAmount)
	assert.InDelta(t, 65.0, *v.FineAmount, 0.001)
	assert.Equal(t, model.StatusPaid, v.Status)
	assert.Equal(t, "http://img/abc", v.ArtifactURL)
	assert.Equal(t, []model.SourceTag{model.SourceStructured}, v.SourceTags)
}

func TestConvert_MissingFields(t *testing.T) {
	v := Convert(opendata.Record{SummonsNumber: "1234567890", Violation: "N/A", AmountDue: "120.50"})
	assert.Empty(t, v.ViolationCode)
	assert.Empty(t, v.ArtifactURL)
	assert.Nil(t, v.FineAmount)
	assert.Equal(t, model.StatusOutstanding, v.Status)
	assert.True(t, v.MissingEnhancementData())
}

func TestOpenData_Fetch(t *testing.T) {
	mc := &mockClient{searchFn: func(_ context.Context, plate, state string) ([]opendata.Record, error) {
		assert.Equal(t, "ABC1234", plate)
		assert.Equal(t, "NY", state)
		return []opendata.Record{{SummonsNumber: "1"}, {SummonsNumber: "2"}}, nil
	}}

	vs, err := NewOpenData(mc, fastRetry(), nil).Fetch(context.Background(), "ABC1234", "NY")
	require.NoError(t, err)
	assert.Len(t, vs, 2)
}

func TestOpenData_RetriesTransient(t *testing.T) {
	mc := &mockClient{}
	mc.searchFn = func(context.Context, string, string) ([]opendata.Record, error) {
		if mc.calls.Load() < 3 {
			return nil, &opendata.APIError{StatusCode: 503}
		}
		return []opendata.Record{{SummonsNumber: "1"}}, nil
	}

	vs, err := NewOpenData(mc, fastRetry(), nil).Fetch(context.Background(), "P", "NY")
	require.NoError(t, err)
	assert.Len(t, vs, 1)
	assert.Equal(t, int32(3), mc.calls.Load())
}

func TestOpenData_PermanentErrorNotRetried(t *testing.T) {
	mc := &mockClient{searchFn: func(context.Context, string, string) ([]opendata.Record, error) {
		return nil, &opendata.APIError{StatusCode: 400, Body: "bad query"}
	}}

	_, err := NewOpenData(mc, fastRetry(), nil).Fetch(context.Background(), "P", "NY")
	require.Error(t, err)
	var apiErr *opendata.APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, int32(1), mc.calls.Load())
}

func TestOpenData_CircuitOpens(t *testing.T) {
	mc := &mockClient{searchFn: func(context.Context, string, string) ([]opendata.Record, error) {
		return nil, &opendata.APIError{StatusCode: 500}
	}}
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})
	src := NewOpenData(mc, fastRetry(), cb)

	_, err := src.Fetch(context.Background(), "P", "NY")
	require.Error(t, err)
	assert.Equal(t, resilience.CircuitOpen, cb.State())

	before := mc.calls.Load()
	_, err = src.Fetch(context.Background(), "P", "NY")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, before, mc.calls.Load())
}
