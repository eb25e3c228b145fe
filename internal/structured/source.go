// Package structured fetches violations from the open-data API and converts
// them to model records tagged STRUCTURED.
package structured

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/violation-cli/internal/model"
	"github.com/sells-group/violation-cli/internal/resilience"
	"github.com/sells-group/violation-cli/pkg/opendata"
)

// ServiceName is the circuit breaker and metrics label for the API.
const ServiceName = "opendata"

// Source returns the structured violations for a plate.
type Source interface {
	Fetch(ctx context.Context, plate, state string) ([]model.Violation, error)
}

// OpenData is a Source backed by the Socrata dataset, with retries and a
// circuit breaker around each search.
type OpenData struct {
	client  opendata.Client
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewOpenData wraps client. A nil breaker disables circuit breaking.
func NewOpenData(client opendata.Client, retry resilience.RetryConfig, breaker *resilience.CircuitBreaker) *OpenData {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(ServiceName, "search")
	}
	return &OpenData{client: client, retry: retry, breaker: breaker}
}

// Fetch searches the dataset and converts every row.
func (o *OpenData) Fetch(ctx context.Context, plate, state string) ([]model.Violation, error) {
	search := func(ctx context.Context) ([]opendata.Record, error) {
		return o.client.Search(ctx, plate, state)
	}
	call := search
	if o.breaker != nil {
		call = func(ctx context.Context) ([]opendata.Record, error) {
			return resilience.ExecuteVal(ctx, o.breaker, search)
		}
	}

	records, err := resilience.DoVal(ctx, o.retry, call)
	if err != nil {
		return nil, eris.Wrapf(err, "structured: fetch %s", plate)
	}

	out := make([]model.Violation, 0, len(records))
	for _, rec := range records {
		out = append(out, Convert(rec))
	}
	zap.L().Debug("structured: fetched violations",
		zap.String("plate", plate),
		zap.String("state", state),
		zap.Int("count", len(out)),
	)
	return out, nil
}

// Convert maps one dataset row to a normalized Violation tagged STRUCTURED.
func Convert(rec opendata.Record) model.Violation {
	v := model.Violation{
		SummonsNumber:   rec.SummonsNumber,
		IssueDate:       rec.IssueDate,
		ViolationTime:   rec.ViolationTime,
		ViolationCode:   rec.Violation,
		FineAmount:      model.ParseAmount(rec.FineAmount),
		PenaltyAmount:   model.ParseAmount(rec.PenaltyAmount),
		InterestAmount:  model.ParseAmount(rec.InterestAmount),
		ReductionAmount: model.ParseAmount(rec.ReductionAmount),
		PaymentAmount:   model.ParseAmount(rec.PaymentAmount),
		AmountDue:       model.ParseAmount(rec.AmountDue),
		IssuingAgency:   rec.IssuingAgency,
		County:          rec.County,
		Precinct:        rec.Precinct,
	}
	if rec.SummonsImage != nil {
		v.ArtifactURL = rec.SummonsImage.URL
	}
	for _, s := range []*string{&v.ViolationCode, &v.IssuingAgency, &v.County, &v.Precinct, &v.ArtifactURL} {
		if model.IsPlaceholder(*s) {
			*s = ""
		}
	}
	v.Normalize()
	v.AddSource(model.SourceStructured)
	return v
}
