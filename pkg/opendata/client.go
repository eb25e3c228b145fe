// Package opendata is a client for the NYC Open Data (Socrata) open parking
// and camera violations dataset.
package opendata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL = "https://data.cityofnewyork.us"
	defaultDataset = "nc67-uf89"
	defaultLimit   = 1000
)

// Client defines the dataset operations.
type Client interface {
	// Search returns every record for plate. state narrows the query when set.
	Search(ctx context.Context, plate, state string) ([]Record, error)
}

// Record is one row of the dataset. Socrata serialises every column as a
// string, amounts included.
type Record struct {
	Plate             string `json:"plate"`
	State             string `json:"state"`
	LicenseType       string `json:"license_type"`
	SummonsNumber     string `json:"summons_number"`
	IssueDate         string `json:"issue_date"`
	ViolationTime     string `json:"violation_time"`
	Violation         string `json:"violation"`
	JudgmentEntryDate string `json:"judgment_entry_date"`
	FineAmount        string `json:"fine_amount"`
	PenaltyAmount     string `json:"penalty_amount"`
	InterestAmount    string `json:"interest_amount"`
	ReductionAmount   string `json:"reduction_amount"`
	PaymentAmount     string `json:"payment_amount"`
	AmountDue         string `json:"amount_due"`
	Precinct          string `json:"precinct"`
	County            string `json:"county"`
	IssuingAgency     string `json:"issuing_agency"`
	ViolationStatus   string `json:"violation_status"`
	SummonsImage      *Image `json:"summons_image,omitempty"`
}

// Image links to the scanned summons.
type Image struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

// APIError is returned when the API responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("opendata: HTTP %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithDataset overrides the dataset identifier.
func WithDataset(id string) Option {
	return func(c *httpClient) {
		c.dataset = id
	}
}

// WithAppToken sets the X-App-Token header, which lifts anonymous throttling.
func WithAppToken(token string) Option {
	return func(c *httpClient) {
		c.appToken = token
	}
}

// WithLimit sets the $limit query parameter.
func WithLimit(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL  string
	dataset  string
	appToken string
	limit    int
	http     *http.Client
}

// NewClient creates a new dataset client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		dataset: defaultDataset,
		limit:   defaultLimit,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, plate, state string) ([]Record, error) {
	plate = strings.ToUpper(strings.TrimSpace(plate))
	if plate == "" {
		return nil, eris.New("opendata: plate is required")
	}

	q := url.Values{}
	q.Set("plate", plate)
	if s := strings.ToUpper(strings.TrimSpace(state)); s != "" {
		q.Set("state", s)
	}
	q.Set("$limit", strconv.Itoa(c.limit))

	endpoint := fmt.Sprintf("%s/resource/%s.json?%s", c.baseURL, c.dataset, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "opendata: create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.appToken != "" {
		req.Header.Set("X-App-Token", c.appToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "opendata: search %s", plate)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "opendata: read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, eris.Wrap(err, "opendata: decode response")
	}
	return records, nil
}
