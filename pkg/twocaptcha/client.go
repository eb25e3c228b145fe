// Package twocaptcha is a client for the 2captcha solving service's
// in.php/res.php protocol, in both plain-text and JSON response modes.
package twocaptcha

import (
	"context"
	"encoding/base64"
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

const defaultBaseURL = "http://2captcha.com"

// Submission methods.
const (
	MethodReCaptcha = "userrecaptcha"
	MethodBase64    = "base64"
)

// NotReady is the service's answer while a job is still being solved.
const NotReady = "CAPCHA_NOT_READY"

// Client defines the solving-service operations.
type Client interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	Result(ctx context.Context, id string) (*Result, error)
	Balance(ctx context.Context) (float64, error)
}

// SubmitRequest describes one challenge. Widget challenges set GoogleKey and
// PageURL; image challenges set Image.
type SubmitRequest struct {
	Method    string
	GoogleKey string
	PageURL   string
	Image     []byte
}

// Result is one poll answer. Token is set only when Ready.
type Result struct {
	Ready bool
	Token string
}

// ServiceError is a non-OK answer from the service, such as
// ERROR_WRONG_USER_KEY or ERROR_CAPTCHA_UNSOLVABLE. These are terminal.
type ServiceError struct {
	Op   string
	Code string
	Text string
}

func (e *ServiceError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("twocaptcha: %s: %s (%s)", e.Op, e.Code, e.Text)
	}
	return fmt.Sprintf("twocaptcha: %s: %s", e.Op, e.Code)
}

// APIError is returned when the service responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twocaptcha: HTTP %d: %s", e.StatusCode, e.Body)
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

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithJSONMode requests json=1 responses.
func WithJSONMode(on bool) Option {
	return func(c *httpClient) {
		c.jsonMode = on
	}
}

type httpClient struct {
	apiKey   string
	baseURL  string
	jsonMode bool
	http     *http.Client
}

// NewClient creates a new solving-service client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	form := url.Values{}
	form.Set("key", c.apiKey)
	form.Set("method", req.Method)
	switch req.Method {
	case MethodReCaptcha:
		form.Set("googlekey", req.GoogleKey)
		form.Set("pageurl", req.PageURL)
	case MethodBase64:
		form.Set("body", base64.StdEncoding.EncodeToString(req.Image))
	default:
		return "", eris.Errorf("twocaptcha: unsupported method %q", req.Method)
	}
	if c.jsonMode {
		form.Set("json", "1")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/in.php", strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "twocaptcha: create submit request")
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	ans, err := c.do(httpReq)
	if err != nil {
		return "", eris.Wrap(err, "twocaptcha: submit")
	}
	if !ans.ok {
		return "", &ServiceError{Op: "submit", Code: ans.value, Text: ans.text}
	}
	return ans.value, nil
}

func (c *httpClient) Result(ctx context.Context, id string) (*Result, error) {
	q := url.Values{}
	q.Set("action", "get")
	q.Set("id", id)

	ans, err := c.get(ctx, q)
	if err != nil {
		return nil, eris.Wrapf(err, "twocaptcha: get result %s", id)
	}
	if ans.ok {
		return &Result{Ready: true, Token: ans.value}, nil
	}
	if ans.value == NotReady {
		return &Result{}, nil
	}
	return nil, &ServiceError{Op: "result", Code: ans.value, Text: ans.text}
}

func (c *httpClient) Balance(ctx context.Context) (float64, error) {
	q := url.Values{}
	q.Set("action", "getbalance")

	ans, err := c.get(ctx, q)
	if err != nil {
		return 0, eris.Wrap(err, "twocaptcha: get balance")
	}
	// Plain-text balance answers carry no OK| marker.
	bal, perr := strconv.ParseFloat(ans.value, 64)
	if (c.jsonMode && !ans.ok) || perr != nil {
		return 0, &ServiceError{Op: "balance", Code: ans.value, Text: ans.text}
	}
	return bal, nil
}

func (c *httpClient) get(ctx context.Context, q url.Values) (answer, error) {
	q.Set("key", c.apiKey)
	if c.jsonMode {
		q.Set("json", "1")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/res.php?"+q.Encode(), nil)
	if err != nil {
		return answer{}, eris.Wrap(err, "create request")
	}
	return c.do(req)
}

// answer is a decoded service response. value is the job id, token or
// balance on success, and the error code otherwise.
type answer struct {
	ok    bool
	value string
	text  string
}

type jsonAnswer struct {
	Status    int        `json:"status"`
	Request   flexString `json:"request"`
	ErrorText string     `json:"error_text"`
}

// flexString accepts either a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func (c *httpClient) do(req *http.Request) (answer, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return answer{}, eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return answer{}, eris.Wrap(err, "read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return answer{}, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	body := strings.TrimSpace(string(data))
	if c.jsonMode {
		var ja jsonAnswer
		if err := json.Unmarshal([]byte(body), &ja); err != nil {
			return answer{}, eris.Wrap(err, "decode response")
		}
		return answer{ok: ja.Status == 1, value: string(ja.Request), text: ja.ErrorText}, nil
	}
	if rest, ok := strings.CutPrefix(body, "OK|"); ok {
		return answer{ok: true, value: rest}, nil
	}
	return answer{value: body}, nil
}
