package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

type statusErr struct{ code int }

func (e *statusErr) Error() string   { return fmt.Sprintf("api status %d", e.code) }
func (e *statusErr) HTTPStatus() int { return e.code }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("invalid plate"), false},
		{"explicit", NewTransientError(errors.New("boom"), 503), true},
		{"wrapped explicit", fmt.Errorf("fetch: %w", NewTransientError(errors.New("boom"), 0)), true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"conn refused", syscall.ECONNREFUSED, true},
		{"net timeout", &net.DNSError{Err: "timeout", IsTimeout: true}, true},
		{"message pattern", errors.New("read tcp: i/o timeout"), true},
		{"unexpected eof", errors.New("Unexpected EOF while reading"), true},
		{"api 503", &statusErr{code: 503}, true},
		{"api 429 wrapped", fmt.Errorf("socrata: %w", &statusErr{code: 429}), true},
		{"api 404", &statusErr{code: 404}, false},
		{"api 400", &statusErr{code: 400}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 425, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected %d to be transient", code)
		}
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404, 501} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected %d to be permanent", code)
		}
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	te := NewTransientError(inner, 502)
	if !errors.Is(te, inner) {
		t.Error("expected errors.Is to find inner error")
	}
	if te.Error() != "inner" {
		t.Errorf("Error() = %q", te.Error())
	}
	if te.StatusCode != 502 {
		t.Errorf("StatusCode = %d", te.StatusCode)
	}
}
