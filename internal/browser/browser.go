// Package browser provisions headless browser sessions and exposes the
// narrow page surface the search interactor drives.
package browser

import (
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
)

// ErrTimeout is returned when a wait on the page exceeds its timeout.
var ErrTimeout = eris.New("browser: timeout")

// Page is the subset of page operations the interactor needs. Selectors are
// CSS/Playwright selectors; nth indexes into all matches of a selector.
type Page interface {
	Goto(url string, timeout time.Duration) error
	URL() string
	Title() (string, error)
	Content() (string, error)

	Count(selector string) (int, error)
	Fill(selector string, nth int, value string) error
	Click(selector string, nth int) error
	Press(selector string, nth int, key string) error
	SelectOption(selector, value string) error
	Attribute(selector, name string) (string, error)
	Screenshot(selector string) ([]byte, error)

	Evaluate(expr string, arg any) (any, error)
	WaitForFunction(expr string, arg any, timeout time.Duration) error
}

// Session is one exclusively owned browser page and everything behind it.
// Close is idempotent and safe to call from another goroutine.
type Session interface {
	Page() Page
	Close() error
}

// Config controls how sessions are launched.
type Config struct {
	Headless       bool
	ExecutablePath string
	Proxies        []string
	UserAgent      string
	Headers        map[string]string
	ViewportWidth  int
	ViewportHeight int
	Args           []string
}

// DefaultArgs are the Chromium flags used in containers.
var DefaultArgs = []string{
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
	"--disable-gpu",
}

// proxyRotator hands out proxies round-robin.
type proxyRotator struct {
	proxies []string
	next    atomic.Uint64
}

func (r *proxyRotator) pick() string {
	if len(r.proxies) == 0 {
		return ""
	}
	n := r.next.Add(1) - 1
	return r.proxies[n%uint64(len(r.proxies))]
}
