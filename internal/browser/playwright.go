package browser

import (
	"context"
	"errors"
	"sync"
	"time"

	pw "github.com/playwright-community/playwright-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Launcher opens Chromium sessions through playwright. Each session gets its
// own driver, browser and context so a wedged page cannot affect others.
type Launcher struct {
	cfg     Config
	proxies *proxyRotator
}

// NewLauncher creates a Launcher.
func NewLauncher(cfg Config) *Launcher {
	if len(cfg.Args) == 0 {
		cfg.Args = DefaultArgs
	}
	if cfg.ViewportWidth <= 0 || cfg.ViewportHeight <= 0 {
		cfg.ViewportWidth, cfg.ViewportHeight = 1920, 1080
	}
	return &Launcher{cfg: cfg, proxies: &proxyRotator{proxies: cfg.Proxies}}
}

// Open starts a new session. The caller owns it and must Close it.
func (l *Launcher) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "browser: open")
	}

	driver, err := pw.Run()
	if err != nil {
		return nil, eris.Wrap(err, "browser: start playwright")
	}
	s := &playwrightSession{driver: driver}

	opts := pw.BrowserTypeLaunchOptions{
		Headless: pw.Bool(l.cfg.Headless),
		Args:     l.cfg.Args,
	}
	if l.cfg.ExecutablePath != "" {
		opts.ExecutablePath = pw.String(l.cfg.ExecutablePath)
	}
	if proxy := l.proxies.pick(); proxy != "" {
		opts.Proxy = &pw.Proxy{Server: proxy}
		zap.L().Debug("browser: using proxy", zap.String("proxy", proxy))
	}

	s.browser, err = driver.Chromium.Launch(opts)
	if err != nil {
		_ = s.Close()
		return nil, eris.Wrap(err, "browser: launch chromium")
	}

	ctxOpts := pw.BrowserNewContextOptions{
		Viewport: &pw.Size{Width: l.cfg.ViewportWidth, Height: l.cfg.ViewportHeight},
	}
	if l.cfg.UserAgent != "" {
		ctxOpts.UserAgent = pw.String(l.cfg.UserAgent)
	}
	if len(l.cfg.Headers) > 0 {
		ctxOpts.ExtraHttpHeaders = l.cfg.Headers
	}
	s.context, err = s.browser.NewContext(ctxOpts)
	if err != nil {
		_ = s.Close()
		return nil, eris.Wrap(err, "browser: new context")
	}

	page, err := s.context.NewPage()
	if err != nil {
		_ = s.Close()
		return nil, eris.Wrap(err, "browser: new page")
	}
	s.page = &playwrightPage{page: page}
	return s, nil
}

type playwrightSession struct {
	driver  *pw.Playwright
	browser pw.Browser
	context pw.BrowserContext
	page    *playwrightPage

	once sync.Once
	err  error
}

func (s *playwrightSession) Page() Page { return s.page }

func (s *playwrightSession) Close() error {
	s.once.Do(func() {
		var errs []error
		if s.context != nil {
			errs = append(errs, s.context.Close())
		}
		if s.browser != nil {
			errs = append(errs, s.browser.Close())
		}
		if s.driver != nil {
			errs = append(errs, s.driver.Stop())
		}
		if err := errors.Join(errs...); err != nil {
			s.err = eris.Wrap(err, "browser: close session")
		}
	})
	return s.err
}

type playwrightPage struct {
	page pw.Page
}

func ms(d time.Duration) *float64 { return pw.Float(float64(d.Milliseconds())) }

func (p *playwrightPage) Goto(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, pw.PageGotoOptions{
		WaitUntil: pw.WaitUntilStateDomcontentloaded,
		Timeout:   ms(timeout),
	})
	if err != nil {
		return eris.Wrapf(err, "browser: goto %s", url)
	}
	return nil
}

func (p *playwrightPage) URL() string { return p.page.URL() }

func (p *playwrightPage) Title() (string, error) {
	t, err := p.page.Title()
	return t, eris.Wrap(err, "browser: title")
}

func (p *playwrightPage) Content() (string, error) {
	c, err := p.page.Content()
	return c, eris.Wrap(err, "browser: content")
}

func (p *playwrightPage) Count(selector string) (int, error) {
	n, err := p.page.Locator(selector).Count()
	return n, eris.Wrapf(err, "browser: count %s", selector)
}

func (p *playwrightPage) Fill(selector string, nth int, value string) error {
	return eris.Wrapf(p.page.Locator(selector).Nth(nth).Fill(value), "browser: fill %s", selector)
}

func (p *playwrightPage) Click(selector string, nth int) error {
	return eris.Wrapf(p.page.Locator(selector).Nth(nth).Click(), "browser: click %s", selector)
}

func (p *playwrightPage) Press(selector string, nth int, key string) error {
	return eris.Wrapf(p.page.Locator(selector).Nth(nth).Press(key), "browser: press %s", selector)
}

func (p *playwrightPage) SelectOption(selector, value string) error {
	_, err := p.page.Locator(selector).First().SelectOption(pw.SelectOptionValues{Values: &[]string{value}})
	return eris.Wrapf(err, "browser: select %s", selector)
}

func (p *playwrightPage) Attribute(selector, name string) (string, error) {
	v, err := p.page.Locator(selector).First().GetAttribute(name)
	return v, eris.Wrapf(err, "browser: attribute %s of %s", name, selector)
}

func (p *playwrightPage) Screenshot(selector string) ([]byte, error) {
	b, err := p.page.Locator(selector).First().Screenshot()
	return b, eris.Wrapf(err, "browser: screenshot %s", selector)
}

func (p *playwrightPage) Evaluate(expr string, arg any) (any, error) {
	v, err := p.page.Evaluate(expr, arg)
	return v, eris.Wrap(err, "browser: evaluate")
}

func (p *playwrightPage) WaitForFunction(expr string, arg any, timeout time.Duration) error {
	_, err := p.page.WaitForFunction(expr, arg, pw.PageWaitForFunctionOptions{Timeout: ms(timeout)})
	if errors.Is(err, pw.ErrTimeout) {
		return eris.Wrap(ErrTimeout, "browser: wait for function")
	}
	return eris.Wrap(err, "browser: wait for function")
}
