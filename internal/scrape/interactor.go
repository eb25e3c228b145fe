package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/violation-cli/internal/browser"
	"github.com/sells-group/violation-cli/internal/extract"
	"github.com/sells-group/violation-cli/internal/model"
)

// State is a stage of one search interaction.
type State string

const (
	StateNavigated         State = "NAVIGATED"
	StateFormLocated       State = "FORM_LOCATED"
	StateFormFilled        State = "FORM_FILLED"
	StateChallengeResolved State = "CHALLENGE_RESOLVED"
	StateSubmitted         State = "SUBMITTED"
	StateResultsStable     State = "RESULTS_STABLE"
)

var (
	// ErrFormNotFound means no fill strategy could locate or fill the plate input.
	ErrFormNotFound = eris.New("scrape: search form not found")
	// ErrChallengeUnresolvable means a challenge is present and cannot be solved.
	ErrChallengeUnresolvable = eris.New("scrape: challenge unresolvable")
	// ErrSubmitFailed means every submit strategy failed.
	ErrSubmitFailed = eris.New("scrape: submit failed")
)

// AbortError ends a search. State is the stage that could not be completed,
// so a failed solve aborts at StateChallengeResolved.
type AbortError struct {
	State State
	Cause error
	Debug model.DebugInfo
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("scrape: aborted at %s: %v", e.State, e.Cause)
}

func (e *AbortError) Unwrap() error { return e.Cause }

// Solver resolves a challenge to a token.
type Solver interface {
	Solve(ctx context.Context, ch model.CaptchaChallenge, deadline time.Duration) (*model.CaptchaSolution, error)
}

// RawResultPage is the settled result page of one search.
type RawResultPage struct {
	HTML         string
	URL          string
	Title        string
	NoViolations bool
	Blocked      BlockType
	Debug        model.DebugInfo
}

// Interactor drives the search form of one site profile.
type Interactor struct {
	profile *Profile
	solver  Solver
	fill    []FillStrategy
	submit  []SubmitStrategy
}

// NewInteractor creates an Interactor. solver may be nil, in which case any
// detected challenge aborts the search.
func NewInteractor(profile *Profile, solver Solver) *Interactor {
	return &Interactor{
		profile: profile,
		solver:  solver,
		fill:    FillStrategies(profile),
		submit:  SubmitStrategies(profile),
	}
}

// search tracks one interaction's progress.
type search struct {
	ctx   context.Context
	page  browser.Page
	log   *zap.Logger
	debug model.DebugInfo
}

func (s *search) abort(state State, cause error) error {
	s.debug.AbortedAt = string(state)
	s.log.Warn("scrape: search aborted", zap.String("state", string(state)), zap.Error(cause))
	return &AbortError{State: state, Cause: cause, Debug: s.debug}
}

// Search runs the form interaction for plate/state on page, which the caller
// owns exclusively for the duration of the call.
func (in *Interactor) Search(ctx context.Context, page browser.Page, plate, state string) (*RawResultPage, error) {
	s := &search{
		ctx:  ctx,
		page: page,
		log:  zap.L().With(zap.String("plate", plate), zap.String("state", state)),
	}

	if err := page.Goto(in.profile.SearchURL, in.profile.NavigateTimeout()); err != nil {
		return nil, s.abort(StateNavigated, err)
	}
	s.debug.InitialURL = page.URL()
	if title, err := page.Title(); err == nil {
		s.debug.PageTitle = title
	}

	field, abortAt, err := in.fillForm(s, plate)
	if err != nil {
		return nil, s.abort(abortAt, err)
	}
	in.selectState(s, state)

	if err := ctx.Err(); err != nil {
		return nil, s.abort(StateChallengeResolved, err)
	}
	if err := in.resolveChallenge(s); err != nil {
		return nil, s.abort(StateChallengeResolved, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, s.abort(StateSubmitted, err)
	}
	if err := in.submitForm(s, field); err != nil {
		return nil, s.abort(StateSubmitted, err)
	}

	if err := in.waitForResults(s); err != nil {
		return nil, s.abort(StateResultsStable, err)
	}

	html, err := page.Content()
	if err != nil {
		return nil, s.abort(StateResultsStable, err)
	}
	s.debug.FinalURL = page.URL()
	if title, err := page.Title(); err == nil {
		s.debug.PageTitle = title
	}

	_, block := DetectBlock(html)
	if block != BlockNone {
		s.log.Warn("scrape: result page looks like an interstitial", zap.String("block", string(block)))
	}
	return &RawResultPage{
		HTML:         html,
		URL:          s.debug.FinalURL,
		Title:        s.debug.PageTitle,
		NoViolations: extract.IsNoViolations(html),
		Blocked:      block,
		Debug:        s.debug,
	}, nil
}

// fillForm tries each fill strategy once, in order. It returns the state to
// abort at when all fail.
func (in *Interactor) fillForm(s *search, plate string) (Field, State, error) {
	located := false
	for _, st := range in.fill {
		f, err := st.Fill(s.page, plate)
		if err == nil {
			s.debug.FillStrategy = st.Name
			s.log.Info("scrape: plate filled", zap.String("strategy", st.Name))
			return f, "", nil
		}
		if !errors.Is(err, errNoMatch) {
			located = true
		}
		s.log.Debug("scrape: fill strategy failed", zap.String("strategy", st.Name), zap.Error(err))
	}
	if located {
		return Field{}, StateFormFilled, ErrFormNotFound
	}
	return Field{}, StateFormLocated, ErrFormNotFound
}

// selectState picks the plate's state in the form when it differs from the
// site default. Failure is not fatal; the site searches its default state.
func (in *Interactor) selectState(s *search, state string) {
	sel := in.profile.Plate.StateSelector
	if sel == "" || state == "" || strings.EqualFold(state, in.profile.DefaultState) {
		return
	}
	if err := s.page.SelectOption(sel, strings.ToUpper(state)); err != nil {
		s.log.Debug("scrape: state select failed", zap.Error(err))
	}
}

func (in *Interactor) detectChallenge(s *search) (string, bool) {
	for _, sel := range in.profile.Challenge.Selectors {
		n, err := s.page.Count(sel)
		if err == nil && n > 0 {
			return sel, true
		}
	}
	return "", false
}

// injectTokenJS writes the token where reCAPTCHA-protected forms read it and
// fires the events their listeners wait on.
const injectTokenJS = `([field, token]) => {
	let el = document.getElementById(field) || document.querySelector('[name="' + field + '"]');
	if (!el) {
		el = document.createElement('textarea');
		el.id = field;
		el.name = field;
		el.style.display = 'none';
		(document.querySelector('form') || document.body).appendChild(el);
	}
	el.value = token;
	el.innerHTML = token;
	if (window.grecaptcha) {
		window.grecaptcha.getResponse = () => token;
	}
	el.dispatchEvent(new Event('change', { bubbles: true }));
	el.dispatchEvent(new Event('input', { bubbles: true }));
	return true;
}`

func (in *Interactor) resolveChallenge(s *search) error {
	sel, ok := in.detectChallenge(s)
	if !ok {
		return nil
	}
	s.debug.CaptchaPresent = true
	if in.solver == nil {
		return eris.Wrap(ErrChallengeUnresolvable, "scrape: no solver configured")
	}

	ch := model.CaptchaChallenge{Kind: model.ChallengeInteractiveWidget, PageURL: s.page.URL()}
	key, err := s.page.Attribute(in.profile.Challenge.SiteKeySelector, "data-sitekey")
	if err == nil && key != "" {
		ch.SiteKey = key
	} else {
		img, err := s.page.Screenshot(sel)
		if err != nil {
			return eris.Wrap(ErrChallengeUnresolvable, "scrape: capture challenge image")
		}
		ch = model.CaptchaChallenge{Kind: model.ChallengeImage, Image: img}
	}
	s.log.Info("scrape: challenge detected", zap.String("selector", sel), zap.String("kind", string(ch.Kind)))

	sol, err := in.solver.Solve(s.ctx, ch, in.profile.ChallengeTimeout())
	if err != nil {
		return err
	}
	if _, err := s.page.Evaluate(injectTokenJS, []any{in.profile.Challenge.ResponseField, sol.Token}); err != nil {
		return eris.Wrap(err, "scrape: inject challenge token")
	}
	s.debug.CaptchaSolved = true
	return nil
}

func (in *Interactor) submitForm(s *search, field Field) error {
	for _, st := range in.submit {
		if err := st.Submit(s.page, field); err != nil {
			s.log.Debug("scrape: submit strategy failed", zap.String("strategy", st.Name), zap.Error(err))
			continue
		}
		s.debug.SubmitStrategy = st.Name
		s.log.Info("scrape: form submitted", zap.String("strategy", st.Name))
		return nil
	}
	return ErrSubmitFailed
}

// resultsReadyJS is true once the page mentions a result or error keyword,
// or has navigated away from the search URL.
const resultsReadyJS = `([keywords, initialURL]) => {
	if (window.location.href !== initialURL) {
		return true;
	}
	const text = ((document.body && document.body.innerText) || '').toLowerCase();
	return keywords.some((k) => text.includes(k));
}`

// waitForResults blocks until the result predicate holds, then lets the page
// settle. A predicate timeout is recorded in the debug info, not returned.
func (in *Interactor) waitForResults(s *search) error {
	err := s.page.WaitForFunction(resultsReadyJS,
		[]any{in.profile.Results.Keywords, s.debug.InitialURL}, in.profile.ResultsTimeout())
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	switch {
	case errors.Is(err, browser.ErrTimeout):
		s.debug.TimedOut = true
		s.log.Warn("scrape: results did not stabilize, continuing", zap.Duration("timeout", in.profile.ResultsTimeout()))
	case err != nil:
		s.log.Debug("scrape: result wait failed", zap.Error(err))
	}

	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case <-time.After(in.profile.SettleDelay()):
	}
	return nil
}
