package model

import "time"

// ChallengeKind distinguishes the two challenge families the solving service
// accepts.
type ChallengeKind string

const (
	ChallengeImage             ChallengeKind = "IMAGE"
	ChallengeInteractiveWidget ChallengeKind = "INTERACTIVE_WIDGET"
)

// CaptchaChallenge is created when a challenge element is detected on the
// search page and discarded once its token has been injected.
type CaptchaChallenge struct {
	Kind    ChallengeKind
	SiteKey string // widget only
	PageURL string // widget only
	Image   []byte // image only
}

// CaptchaSolution is the token returned by the solving service.
type CaptchaSolution struct {
	Token    string
	JobID    string
	SolvedAt time.Time
}
