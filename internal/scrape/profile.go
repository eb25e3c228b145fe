package scrape

import (
	_ "embed"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed profile.yaml
var defaultProfileYAML []byte

// Profile describes one search site: where the form lives, how to find its
// fields, and what a settled result page looks like.
type Profile struct {
	SearchURL    string `yaml:"search_url"`
	DefaultState string `yaml:"default_state"`

	Plate struct {
		Selector             string   `yaml:"selector"`
		StateSelector        string   `yaml:"state_selector"`
		PositionalSelector   string   `yaml:"positional_selector"`
		PositionalIndex      int      `yaml:"positional_index"`
		PlaceholderSelectors []string `yaml:"placeholder_selectors"`
	} `yaml:"plate"`

	Challenge struct {
		Selectors       []string `yaml:"selectors"`
		SiteKeySelector string   `yaml:"sitekey_selector"`
		ResponseField   string   `yaml:"response_field"`
	} `yaml:"challenge"`

	Submit struct {
		ButtonSelector      string   `yaml:"button_selector"`
		ButtonIndex         int      `yaml:"button_index"`
		FormButtonSelectors []string `yaml:"form_button_selectors"`
	} `yaml:"submit"`

	Results struct {
		Keywords []string `yaml:"keywords"`
	} `yaml:"results"`

	Timeouts struct {
		NavigateSecs  int `yaml:"navigate_secs"`
		ResultsSecs   int `yaml:"results_secs"`
		SettleSecs    int `yaml:"settle_secs"`
		ChallengeSecs int `yaml:"challenge_secs"`
	} `yaml:"timeouts"`

	Browser struct {
		UserAgent string `yaml:"user_agent"`
		Viewport  struct {
			Width  int `yaml:"width"`
			Height int `yaml:"height"`
		} `yaml:"viewport"`
		Headers map[string]string `yaml:"headers"`
	} `yaml:"browser"`
}

// DefaultProfile returns the embedded profile.
func DefaultProfile() (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(defaultProfileYAML, &p); err != nil {
		return nil, eris.Wrap(err, "scrape: parse default profile")
	}
	return &p, nil
}

// LoadProfile reads a profile from path, layered over the embedded default.
// An empty path returns the default.
func LoadProfile(path string) (*Profile, error) {
	p, err := DefaultProfile()
	if err != nil || path == "" {
		return p, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: read profile %s", path)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, eris.Wrapf(err, "scrape: parse profile %s", path)
	}
	if p.SearchURL == "" {
		return nil, eris.Errorf("scrape: profile %s has no search_url", path)
	}
	return p, nil
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

// NavigateTimeout bounds the initial page load.
func (p *Profile) NavigateTimeout() time.Duration { return secs(p.Timeouts.NavigateSecs) }

// ResultsTimeout bounds the wait for a settled result page.
func (p *Profile) ResultsTimeout() time.Duration { return secs(p.Timeouts.ResultsSecs) }

// SettleDelay is the pause after the result predicate fires.
func (p *Profile) SettleDelay() time.Duration { return secs(p.Timeouts.SettleSecs) }

// ChallengeTimeout bounds a challenge solve. Zero defers to the solver.
func (p *Profile) ChallengeTimeout() time.Duration { return secs(p.Timeouts.ChallengeSecs) }
