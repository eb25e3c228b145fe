package scrape

import (
	"strings"
)

// BlockType describes the kind of interstitial served instead of results.
type BlockType string

const (
	BlockNone         BlockType = ""
	BlockCloudflare   BlockType = "cloudflare"
	BlockAccessDenied BlockType = "access_denied"
	BlockCaptcha      BlockType = "captcha"
	BlockJSShell      BlockType = "js_shell"
)

// DetectBlock checks rendered result markup for signs that the site served an
// anti-bot page instead of search results.
func DetectBlock(html string) (bool, BlockType) {
	if html == "" {
		return false, BlockNone
	}
	lower := strings.ToLower(html)

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
		return true, BlockCloudflare
	}

	// Akamai-style edge denial.
	if strings.Contains(lower, "access denied") && strings.Contains(lower, "reference #") {
		return true, BlockAccessDenied
	}

	// A widget on the search form is expected; these phrases only appear on
	// interstitials that replace the results.
	if strings.Contains(lower, "verify you are human") ||
		strings.Contains(lower, "are you a robot") ||
		strings.Contains(lower, "please complete the captcha") {
		return true, BlockCaptcha
	}

	if len(html) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, "meta http-equiv=\"refresh\"") {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}
