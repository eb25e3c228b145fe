// Package extract turns a rendered result page into candidate violation
// records. It is pure: HTML in, records out.
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/violation-cli/internal/model"
)

// noViolationPatterns match pages that explicitly report zero results.
var noViolationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`no\s+violations?\s+found`),
	regexp.MustCompile(`no\s+tickets?\s+found`),
	regexp.MustCompile(`no\s+records?\s+found`),
	regexp.MustCompile(`no\s+outstanding\s+violations?`),
	regexp.MustCompile(`no\s+parking\s+violations?`),
	regexp.MustCompile(`no\s+camera\s+violations?`),
	regexp.MustCompile(`there\s+are\s+no\s+violations?`),
	regexp.MustCompile(`0\s+violations?\s+found`),
}

// rowKeywords qualify a table row as violation data.
var rowKeywords = []string{
	"violation", "ticket", "fine", "amount", "due", "issued", "date", "code",
	"status", "penalty", "paid", "outstanding", "parking", "camera",
}

// Extract returns the violations found in html, in page order. A page that
// reports no violations yields an empty slice even if it contains tables.
func Extract(html string) []model.Violation {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return []model.Violation{}
	}
	stripNonContent(doc)

	if matchesNoViolations(visibleText(doc.Selection)) {
		return []model.Violation{}
	}

	out := fromTables(doc)
	if len(out) == 0 {
		out = fromText(doc)
	}
	return finalize(out)
}

// IsNoViolations reports whether html explicitly says there are no
// violations.
func IsNoViolations(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	stripNonContent(doc)
	return matchesNoViolations(visibleText(doc.Selection))
}

func stripNonContent(doc *goquery.Document) {
	doc.Find("script, style, noscript, template").Remove()
}

// visibleText lower-cases and collapses whitespace in the selection's text.
func visibleText(s *goquery.Selection) string {
	return strings.ToLower(strings.Join(strings.Fields(s.Text()), " "))
}

func matchesNoViolations(text string) bool {
	for _, re := range noViolationPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// finalize normalizes each record, tags it SCRAPED and collapses records
// that share an identity key, keeping the first.
func finalize(vs []model.Violation) []model.Violation {
	out := make([]model.Violation, 0, len(vs))
	seen := make(map[string]bool, len(vs))
	for _, v := range vs {
		v.Normalize()
		if v.IdentityKey == "" {
			v.IdentityKey = model.RawKeyPrefix + model.NormalizeText(strings.Join(v.Raw, " "))
		}
		if seen[v.IdentityKey] {
			continue
		}
		seen[v.IdentityKey] = true
		v.SourceTags = []model.SourceTag{model.SourceScraped}
		out = append(out, v)
	}
	return out
}
