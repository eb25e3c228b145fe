package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/violation-cli/internal/model"
)

// textIndicators qualify a block of free text as describing a violation.
var textIndicators = []string{"violation", "ticket", "fine", "amount due", "issued"}

var (
	ticketRe = regexp.MustCompile(`(?i)(?:ticket|violation|summons)\s*(?:no\.?|number|#)?\s*:?\s*#?\s*([A-Z0-9]*\d[A-Z0-9]{3,})`)
	dollarRe = regexp.MustCompile(`\$\s*(\d[\d,]*(?:\.\d{1,2})?)`)
	dateRe   = regexp.MustCompile(`\b(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})\b`)
)

const blockSelector = "div, span, p, li"

func hasIndicator(s *goquery.Selection) bool {
	text := strings.TrimSpace(s.Text())
	return len(text) >= 10 && containsAny(strings.ToLower(text), textIndicators)
}

// fromText scans block elements for violation descriptions. Only the
// innermost qualifying element is used so nested wrappers do not repeat it.
func fromText(doc *goquery.Document) []model.Violation {
	var out []model.Violation
	doc.Find(blockSelector).Each(func(_ int, el *goquery.Selection) {
		if !hasIndicator(el) {
			return
		}
		if el.Find(blockSelector).FilterFunction(func(_ int, c *goquery.Selection) bool {
			return hasIndicator(c)
		}).Length() > 0 {
			return
		}
		if v, ok := parseText(cellText(el)); ok {
			out = append(out, v)
		}
	})
	return out
}

// parseText applies the ticket, amount and date patterns to one block. It
// reports false when none of them match.
func parseText(text string) (model.Violation, bool) {
	v := model.Violation{Raw: []string{text}}
	found := false
	if m := ticketRe.FindStringSubmatch(text); m != nil {
		v.SummonsNumber = m[1]
		found = true
	}
	if m := dollarRe.FindStringSubmatch(text); m != nil {
		v.FineAmount = model.ParseAmount(m[1])
		found = true
	}
	if m := dateRe.FindStringSubmatch(text); m != nil {
		v.IssueDate = m[1]
		found = true
	}
	return v, found
}
