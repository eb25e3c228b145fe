package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/violation-cli/internal/model"
)

// column is the record attribute a table column feeds.
type column int

const (
	colNone column = iota
	colSummons
	colDate
	colTime
	colAmountDue
	colPenalty
	colPayment
	colFine
	colStatus
	colCode
	colLocation
	colAgency
	colCounty
	colPrecinct
	colBadge
)

// headerRules map header substrings to columns. Earlier rules win, so
// "violation number" is an identifier and "amount due" is not a fine.
var headerRules = []struct {
	subs []string
	col  column
}{
	{[]string{"number", "ticket", "summons"}, colSummons},
	{[]string{"date"}, colDate},
	{[]string{"time"}, colTime},
	{[]string{"due", "balance"}, colAmountDue},
	{[]string{"penalty"}, colPenalty},
	{[]string{"paid", "payment"}, colPayment},
	{[]string{"amount", "fine"}, colFine},
	{[]string{"status"}, colStatus},
	{[]string{"type", "code", "violation", "description"}, colCode},
	{[]string{"location", "street", "address"}, colLocation},
	{[]string{"agency"}, colAgency},
	{[]string{"county", "borough"}, colCounty},
	{[]string{"precinct"}, colPrecinct},
	{[]string{"officer", "badge"}, colBadge},
}

// positional is the column layout assumed when headers are unusable.
var positional = []column{colSummons, colDate, colCode, colFine, colStatus}

func headerColumn(h string) column {
	h = strings.ToLower(h)
	for _, r := range headerRules {
		for _, s := range r.subs {
			if strings.Contains(h, s) {
				return r.col
			}
		}
	}
	return colNone
}

// headerLayout maps headers to columns. It returns nil when no header is
// recognised.
func headerLayout(headers []string) []column {
	cols := make([]column, len(headers))
	known := false
	for i, h := range headers {
		cols[i] = headerColumn(h)
		known = known || cols[i] != colNone
	}
	if !known {
		return nil
	}
	return cols
}

// columnsFor overlays recognised headers on the positional default. A cell
// under an unrecognised header takes its positional column unless a header
// already claims that column.
func columnsFor(layout []column, n int) []column {
	if layout == nil || len(layout) != n {
		return positional
	}
	cols := make([]column, n)
	claimed := make(map[column]bool, n)
	for i, c := range layout {
		cols[i] = c
		if c != colNone {
			claimed[c] = true
		}
	}
	for i := range cols {
		if cols[i] != colNone || i >= len(positional) || claimed[positional[i]] {
			continue
		}
		cols[i] = positional[i]
		claimed[positional[i]] = true
	}
	return cols
}

var (
	streetMarkers = []string{"st ", "ave ", "blvd ", "rd ", "pkwy ", "street", "avenue"}
	badgeRe       = regexp.MustCompile(`^\d{4,6}$`)
)

// ownRows returns the rows of tbl that do not belong to a nested table.
func ownRows(tbl *goquery.Selection) *goquery.Selection {
	return tbl.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.Closest("table").IsSelection(tbl)
	})
}

func fromTables(doc *goquery.Document) []model.Violation {
	var out []model.Violation
	doc.Find("table").Each(func(_ int, tbl *goquery.Selection) {
		rows := ownRows(tbl)
		if rows.Length() < 2 {
			return
		}

		var headers []string
		rows.First().ChildrenFiltered("th, td").Each(func(_ int, c *goquery.Selection) {
			headers = append(headers, cellText(c))
		})
		layout := headerLayout(headers)

		rows.Slice(1, rows.Length()).Each(func(_ int, tr *goquery.Selection) {
			var cells []string
			tr.ChildrenFiltered("th, td").Each(func(_ int, c *goquery.Selection) {
				cells = append(cells, cellText(c))
			})
			if len(cells) < 3 || !containsAny(strings.ToLower(strings.Join(cells, " ")), rowKeywords) {
				return
			}
			out = append(out, fromRow(cells, columnsFor(layout, len(cells))))
		})
	})
	return out
}

func fromRow(cells []string, cols []column) model.Violation {
	v := model.Violation{Raw: cells}
	for i, text := range cells {
		if i >= len(cols) || model.IsPlaceholder(text) {
			continue
		}
		switch cols[i] {
		case colSummons:
			v.SummonsNumber = text
		case colDate:
			v.IssueDate = text
		case colTime:
			v.ViolationTime = text
		case colAmountDue:
			v.AmountDue = model.ParseAmount(text)
		case colPenalty:
			v.PenaltyAmount = model.ParseAmount(text)
		case colPayment:
			v.PaymentAmount = model.ParseAmount(text)
		case colFine:
			v.FineAmount = model.ParseAmount(text)
		case colCode:
			v.ViolationCode = text
		case colLocation:
			v.Location = text
		case colAgency:
			v.IssuingAgency = text
		case colCounty:
			v.County = text
		case colPrecinct:
			v.Precinct = text
		case colBadge:
			v.OfficerBadge = text
		}
	}
	applyRowHeuristics(&v, cells, cols)
	return v
}

// applyRowHeuristics fills location and officer badge from unmapped cells.
func applyRowHeuristics(v *model.Violation, cells []string, cols []column) {
	for i, text := range cells {
		if i < len(cols) && cols[i] != colNone {
			continue
		}
		lower := strings.ToLower(text) + " "
		if v.Location == "" && containsAny(lower, streetMarkers) {
			v.Location = text
			continue
		}
		if v.OfficerBadge == "" && badgeRe.MatchString(text) {
			v.OfficerBadge = text
		}
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
