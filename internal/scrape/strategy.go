package scrape

import (
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/violation-cli/internal/browser"
)

// Field points at one matched input on the page.
type Field struct {
	Selector string
	Nth      int
}

// errNoMatch means a strategy's selector matched nothing. It lets the
// interactor tell "form not located" from "located but not fillable".
var errNoMatch = eris.New("scrape: selector matched nothing")

// FillStrategy locates the plate input and types the plate into it.
type FillStrategy struct {
	Name string
	Fill func(page browser.Page, plate string) (Field, error)
}

// SubmitStrategy submits the search form. field is the input that was filled.
type SubmitStrategy struct {
	Name   string
	Submit func(page browser.Page, field Field) error
}

// fillAt fills the nth match of selector when it exists.
func fillAt(page browser.Page, selector string, nth int, plate string) (Field, error) {
	n, err := page.Count(selector)
	if err != nil {
		return Field{}, err
	}
	if n <= nth {
		return Field{}, eris.Wrapf(errNoMatch, "scrape: %s has %d matches, need %d", selector, n, nth+1)
	}
	if err := page.Fill(selector, nth, plate); err != nil {
		return Field{}, err
	}
	return Field{Selector: selector, Nth: nth}, nil
}

// FillStrategies returns the ordered fill chain for a profile: exact
// attribute name, position among text inputs, then placeholder or label.
func FillStrategies(p *Profile) []FillStrategy {
	return []FillStrategy{
		{
			Name: "attribute_name",
			Fill: func(page browser.Page, plate string) (Field, error) {
				return fillAt(page, p.Plate.Selector, 0, plate)
			},
		},
		{
			Name: "positional",
			Fill: func(page browser.Page, plate string) (Field, error) {
				return fillAt(page, p.Plate.PositionalSelector, p.Plate.PositionalIndex, plate)
			},
		},
		{
			Name: "placeholder_label",
			Fill: func(page browser.Page, plate string) (Field, error) {
				for _, sel := range p.Plate.PlaceholderSelectors {
					f, err := fillAt(page, sel, 0, plate)
					if errors.Is(err, errNoMatch) {
						continue
					}
					return f, err
				}
				return Field{}, errNoMatch
			},
		},
	}
}

// SubmitStrategies returns the ordered submit chain for a profile: the
// site's search button, a submit control scoped to the plate's form, then
// Enter on the filled input.
func SubmitStrategies(p *Profile) []SubmitStrategy {
	return []SubmitStrategy{
		{
			Name: "direct_button",
			Submit: func(page browser.Page, _ Field) error {
				n, err := page.Count(p.Submit.ButtonSelector)
				if err != nil {
					return err
				}
				if n == 0 {
					return errNoMatch
				}
				return page.Click(p.Submit.ButtonSelector, min(p.Submit.ButtonIndex, n-1))
			},
		},
		{
			Name: "form_button",
			Submit: func(page browser.Page, _ Field) error {
				for _, sel := range p.Submit.FormButtonSelectors {
					n, err := page.Count(sel)
					if err != nil || n == 0 {
						continue
					}
					return page.Click(sel, 0)
				}
				return errNoMatch
			},
		},
		{
			Name: "keyboard_enter",
			Submit: func(page browser.Page, field Field) error {
				if field.Selector == "" {
					return errNoMatch
				}
				return page.Press(field.Selector, field.Nth, "Enter")
			},
		},
	}
}
