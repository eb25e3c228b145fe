// Package reconcile merges structured-source violations with scraped
// candidates and measures how complete the merged set is.
package reconcile

import (
	"fmt"
	"strings"

	"github.com/sells-group/violation-cli/internal/model"
)

// Merge matches scraped candidates to structured records and fills gaps in
// the structured data. Structured values win unless absent. The output keeps
// structured order, followed by unmatched scraped records. Inputs are not
// modified and the result depends only on the inputs.
func Merge(structured, scraped []model.Violation) ([]model.Violation, model.CompletenessReport) {
	a := prepare(structured, model.SourceStructured)
	b := prepare(scraped, model.SourceScraped)

	match := make([]int, len(a))
	used := make([]bool, len(b))
	for i := range match {
		match[i] = -1
	}

	// Identity keys first across the whole set so a fuzzy match can never
	// take a candidate another record matches exactly.
	byKey := make(map[string]int, len(b))
	for j := range b {
		k := strings.ToUpper(b[j].IdentityKey)
		if _, dup := byKey[k]; !dup && k != "" {
			byKey[k] = j
		}
	}
	for i := range a {
		if j, ok := byKey[strings.ToUpper(a[i].IdentityKey)]; ok && !used[j] {
			match[i], used[j] = j, true
		}
	}
	for i := range a {
		if match[i] >= 0 {
			continue
		}
		for j := range b {
			if !used[j] && fuzzyMatch(&a[i], &b[j]) {
				match[i], used[j] = j, true
				break
			}
		}
	}

	var out mergedSet
	for i := range a {
		v := a[i]
		if j := match[i]; j >= 0 {
			fill(&v, &b[j], model.SourceScraped)
			v.AddSource(model.SourceScraped)
			if len(v.Raw) == 0 {
				v.Raw = b[j].Raw
			}
		}
		out.add(v)
	}
	for j := range b {
		if !used[j] {
			out.add(b[j])
		}
	}

	for i := range out.items {
		v := &out.items[i]
		v.Status = model.DeriveStatus(v.AmountDue, v.PaymentAmount)
	}
	return out.items, Completeness(out.items)
}

// prepare deep-copies vs, normalizes each record and stamps it with tag as
// its only source and the provenance of every present field.
func prepare(vs []model.Violation, tag model.SourceTag) []model.Violation {
	out := make([]model.Violation, len(vs))
	for i := range vs {
		v := vs[i].Clone()
		key := v.IdentityKey
		v.Normalize()
		if v.IdentityKey == "" {
			v.IdentityKey = key
		}
		if v.IdentityKey == "" {
			v.IdentityKey = fallbackKey(&v, tag, i)
		}
		v.SourceTags = []model.SourceTag{tag}
		v.FieldProvenance = make(map[string]model.SourceTag, len(model.Fields)+1)
		v.FieldProvenance[model.FieldIdentityKey] = tag
		for _, f := range model.Fields {
			if f.Present(&v) {
				v.FieldProvenance[f.Key] = tag
			}
		}
		out[i] = v
	}
	return out
}

// fallbackKey names a record that has nothing to derive a key from. The
// source and position suffix keeps such records distinct from each other and
// from every derived key.
func fallbackKey(v *model.Violation, tag model.SourceTag, i int) string {
	return fmt.Sprintf("%s%s#%s-%d", model.RawKeyPrefix,
		model.NormalizeText(strings.Join(v.Raw, " ")), strings.ToLower(string(tag)), i)
}

// fill copies every field dst lacks from src and records tag as its source.
func fill(dst, src *model.Violation, tag model.SourceTag) {
	for _, f := range model.Fields {
		if f.Present(dst) || !f.Present(src) {
			continue
		}
		f.Copy(dst, src)
		dst.FieldProvenance[f.Key] = tag
	}
}

// fuzzyMatch pairs records with the same issue date whose descriptions
// contain one another after normalization.
func fuzzyMatch(s, c *model.Violation) bool {
	ds, dc := model.NormalizeDate(s.IssueDate), model.NormalizeDate(c.IssueDate)
	if ds == "" || ds != dc {
		return false
	}
	ts, tc := model.NormalizeText(s.ViolationCode), model.NormalizeText(c.ViolationCode)
	if ts == "" || tc == "" {
		return false
	}
	return strings.Contains(ts, tc) || strings.Contains(tc, ts)
}

// mergedSet keeps identity keys unique: a record whose key is already
// present only fills that record's gaps.
type mergedSet struct {
	items []model.Violation
	index map[string]int
}

func (m *mergedSet) add(v model.Violation) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	k := strings.ToUpper(v.IdentityKey)
	if i, ok := m.index[k]; ok {
		existing := &m.items[i]
		for _, f := range model.Fields {
			if !f.Present(existing) && f.Present(&v) {
				f.Copy(existing, &v)
				existing.FieldProvenance[f.Key] = v.FieldProvenance[f.Key]
			}
		}
		for _, t := range v.SourceTags {
			existing.AddSource(t)
		}
		return
	}
	m.index[k] = len(m.items)
	m.items = append(m.items, v)
}
