package reconcile

import "github.com/sells-group/violation-cli/internal/model"

// Completeness reports, per required field, the fraction of vs that carry a
// non-placeholder value, and the fraction that are high quality.
func Completeness(vs []model.Violation) model.CompletenessReport {
	r := model.CompletenessReport{
		Total:  len(vs),
		Fields: make(map[string]float64, len(model.CompletenessFields)),
	}
	for _, k := range model.CompletenessFields {
		r.Fields[k] = 0
	}
	if len(vs) == 0 {
		return r
	}

	counts := make(map[string]int, len(model.CompletenessFields))
	high := 0
	for i := range vs {
		v := &vs[i]
		for _, k := range model.CompletenessFields {
			if present(v, k) {
				counts[k]++
			}
		}
		if allPresent(v, model.HighQualityFields) {
			high++
		}
	}

	n := float64(len(vs))
	for _, k := range model.CompletenessFields {
		r.Fields[k] = float64(counts[k]) / n
	}
	r.HighQuality = float64(high) / n
	return r
}

func present(v *model.Violation, key string) bool {
	if key == model.FieldIdentityKey && model.IsRawKey(v.IdentityKey) {
		return false
	}
	f, ok := model.FieldByKey(key)
	return ok && f.Present(v)
}

func allPresent(v *model.Violation, keys []string) bool {
	for _, k := range keys {
		if !present(v, k) {
			return false
		}
	}
	return true
}
