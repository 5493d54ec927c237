package models

// DedupeEvidence merges evidence lists in order, dropping zero refs and
// structural duplicates. A positive limit caps the result; first-seen refs
// win so repeated merges stay deterministic.
func DedupeEvidence(limit int, lists ...[]EvidenceRef) []EvidenceRef {
	seen := make(map[string]struct{})
	var out []EvidenceRef
	for _, list := range lists {
		for _, ref := range list {
			if ref.IsZero() {
				continue
			}
			key := ref.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, ref)
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}
