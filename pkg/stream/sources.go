package stream

import "advisorai/pkg/domain"

// MergeSources appends the incoming grounding sources whose URI is not
// already present, preserving arrival order. Existing entries are never
// removed or reordered; URIs are compared by plain equality.
func MergeSources(existing []domain.GroundingSource, incoming []domain.GroundingSource) []domain.GroundingSource {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		seen[s.URI] = struct{}{}
	}
	merged := existing
	for _, s := range incoming {
		if _, ok := seen[s.URI]; ok {
			continue
		}
		seen[s.URI] = struct{}{}
		merged = append(merged, s)
	}
	return merged
}
