package usecase

import "regexp"

// pmidOverridePattern matches "PMID", an optional colon and whitespace,
// then a 7-8 digit identifier not followed by another digit.
var pmidOverridePattern = regexp.MustCompile(`(?i)PMID:?\s*(\d{7,8})\b`)

// extractPMIDOverrides returns explicit PMIDs in first-seen order.
func extractPMIDOverrides(rawQuery string) []string {
	matches := pmidOverridePattern.FindAllStringSubmatch(rawQuery, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}
