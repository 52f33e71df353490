package qdrant

import (
	"strings"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
)

// buildFilter translates a search filter into a Qdrant "must" clause.
// It returns nil when nothing constrains the search.
func buildFilter(filter domain.SearchFilter) map[string]any {
	must := make([]map[string]any, 0, 5)

	if len(filter.PMIDs) > 0 {
		must = append(must, map[string]any{
			"key":   pmidPayloadKey,
			"match": map[string]any{"any": filter.PMIDs},
		})
	}

	if m := filter.Metadata; !m.IsEmpty() {
		if m.PublicationYear != nil {
			must = append(must, matchValue("metadata.pub_year", *m.PublicationYear))
		}
		if name := strings.TrimSpace(m.FirstAuthorLastName); name != "" {
			must = append(must, matchValue("metadata.first_author_lastname", name))
		}
		if m.IsHuman != nil {
			must = append(must, matchValue("metadata.is_human", *m.IsHuman))
		}
		if m.IsAnimal != nil {
			must = append(must, matchValue("metadata.is_animal", *m.IsAnimal))
		}
	}

	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func matchValue(key string, value any) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}
