package qdrant

import (
	"fmt"
	"math"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
)

// encodePayload stores passage text under page_content and the article
// snapshot under metadata, the layout the filters address.
func encodePayload(p domain.Passage) map[string]any {
	meta := p.Metadata
	return map[string]any{
		"page_content": p.Text,
		"metadata": map[string]any{
			"pmid":                  p.PMID,
			"section":               string(p.Section),
			"header_path":           p.HeaderPath,
			"doi":                   meta.DOI,
			"article_title":         meta.Title,
			"journal":               meta.Journal,
			"pub_year":              meta.PubYear,
			"first_author_lastname": meta.FirstAuthorLastName,
			"first_author_initials": meta.FirstAuthorInitials,
			"mesh_major_terms":      nonNil(meta.MeshMajorTerms),
			"mesh_minor_terms":      nonNil(meta.MeshMinorTerms),
			"publication_types":     nonNil(meta.PublicationTypes),
			"is_human":              meta.IsHuman,
			"is_animal":             meta.IsAnimal,
		},
	}
}

func decodePayload(payload map[string]any) domain.Passage {
	meta, _ := payload["metadata"].(map[string]any)
	pmid := getStringPayload(meta, "pmid")
	return domain.Passage{
		PMID:       pmid,
		Section:    domain.SectionKind(getStringPayload(meta, "section")),
		HeaderPath: getStringPayload(meta, "header_path"),
		Text:       getStringPayload(payload, "page_content"),
		Metadata: domain.ArticleMetadata{
			PMID:                pmid,
			DOI:                 getStringPayload(meta, "doi"),
			Title:               getStringPayload(meta, "article_title"),
			Journal:             getStringPayload(meta, "journal"),
			PubYear:             getIntPayload(meta, "pub_year"),
			FirstAuthorLastName: getStringPayload(meta, "first_author_lastname"),
			FirstAuthorInitials: getStringPayload(meta, "first_author_initials"),
			MeshMajorTerms:      getStringsPayload(meta, "mesh_major_terms"),
			MeshMinorTerms:      getStringsPayload(meta, "mesh_minor_terms"),
			PublicationTypes:    getStringsPayload(meta, "publication_types"),
			IsHuman:             getBoolPayload(meta, "is_human"),
			IsAnimal:            getBoolPayload(meta, "is_animal"),
		},
	}
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// getIntPayload accepts JSON numbers and numeric strings such as "2021".
func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(math.Round(v))
	case int:
		return v
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return 0
}

func getBoolPayload(payload map[string]any, key string) bool {
	b, _ := payload[key].(bool)
	return b
}

func getStringsPayload(payload map[string]any, key string) []string {
	raw, ok := payload[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
