package usecase

import (
	"math"
	"sort"
	"strings"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
)

type publicationTypeWeight struct {
	needles []string
	bonus   float64
}

// Checked in order; the first match wins.
var publicationTypeWeights = []publicationTypeWeight{
	{needles: []string{"meta-analysis"}, bonus: 1.00},
	{needles: []string{"systematic review"}, bonus: 0.95},
	{needles: []string{"guideline", "practice guideline"}, bonus: 0.90},
	{needles: []string{"randomized controlled trial"}, bonus: 0.85},
	{needles: []string{"clinical trial"}, bonus: 0.75},
	{needles: []string{"review"}, bonus: 0.55},
	{needles: []string{"case reports"}, bonus: 0.30},
}

const defaultPublicationTypeBonus = 0.60

type sectionWeight struct {
	needles []string
	bonus   float64
}

// Matches the separator the chunker joins header titles with.
const headerPathSeparator = " > "

var sectionWeights = []sectionWeight{
	{needles: []string{"result", "conclusion"}, bonus: 1.5},
	{needles: []string{"method"}, bonus: 1.0},
	{needles: []string{"discussion"}, bonus: 0.5},
	{needles: []string{"introduction", "background"}, bonus: -0.5},
}

// rerankPassages scores every passage and sorts descending. Ties keep the
// order the index returned.
func rerankPassages(passages []domain.ScoredPassage, currentYear int, recencyWeight, decayYears float64) []domain.ScoredPassage {
	out := make([]domain.ScoredPassage, len(passages))
	copy(out, passages)

	for i := range out {
		meta := out[i].Passage.Metadata
		out[i].RerankScore = out[i].BaseScore +
			publicationTypeBonus(meta.PublicationTypes) +
			sectionBonus(out[i].Passage.HeaderPath) +
			recencyBonus(meta.PubYear, currentYear, recencyWeight, decayYears)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RerankScore > out[j].RerankScore
	})
	return out
}

func publicationTypeBonus(types []string) float64 {
	joined := strings.ToLower(strings.Join(types, "|"))
	for _, w := range publicationTypeWeights {
		if containsAny(joined, w.needles) {
			return w.bonus
		}
	}
	return defaultPublicationTypeBonus
}

// sectionBonus matches the top-level section only; subsection titles never
// override their parent.
func sectionBonus(headerPath string) float64 {
	top, _, _ := strings.Cut(headerPath, headerPathSeparator)
	header := strings.ToLower(strings.TrimSpace(top))
	if header == "" {
		return 0
	}
	for _, w := range sectionWeights {
		if containsAny(header, w.needles) {
			return w.bonus
		}
	}
	return 0
}

// recencyBonus is zero for unknown or future years.
func recencyBonus(pubYear, currentYear int, weight, decayYears float64) float64 {
	if pubYear <= 0 || weight == 0 {
		return 0
	}
	delta := currentYear - pubYear
	if delta < 0 {
		return 0
	}
	return weight * math.Exp(-float64(delta)/decayYears)
}

func containsAny(s string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
