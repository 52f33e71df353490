package domain

type SectionKind string

const (
	SectionAbstract SectionKind = "abstract"
	SectionBody     SectionKind = "body"
)

// Passage is one indexed unit of text from either collection.
type Passage struct {
	ID         string          `json:"id,omitempty"`
	PMID       string          `json:"pmid"`
	Section    SectionKind     `json:"section"`
	HeaderPath string          `json:"header_path,omitempty"`
	Text       string          `json:"text"`
	Metadata   ArticleMetadata `json:"metadata"`
}

type ScoredPassage struct {
	Passage     Passage `json:"passage"`
	BaseScore   float64 `json:"base_score"`
	RerankScore float64 `json:"rerank_score"`
}

// MetadataFilter fields combine with AND; nil/empty fields are ignored.
type MetadataFilter struct {
	PublicationYear     *int   `json:"publication_year,omitempty"`
	FirstAuthorLastName string `json:"first_author_lastname,omitempty"`
	IsHuman             *bool  `json:"is_human,omitempty"`
	IsAnimal            *bool  `json:"is_animal,omitempty"`
}

func (f *MetadataFilter) IsEmpty() bool {
	return f == nil ||
		(f.PublicationYear == nil && f.FirstAuthorLastName == "" && f.IsHuman == nil && f.IsAnimal == nil)
}

// SearchFilter is the predicate handed to a collection search.
type SearchFilter struct {
	Metadata *MetadataFilter
	PMIDs    []string
}

// SearchDirective is produced once per turn by query understanding.
type SearchDirective struct {
	OptimizedQuery string          `json:"optimized_query,omitempty"`
	Filter         *MetadataFilter `json:"metadata_filters,omitempty"`
	Clarification  string          `json:"clarification_required,omitempty"`
}

type ResultKind string

const (
	ResultPassages      ResultKind = "passages"
	ResultClarification ResultKind = "clarification"
)

type RetrievalMode string

const (
	ModeStandard RetrievalMode = "standard"
	ModeOverride RetrievalMode = "pmid_override"
	ModeGlobal   RetrievalMode = "global"
)

// RetrievalResult is either a ranked passage list or a clarification request.
type RetrievalResult struct {
	Kind          ResultKind      `json:"kind"`
	Mode          RetrievalMode   `json:"mode,omitempty"`
	Clarification string          `json:"clarification,omitempty"`
	Passages      []ScoredPassage `json:"passages"`
}

func (r RetrievalResult) IsClarification() bool {
	return r.Kind == ResultClarification
}

func (r RetrievalResult) IsEmpty() bool {
	return r.Kind == ResultPassages && len(r.Passages) == 0
}

// InsufficientEvidenceAnswer is the sentence the generator is instructed to
// emit when the supplied passages do not support an answer.
const InsufficientEvidenceAnswer = "I cannot find sufficient evidence in the parsed literature to answer this question."

const NoLiteratureAnswer = "No relevant literature could be found to answer this query."

type Answer struct {
	Text          string          `json:"text"`
	Clarification bool            `json:"clarification,omitempty"`
	UsedGlobal    bool            `json:"used_global,omitempty"`
	Sources       []ScoredPassage `json:"sources"`
}
