package domain

import "time"

type ArticleStatus string

const (
	StatusQueued     ArticleStatus = "queued"
	StatusProcessing ArticleStatus = "processing"
	StatusReady      ArticleStatus = "ready"
	StatusSkipped    ArticleStatus = "skipped"
	StatusFailed     ArticleStatus = "failed"
)

// Article tracks the ingestion state of one PubMed record.
type Article struct {
	PMID        string        `json:"pmid"`
	PMCID       string        `json:"pmcid,omitempty"`
	Title       string        `json:"title,omitempty"`
	Journal     string        `json:"journal,omitempty"`
	PubYear     int           `json:"pub_year,omitempty"`
	StoragePath string        `json:"storage_path,omitempty"`
	Chunks      int           `json:"chunks"`
	Status      ArticleStatus `json:"status"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// ArticleMetadata is the snapshot copied onto every indexed passage.
type ArticleMetadata struct {
	PMID                string   `json:"pmid"`
	DOI                 string   `json:"doi,omitempty"`
	Title               string   `json:"article_title"`
	Journal             string   `json:"journal"`
	PubYear             int      `json:"pub_year"`
	FirstAuthorLastName string   `json:"first_author_lastname"`
	FirstAuthorInitials string   `json:"first_author_initials,omitempty"`
	MeshMajorTerms      []string `json:"mesh_major_terms"`
	MeshMinorTerms      []string `json:"mesh_minor_terms"`
	PublicationTypes    []string `json:"publication_types"`
	IsHuman             bool     `json:"is_human"`
	IsAnimal            bool     `json:"is_animal"`
}

// ArticleRecord is a fetched article before chunking.
type ArticleRecord struct {
	Metadata ArticleMetadata `json:"metadata"`
	PMCID    string          `json:"pmcid,omitempty"`
	Abstract string          `json:"abstract"`
	Body     string          `json:"body,omitempty"`
}

// IngestRequest selects the articles to pull from NCBI.
type IngestRequest struct {
	PMIDs    []string `json:"pmids,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

// IngestReceipt reports what was accepted for asynchronous processing.
type IngestReceipt struct {
	Queued  []string `json:"queued"`
	Skipped []string `json:"skipped"`
}

// TextSection is a span of body text under one markdown header path.
type TextSection struct {
	HeaderPath string
	Text       string
}
