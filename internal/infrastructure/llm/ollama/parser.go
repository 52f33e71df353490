package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
)

const defaultSubject = "biomedical research"

// QueryParser turns a raw question into a search directive using a
// JSON-constrained generation.
type QueryParser struct {
	client  *Client
	subject string
}

func NewQueryParser(client *Client, subject string) *QueryParser {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = defaultSubject
	}
	return &QueryParser{client: client, subject: subject}
}

type parsedQuery struct {
	OptimizedQuery string  `json:"optimized_query"`
	Clarification  *string `json:"clarification"`
	Filter         *struct {
		PublicationYear     *int    `json:"publication_year"`
		FirstAuthorLastName *string `json:"first_author_lastname"`
		IsHuman             *bool   `json:"is_human"`
		IsAnimal            *bool   `json:"is_animal"`
	} `json:"filter"`
}

func (p *QueryParser) ParseQuery(ctx context.Context, query string) (domain.SearchDirective, error) {
	raw, err := p.client.generateJSON(ctx, queryParseSystemPrompt(p.subject), "Question: "+query)
	if err != nil {
		return domain.SearchDirective{}, err
	}

	var parsed parsedQuery
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return domain.SearchDirective{}, fmt.Errorf("parse query directive json: %w", err)
	}

	directive := domain.SearchDirective{OptimizedQuery: strings.TrimSpace(parsed.OptimizedQuery)}
	if parsed.Clarification != nil {
		directive.Clarification = strings.TrimSpace(*parsed.Clarification)
	}
	if f := parsed.Filter; f != nil {
		filter := &domain.MetadataFilter{
			PublicationYear: f.PublicationYear,
			IsHuman:         f.IsHuman,
			IsAnimal:        f.IsAnimal,
		}
		if f.FirstAuthorLastName != nil {
			filter.FirstAuthorLastName = strings.TrimSpace(*f.FirstAuthorLastName)
		}
		if !filter.IsEmpty() {
			directive.Filter = filter
		}
	}
	return directive, nil
}

// Reformulator rewrites follow-up messages into standalone queries.
type Reformulator struct {
	client *Client
}

func NewReformulator(client *Client) *Reformulator {
	return &Reformulator{client: client}
}

func (r *Reformulator) Reformulate(ctx context.Context, history []domain.ConversationMessage, input string) (string, error) {
	out, err := r.client.generateText(ctx, reformulateSystemPrompt, buildReformulatePrompt(history, input), 0)
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(out), `"`), nil
}
