package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
)

const maxHistoryChars = 6000

func answerSystemPrompt(context string) string {
	return `You are a biomedical research assistant. Answer the question using only the literature excerpts below.

Rules:
1. If the excerpts do not contain the answer, reply exactly: "` + domain.InsufficientEvidenceAnswer + `" Never guess and never use outside knowledge.
2. Cite every claim, statistic and finding inline with the header of the excerpt it came from. Every citation carries the PMID, for example (Smith, 2022) [PMID: 123456], or [PMID: 123456] alone when author and year are unknown.
3. Combine evidence from several articles when they are available instead of summarising only the first one.
4. Keep a clinical, objective tone without conversational filler.

Excerpts:
` + context
}

// citationHeader renders "[n] (Author, Year) [PMID: x]", dropping the
// parts that are unknown.
func citationHeader(n int, meta domain.ArticleMetadata, pmid string) string {
	author := strings.TrimSpace(meta.FirstAuthorLastName)
	switch {
	case author != "" && meta.PubYear > 0:
		return fmt.Sprintf("[%d] (%s, %d) [PMID: %s]", n, author, meta.PubYear, pmid)
	case author != "":
		return fmt.Sprintf("[%d] (%s) [PMID: %s]", n, author, pmid)
	case meta.PubYear > 0:
		return fmt.Sprintf("[%d] (%d) [PMID: %s]", n, meta.PubYear, pmid)
	default:
		return fmt.Sprintf("[%d] [PMID: %s]", n, pmid)
	}
}

func buildCitationContext(passages []domain.ScoredPassage) string {
	var b strings.Builder
	for i, p := range passages {
		pmid := p.Passage.PMID
		if pmid == "" {
			pmid = "unknown"
		}
		b.WriteString(citationHeader(i+1, p.Passage.Metadata, pmid))
		b.WriteString("\n")
		if p.Passage.HeaderPath != "" {
			b.WriteString("SECTION: ")
			b.WriteString(p.Passage.HeaderPath)
			b.WriteString("\n")
		}
		b.WriteString("CONTENT: ")
		b.WriteString(strings.TrimSpace(p.Passage.Text))
		b.WriteString("\n\n")
	}
	return b.String()
}

func queryParseSystemPrompt(subject string) string {
	return fmt.Sprintf(`You optimize questions for vector search over PubMed article passages about %s.
Return one JSON object and nothing else:
{"optimized_query": string, "clarification": string or null, "filter": {"publication_year": integer or null, "first_author_lastname": string or null, "is_human": boolean or null, "is_animal": boolean or null}}

Clarification:
Set "clarification" to a short question only when a biomedical term is hopelessly ambiguous, such as an acronym naming both a gene and a cell type. Words like "latest" or "recent", author names without first names and informal phrasing never need clarification. Otherwise leave it null.

Optimized query:
Use precise biomedical terminology, expand important acronyms once, use canonical gene symbols and add only high-value synonyms. Keep PICO elements, drop conversational filler and stay under 120 words. Do not widen or narrow the clinical scope. Keep any "PMID: number" references verbatim.

Filter:
Fill a field only when the question explicitly asks for it. Never invent metadata.`, subject)
}

const reformulateSystemPrompt = `You rewrite the latest message of a conversation into a standalone search query for a biomedical literature engine.

Rules:
1. Use the conversation to resolve pronouns and implicit references ("it", "they", "this treatment", "these papers").
2. Output only the rewritten query. Do not answer it.
3. If the message already stands on its own, output it unchanged.
4. When the message refers to papers, authors or findings from the previous assistant answer, copy every [PMID: number] from that answer into the query as "PMID: number".

Example:
Conversation: user asked whether bevacizumab helps; assistant said it reduces epistaxis.
Message: "What are its side effects?"
Query: What are the side effects of bevacizumab for epistaxis?`

func buildReformulatePrompt(history []domain.ConversationMessage, input string) string {
	var b strings.Builder
	b.WriteString("Conversation:\n")
	b.WriteString(renderHistory(history))
	b.WriteString("\nMessage: ")
	b.WriteString(input)
	b.WriteString("\nQuery:")
	return b.String()
}

// renderHistory keeps the newest turns when the transcript is too long.
func renderHistory(history []domain.ConversationMessage) string {
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		role := "User"
		if msg.Role == domain.RoleAssistant {
			role = "Assistant"
		}
		lines = append(lines, role+": "+strings.TrimSpace(msg.Content))
	}
	out := strings.Join(lines, "\n")
	for len(out) > maxHistoryChars && len(lines) > 1 {
		lines = lines[1:]
		out = strings.Join(lines, "\n")
	}
	return out
}
