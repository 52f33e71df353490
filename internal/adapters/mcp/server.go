package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
	"github.com/kirillkom/biomed-literature-assistant/internal/core/ports"
)

const (
	serverName        = "biomed-literature"
	toolSearch        = "search_literature"
	toolAsk           = "ask_literature"
	maxPassageSnippet = 600
)

type tools struct {
	searcher ports.LiteratureSearcher
	answerer ports.LiteratureAnswerer
	logger   *slog.Logger
}

// NewServer exposes retrieval and answer synthesis as MCP tools.
func NewServer(searcher ports.LiteratureSearcher, answerer ports.LiteratureAnswerer, version string, logger *slog.Logger) *server.MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	t := &tools{searcher: searcher, answerer: answerer, logger: logger}

	s := server.NewMCPServer(serverName, version, server.WithToolCapabilities(false))
	s.AddTool(mcp.NewTool(toolSearch,
		mcp.WithDescription("Search the indexed PubMed literature and return ranked passages with PMIDs and scores."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language question; may name PMIDs such as PMID: 1234567.")),
		mcp.WithBoolean("global", mcp.Description("Search all body passages instead of narrowing by abstracts first.")),
	), t.search)
	s.AddTool(mcp.NewTool(toolAsk,
		mcp.WithDescription("Answer a biomedical question from the indexed literature with numbered PMID citations."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question to answer.")),
	), t.ask)
	return s
}

type passageView struct {
	Rank        int     `json:"rank"`
	PMID        string  `json:"pmid"`
	Title       string  `json:"title,omitempty"`
	Year        int     `json:"year,omitempty"`
	Section     string  `json:"section"`
	HeaderPath  string  `json:"header_path,omitempty"`
	RerankScore float64 `json:"rerank_score"`
	Text        string  `json:"text"`
}

type searchView struct {
	Mode          string        `json:"mode,omitempty"`
	Clarification string        `json:"clarification,omitempty"`
	Passages      []passageView `json:"passages"`
}

func (t *tools) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	result, err := t.searcher.Search(ctx, query, req.GetBool("global", false))
	if err != nil {
		t.logger.Warn("mcp_tool_failed", "tool", toolSearch, "error", err)
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}

	view := searchView{Mode: string(result.Mode), Clarification: result.Clarification, Passages: make([]passageView, 0, len(result.Passages))}
	for i, sp := range result.Passages {
		view.Passages = append(view.Passages, passageView{
			Rank:        i + 1,
			PMID:        sp.Passage.PMID,
			Title:       sp.Passage.Metadata.Title,
			Year:        sp.Passage.Metadata.PubYear,
			Section:     string(sp.Passage.Section),
			HeaderPath:  sp.Passage.HeaderPath,
			RerankScore: sp.RerankScore,
			Text:        truncateRunes(sp.Passage.Text, maxPassageSnippet),
		})
	}
	raw, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode search result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func (t *tools) ask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil || strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question is required"), nil
	}
	answer, err := t.answerer.Answer(ctx, question)
	if err != nil {
		t.logger.Warn("mcp_tool_failed", "tool", toolAsk, "error", err)
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}
	return mcp.NewToolResultText(renderAnswer(answer)), nil
}

func renderAnswer(answer *domain.Answer) string {
	var b strings.Builder
	b.WriteString(answer.Text)
	if len(answer.Sources) == 0 {
		return b.String()
	}
	b.WriteString("\n\nSources:")
	for i, sp := range answer.Sources {
		meta := sp.Passage.Metadata
		fmt.Fprintf(&b, "\n[%d] PMID: %s", i+1, sp.Passage.PMID)
		if meta.Title != "" {
			fmt.Fprintf(&b, " %s", meta.Title)
		}
		if meta.PubYear > 0 {
			fmt.Fprintf(&b, " (%d)", meta.PubYear)
		}
	}
	if answer.UsedGlobal {
		b.WriteString("\n\n(global search)")
	}
	return b.String()
}

func toolErrorMessage(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return err.Error()
	case domain.IsKind(err, domain.ErrIndexUnavailable), domain.IsKind(err, domain.ErrTemporary):
		return "literature index is temporarily unavailable"
	default:
		return "tool failed"
	}
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
