package ncbi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// KeywordQuery ORs the keywords as text-word terms and restricts the hits
// to articles with free full text.
func KeywordQuery(keywords []string) string {
	terms := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(strings.ReplaceAll(k, `"`, ""))
		if k == "" {
			continue
		}
		terms = append(terms, fmt.Sprintf(`"%s"[tw]`, k))
	}
	if len(terms) == 0 {
		return ""
	}
	return "(" + strings.Join(terms, " OR ") + `) AND "free full text"[Filter]`
}

type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

func (c *Client) esearch(ctx context.Context, term string, retmax, retstart int) (esearchResponse, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("retmode", "json")
	params.Set("retmax", strconv.Itoa(retmax))
	if retstart > 0 {
		params.Set("retstart", strconv.Itoa(retstart))
	}

	body, err := c.get(ctx, "esearch", "esearch.fcgi", params)
	if err != nil {
		return esearchResponse{}, err
	}
	var out esearchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return esearchResponse{}, fmt.Errorf("decode esearch response: %w", err)
	}
	return out, nil
}

func (c *Client) SearchKeywords(ctx context.Context, keywords []string, limit int) ([]string, error) {
	term := KeywordQuery(keywords)
	if term == "" || limit <= 0 {
		return []string{}, nil
	}
	resp, err := c.esearch(ctx, term, limit, 0)
	if err != nil {
		return nil, err
	}
	if resp.Result.IDList == nil {
		return []string{}, nil
	}
	return resp.Result.IDList, nil
}

// TotalHits reports how many PubMed articles match the keyword query.
func (c *Client) TotalHits(ctx context.Context, keywords []string) (int, error) {
	term := KeywordQuery(keywords)
	if term == "" {
		return 0, nil
	}
	resp, err := c.esearch(ctx, term, 0, 0)
	if err != nil {
		return 0, err
	}
	if resp.Result.Count == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(resp.Result.Count)
	if err != nil {
		return 0, fmt.Errorf("parse esearch count %q: %w", resp.Result.Count, err)
	}
	return n, nil
}
