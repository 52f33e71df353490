package ncbi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

type elinkResponse struct {
	LinkSets []struct {
		IDs        []string `json:"ids"`
		LinkSetDBs []struct {
			LinkName string   `json:"linkname"`
			Links    []string `json:"links"`
		} `json:"linksetdbs"`
	} `json:"linksets"`
}

// LinkFullText maps PMIDs to PMC IDs. Articles without an open-access copy
// are absent from the result.
func (c *Client) LinkFullText(ctx context.Context, pmids []string) (map[string]string, error) {
	out := make(map[string]string, len(pmids))
	if len(pmids) == 0 {
		return out, nil
	}

	params := url.Values{}
	params.Set("dbfrom", "pubmed")
	params.Set("db", "pmc")
	params.Set("linkname", "pubmed_pmc")
	params.Set("retmode", "json")
	// Repeated id parameters keep one link set per PMID.
	for _, pmid := range pmids {
		params.Add("id", pmid)
	}

	body, err := c.get(ctx, "elink", "elink.fcgi", params)
	if err != nil {
		return nil, err
	}
	var resp elinkResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode elink response: %w", err)
	}

	for _, set := range resp.LinkSets {
		if len(set.IDs) == 0 {
			continue
		}
		for _, db := range set.LinkSetDBs {
			if db.LinkName != "pubmed_pmc" || len(db.Links) == 0 {
				continue
			}
			out[set.IDs[0]] = "PMC" + strings.TrimPrefix(db.Links[0], "PMC")
			break
		}
	}
	return out, nil
}

// FetchFullText downloads the JATS XML of one PMC article.
func (c *Client) FetchFullText(ctx context.Context, pmcid string) ([]byte, error) {
	id := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(pmcid)), "PMC")
	if id == "" {
		return nil, fmt.Errorf("empty pmcid")
	}
	params := url.Values{}
	params.Set("db", "pmc")
	params.Set("id", id)
	params.Set("retmode", "xml")
	return c.get(ctx, "efetch_pmc", "efetch.fcgi", params)
}
