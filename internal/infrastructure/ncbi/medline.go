package ncbi

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
)

type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Citation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Journal struct {
				Title   string `xml:"Title"`
				PubDate struct {
					Year        string `xml:"Year"`
					MedlineDate string `xml:"MedlineDate"`
				} `xml:"JournalIssue>PubDate"`
			} `xml:"Journal"`
			Title    mixedText `xml:"ArticleTitle"`
			Abstract []abstractText `xml:"Abstract>AbstractText"`
			Authors []struct {
				LastName string `xml:"LastName"`
				Initials string `xml:"Initials"`
				Group    string `xml:"CollectiveName"`
			} `xml:"AuthorList>Author"`
			PublicationTypes []string `xml:"PublicationTypeList>PublicationType"`
			ELocationIDs     []struct {
				Type  string `xml:"EIdType,attr"`
				Value string `xml:",chardata"`
			} `xml:"ELocationID"`
		} `xml:"Article"`
		MeshHeadings []struct {
			Descriptor struct {
				Major string `xml:"MajorTopicYN,attr"`
				Name  string `xml:",chardata"`
			} `xml:"DescriptorName"`
			Qualifiers []meshQualifier `xml:"QualifierName"`
		} `xml:"MeshHeadingList>MeshHeading"`
	} `xml:"MedlineCitation"`
	ArticleIDs []struct {
		Type  string `xml:"IdType,attr"`
		Value string `xml:",chardata"`
	} `xml:"PubmedData>ArticleIdList>ArticleId"`
}

type meshQualifier struct {
	Major string `xml:"MajorTopicYN,attr"`
}

// mixedText collects the character data of an element and its inline
// children such as <i> or <sup>.
type mixedText string

func (m *mixedText) UnmarshalXML(d *xml.Decoder, _ xml.StartElement) error {
	text, err := collectText(d)
	if err != nil {
		return err
	}
	*m = mixedText(text)
	return nil
}

type abstractText struct {
	Label string
	Text  string
}

func (a *abstractText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "Label" {
			a.Label = attr.Value
		}
	}
	text, err := collectText(d)
	if err != nil {
		return err
	}
	a.Text = text
	return nil
}

// collectText consumes tokens up to the end of the current element.
func collectText(d *xml.Decoder) (string, error) {
	var b strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			b.Write(t)
		}
	}
	return strings.Join(strings.Fields(b.String()), " "), nil
}

// FetchRecords downloads Medline XML for the PMIDs and returns one record
// per article found. Unknown PMIDs are silently absent.
func (c *Client) FetchRecords(ctx context.Context, pmids []string) ([]domain.ArticleRecord, error) {
	if len(pmids) == 0 {
		return []domain.ArticleRecord{}, nil
	}
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(pmids, ","))
	params.Set("retmode", "xml")
	params.Set("rettype", "abstract")

	body, err := c.get(ctx, "efetch_pubmed", "efetch.fcgi", params)
	if err != nil {
		return nil, err
	}
	return ParseMedline(body)
}

// ParseMedline decodes a PubmedArticleSet document.
func ParseMedline(raw []byte) ([]domain.ArticleRecord, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false

	var set pubmedArticleSet
	if err := dec.Decode(&set); err != nil {
		return nil, fmt.Errorf("decode medline xml: %w", err)
	}

	out := make([]domain.ArticleRecord, 0, len(set.Articles))
	for _, a := range set.Articles {
		record, ok := toRecord(a)
		if ok {
			out = append(out, record)
		}
	}
	return out, nil
}

func toRecord(a pubmedArticle) (domain.ArticleRecord, bool) {
	cit := a.Citation
	art := cit.Article
	pmid := strings.TrimSpace(cit.PMID)
	if pmid == "" {
		return domain.ArticleRecord{}, false
	}

	meta := domain.ArticleMetadata{
		PMID:             pmid,
		Title:            string(art.Title),
		Journal:          strings.TrimSpace(art.Journal.Title),
		PubYear:          pubYear(art.Journal.PubDate.Year, art.Journal.PubDate.MedlineDate),
		PublicationTypes: trimAll(art.PublicationTypes),
		MeshMajorTerms:   []string{},
		MeshMinorTerms:   []string{},
	}

	for _, author := range art.Authors {
		last := strings.TrimSpace(author.LastName)
		if last == "" {
			last = strings.TrimSpace(author.Group)
		}
		if last != "" {
			meta.FirstAuthorLastName = last
			meta.FirstAuthorInitials = strings.TrimSpace(author.Initials)
			break
		}
	}

	for _, loc := range art.ELocationIDs {
		if strings.EqualFold(loc.Type, "doi") {
			meta.DOI = strings.TrimSpace(loc.Value)
			break
		}
	}

	var pmcid string
	for _, id := range a.ArticleIDs {
		switch strings.ToLower(id.Type) {
		case "doi":
			if meta.DOI == "" {
				meta.DOI = strings.TrimSpace(id.Value)
			}
		case "pmc":
			pmcid = strings.TrimSpace(id.Value)
		}
	}

	for _, heading := range cit.MeshHeadings {
		name := strings.TrimSpace(heading.Descriptor.Name)
		if name == "" {
			continue
		}
		switch {
		case strings.EqualFold(name, "Humans"):
			meta.IsHuman = true
		case strings.EqualFold(name, "Animals"):
			meta.IsAnimal = true
		}
		if isMajorHeading(heading.Descriptor.Major, heading.Qualifiers) {
			meta.MeshMajorTerms = append(meta.MeshMajorTerms, name)
		} else {
			meta.MeshMinorTerms = append(meta.MeshMinorTerms, name)
		}
	}

	paragraphs := make([]string, 0, len(art.Abstract))
	for _, p := range art.Abstract {
		text := p.Text
		if text == "" {
			continue
		}
		if label := strings.TrimSpace(p.Label); label != "" {
			text = label + ": " + text
		}
		paragraphs = append(paragraphs, text)
	}

	return domain.ArticleRecord{
		Metadata: meta,
		PMCID:    pmcid,
		Abstract: strings.Join(paragraphs, "\n\n"),
	}, true
}

// isMajorHeading treats a heading as major when the descriptor or any of
// its qualifiers is starred.
func isMajorHeading(descriptor string, qualifiers []meshQualifier) bool {
	if descriptor == "Y" {
		return true
	}
	for _, q := range qualifiers {
		if q.Major == "Y" {
			return true
		}
	}
	return false
}

// pubYear prefers <Year> and falls back to the leading year of a
// free-form MedlineDate such as "2019 Dec-2020 Jan".
func pubYear(year, medlineDate string) int {
	if n, err := strconv.Atoi(strings.TrimSpace(year)); err == nil {
		return n
	}
	md := strings.TrimSpace(medlineDate)
	if len(md) >= 4 {
		if n, err := strconv.Atoi(md[:4]); err == nil {
			return n
		}
	}
	return 0
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
