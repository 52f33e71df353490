package main

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
)

// topicFile is the bulk ingestion format:
//
//	topics:
//	  - name: hht-epistaxis
//	    keywords: ["hereditary hemorrhagic telangiectasia", "epistaxis"]
//	    limit: 25
//	pmids: ["31000001"]
type topicFile struct {
	Topics []topic  `yaml:"topics"`
	PMIDs  []string `yaml:"pmids"`
}

type topic struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	PMIDs    []string `yaml:"pmids"`
	Limit    int      `yaml:"limit"`
}

func parseTopics(r io.Reader) (*topicFile, error) {
	var tf topicFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&tf); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("topics file is empty")
		}
		return nil, fmt.Errorf("decode topics file: %w", err)
	}
	for i, t := range tf.Topics {
		if len(t.Keywords) == 0 && len(t.PMIDs) == 0 {
			name := strings.TrimSpace(t.Name)
			if name == "" {
				name = fmt.Sprintf("#%d", i+1)
			}
			return nil, fmt.Errorf("topic %s has neither keywords nor pmids", name)
		}
	}
	return &tf, nil
}

func (tf *topicFile) requests(defaultLimit int) []domain.IngestRequest {
	out := make([]domain.IngestRequest, 0, len(tf.Topics)+1)
	for _, t := range tf.Topics {
		limit := t.Limit
		if limit <= 0 {
			limit = defaultLimit
		}
		out = append(out, domain.IngestRequest{PMIDs: t.PMIDs, Keywords: t.Keywords, Limit: limit})
	}
	if len(tf.PMIDs) > 0 {
		out = append(out, domain.IngestRequest{PMIDs: tf.PMIDs})
	}
	return out
}
