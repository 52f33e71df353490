// Package jats converts PMC JATS full-text XML into markdown text whose
// headers mirror the article's section hierarchy.
package jats

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"
)

// droppedElements never contribute text to the body.
var droppedElements = map[string]struct{}{
	"fig":                    {},
	"table-wrap":             {},
	"table":                  {},
	"ref-list":               {},
	"xref":                   {},
	"sup":                    {},
	"sub":                    {},
	"disp-formula":           {},
	"inline-formula":         {},
	"media":                  {},
	"supplementary-material": {},
}

var excessBlankLines = regexp.MustCompile(`\n{3,}`)

const topSectionLevel = 2

type node struct {
	name     string
	text     string
	children []*node
}

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract returns the cleaned body, or "" when the document has none.
func (e *Extractor) Extract(raw []byte) (string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", nil
	}
	root, err := parse(raw)
	if err != nil {
		return "", err
	}
	body := find(root, "body")
	if body == nil {
		return "", nil
	}

	parts := make([]string, 0, len(body.children))
	for _, child := range body.children {
		switch child.name {
		case "p":
			if p := paragraph(child); p != "" {
				parts = append(parts, p)
			}
		case "sec":
			if s := section(child, topSectionLevel); s != "" {
				parts = append(parts, s)
			}
		}
	}
	out := excessBlankLines.ReplaceAllString(strings.Join(parts, "\n\n"), "\n\n")
	return strings.TrimSpace(out), nil
}

func parse(raw []byte) (*node, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charset.NewReaderLabel

	root := &node{}
	stack := []*node{root}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode jats xml: %w", err)
		}
		top := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			if _, drop := droppedElements[t.Name.Local]; drop {
				if err := dec.Skip(); err != nil {
					return nil, fmt.Errorf("skip %s: %w", t.Name.Local, err)
				}
				continue
			}
			child := &node{name: t.Name.Local}
			top.children = append(top.children, child)
			stack = append(stack, child)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			top.children = append(top.children, &node{text: string(t)})
		}
	}
	return root, nil
}

func find(n *node, name string) *node {
	if n.name == name {
		return n
	}
	for _, child := range n.children {
		if found := find(child, name); found != nil {
			return found
		}
	}
	return nil
}

func section(sec *node, level int) string {
	parts := make([]string, 0, len(sec.children))
	for _, child := range sec.children {
		switch child.name {
		case "title":
			if title := normalize(textOf(child)); title != "" {
				parts = append(parts, strings.Repeat("#", min(level, 6))+" "+title)
			}
		case "p":
			if p := paragraph(child); p != "" {
				parts = append(parts, p)
			}
		case "sec":
			if s := section(child, level+1); s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

func paragraph(p *node) string {
	return normalize(textOf(p))
}

func textOf(n *node) string {
	if n.name == "" {
		return n.text
	}
	var b strings.Builder
	for _, child := range n.children {
		b.WriteString(textOf(child))
	}
	return b.String()
}

func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
