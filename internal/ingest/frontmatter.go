// Package ingest loads markdown policy documents, splits them into
// overlapping chunks and writes them to the policy index.
package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// FrontMatter is the optional YAML header of a policy document.
type FrontMatter struct {
	Title string   `yaml:"title"`
	Tags  []string `yaml:"tags"`
	Owner string   `yaml:"owner"`
}

const fence = "---"

// ParseFrontMatter splits a leading "---" delimited YAML block from the
// document body. Documents without one are returned unchanged.
func ParseFrontMatter(content string) (FrontMatter, string, error) {
	var fm FrontMatter
	content = strings.TrimPrefix(content, "\ufeff")
	if !strings.HasPrefix(content, fence+"\n") && !strings.HasPrefix(content, fence+"\r\n") {
		return fm, content, nil
	}

	rest := content[strings.Index(content, "\n")+1:]
	var header []byte
	body := ""
	found := false
	for offset := 0; offset < len(rest); {
		end := strings.IndexByte(rest[offset:], '\n')
		line := rest[offset:]
		next := len(rest)
		if end >= 0 {
			line = rest[offset : offset+end]
			next = offset + end + 1
		}
		if strings.TrimRight(line, "\r ") == fence {
			header = []byte(rest[:offset])
			body = rest[next:]
			found = true
			break
		}
		offset = next
	}
	if !found {
		return fm, content, nil
	}

	if len(bytes.TrimSpace(header)) > 0 {
		if err := yaml.Unmarshal(header, &fm); err != nil {
			return fm, content, fmt.Errorf("parse front matter: %w", err)
		}
	}
	return fm, body, nil
}
