package ingest

import (
	"strings"
	"unicode/utf8"
)

// DefaultSeparators are tried in order, coarsest first.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Section is a run of markdown under the same h1/h2/h3 headers. Content
// keeps its header line.
type Section struct {
	Headers []string
	Content string
}

// Path renders the section's header trail as "h1 > h2 > h3".
func (s Section) Path() string {
	return strings.Join(s.Headers, " > ")
}

// SplitHeaders splits markdown on #, ## and ### headings. Headings inside
// fenced code blocks are ignored. Sections holding nothing but their heading
// are dropped.
func SplitHeaders(md string) []Section {
	var (
		out     []Section
		headers [3]string
		lines   []string
		inCode  bool
		marker  string
		body    bool
	)

	flush := func() {
		content := strings.TrimSpace(strings.Join(lines, "\n"))
		hasBody := body
		lines, body = nil, false
		if !hasBody {
			return
		}
		var hs []string
		for _, h := range headers {
			if h != "" {
				hs = append(hs, h)
			}
		}
		out = append(out, Section{Headers: hs, Content: content})
	}

	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			switch {
			case !inCode:
				inCode, marker = true, trimmed[:3]
			case strings.HasPrefix(trimmed, marker):
				inCode = false
			}
			lines = append(lines, line)
			body = true
			continue
		}

		if !inCode {
			if level, text := heading(trimmed); level > 0 {
				flush()
				headers[level-1] = text
				for i := level; i < len(headers); i++ {
					headers[i] = ""
				}
				lines = append(lines, line)
				continue
			}
		}
		lines = append(lines, line)
		if trimmed != "" {
			body = true
		}
	}
	flush()
	return out
}

// heading returns the level (1-3) and text of an ATX heading line.
func heading(line string) (int, string) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 3 || level >= len(line) || line[level] != ' ' {
		return 0, ""
	}
	text := strings.TrimSpace(line[level:])
	if text == "" {
		return 0, ""
	}
	return level, text
}

// Splitter breaks text into chunks of at most Size characters, carrying up
// to Overlap characters of the previous chunk into the next.
type Splitter struct {
	Size       int
	Overlap    int
	Separators []string
}

func NewSplitter(size, overlap int) *Splitter {
	if overlap >= size {
		overlap = size / 5
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Splitter{Size: size, Overlap: overlap, Separators: DefaultSeparators}
}

func (s *Splitter) Split(text string) []string {
	return s.split(text, s.Separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep, rest = candidate, separators[i+1:]
			break
		}
	}

	var (
		out  []string
		good []string
	)
	for _, piece := range splitKeep(text, sep) {
		if length(piece) < s.Size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, piece)
		} else {
			out = append(out, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		out = append(out, s.merge(good)...)
	}
	return out
}

// merge packs small pieces into chunks, keeping a tail of at most Overlap
// characters as the start of the next chunk.
func (s *Splitter) merge(pieces []string) []string {
	var (
		out     []string
		current []string
		total   int
	)
	for _, p := range pieces {
		n := length(p)
		if total+n > s.Size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				out = append(out, doc)
			}
			for total > s.Overlap || (total+n > s.Size && total > 0) {
				total -= length(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		out = append(out, doc)
	}
	return out
}

// splitKeep splits text on sep, attaching each separator to the piece that
// follows it. An empty sep splits into characters.
func splitKeep(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}
