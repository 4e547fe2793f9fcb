package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseFrontMatter(t *testing.T) {
	doc := "---\ntitle: Leave Policy\ntags: [hr, leave]\n---\n# Leave\nTake it.\n"
	fm, body, err := ParseFrontMatter(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if fm.Title != "Leave Policy" || len(fm.Tags) != 2 || fm.Tags[1] != "leave" {
		t.Errorf("unexpected front matter: %+v", fm)
	}
	if body != "# Leave\nTake it.\n" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestParseFrontMatter_Absent(t *testing.T) {
	doc := "# Title\n---\nnot front matter\n"
	fm, body, err := ParseFrontMatter(doc)
	if err != nil || fm.Title != "" || body != doc {
		t.Errorf("expected passthrough, got %+v %q %v", fm, body, err)
	}
}

func TestParseFrontMatter_Unterminated(t *testing.T) {
	doc := "---\ntitle: x\n# body"
	_, body, err := ParseFrontMatter(doc)
	if err != nil || body != doc {
		t.Errorf("expected passthrough for unterminated block, got %q %v", body, err)
	}
}

func TestParseFrontMatter_BadYAML(t *testing.T) {
	if _, _, err := ParseFrontMatter("---\ntitle: [unclosed\n---\nbody"); err == nil {
		t.Error("expected yaml error")
	}
}

func TestSplitHeaders(t *testing.T) {
	md := strings.Join([]string{
		"Intro text.",
		"# Handbook",
		"Welcome.",
		"## Security",
		"Use MFA.",
		"```sh",
		"# not a heading",
		"```",
		"### Passwords",
		"Rotate yearly.",
		"## Leave",
		"Ask your manager.",
		"#### Deep",
		"Still leave.",
	}, "\n")

	sections := SplitHeaders(md)
	want := []string{
		"",
		"Handbook",
		"Handbook > Security",
		"Handbook > Security > Passwords",
		"Handbook > Leave",
	}
	if len(sections) != len(want) {
		t.Fatalf("expected %d sections, got %d: %+v", len(want), len(sections), sections)
	}
	for i, w := range want {
		if got := sections[i].Path(); got != w {
			t.Errorf("section %d: expected path %q, got %q", i, w, got)
		}
	}
	if !strings.Contains(sections[2].Content, "# not a heading") {
		t.Error("fenced code must stay in its section")
	}
	if !strings.HasPrefix(sections[3].Content, "### Passwords") {
		t.Error("section content must keep its header line")
	}
	if !strings.Contains(sections[4].Content, "#### Deep") {
		t.Error("h4 must not start a new section")
	}
}

func TestSplitter_SmallTextIsOneChunk(t *testing.T) {
	s := NewSplitter(100, 20)
	got := s.Split("  short text  ")
	if len(got) != 1 || got[0] != "short text" {
		t.Errorf("unexpected chunks %q", got)
	}
}

func TestSplitter_RespectsSizeAndOverlap(t *testing.T) {
	words := make([]string, 200)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ")

	s := NewSplitter(50, 10)
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if length(c) > 50 {
			t.Errorf("chunk %d too long: %d", i, length(c))
		}
	}
	// Consecutive chunks share a tail of at most the overlap.
	if !strings.HasSuffix(chunks[0], "word") || !strings.HasPrefix(chunks[1], "word") {
		t.Errorf("unexpected chunk boundaries %q | %q", chunks[0], chunks[1])
	}
	total := 0
	for _, c := range chunks {
		total += strings.Count(c, "word")
	}
	if total <= 200 {
		t.Errorf("expected overlap to repeat some words, counted %d", total)
	}
}

func TestSplitter_PrefersParagraphs(t *testing.T) {
	p1 := strings.Repeat("a", 30)
	p2 := strings.Repeat("b", 30)
	chunks := NewSplitter(40, 0).Split(p1 + "\n\n" + p2)
	if len(chunks) != 2 || chunks[0] != p1 || chunks[1] != p2 {
		t.Errorf("expected paragraph split, got %q", chunks)
	}
}

func TestSplitter_FallsBackToCharacters(t *testing.T) {
	chunks := NewSplitter(10, 0).Split(strings.Repeat("x", 25))
	if len(chunks) != 3 || chunks[0] != strings.Repeat("x", 10) || chunks[2] != "xxxxx" {
		t.Errorf("unexpected chunks %q", chunks)
	}
}

func TestNewSplitter_ClampsOverlap(t *testing.T) {
	s := NewSplitter(100, 150)
	if s.Overlap >= s.Size {
		t.Errorf("overlap %d must be below size %d", s.Overlap, s.Size)
	}
}

func TestChunk_Metadata(t *testing.T) {
	fm := FrontMatter{Title: "Security", Tags: []string{"it", "mfa"}}
	chunks := Chunk("security.md", fm, "Preamble.\n# Access\nUse MFA.", NewSplitter(1000, 200))
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Section != "security.md" {
		t.Errorf("headerless section should fall back to filename, got %q", chunks[0].Section)
	}
	if chunks[1].Section != "Access" || chunks[1].ChunkIndex != 1 {
		t.Errorf("unexpected chunk %+v", chunks[1])
	}
	if chunks[1].Metadata["tags"] != "it,mfa" || chunks[1].Metadata["title"] != "Security" {
		t.Errorf("unexpected metadata %v", chunks[1].Metadata)
	}
}

type fakeIndex struct {
	deleted  []string
	replaced []string
	upserted []store.PolicyChunk
	err      error
}

func (f *fakeIndex) ReplacePolicyDocument(_ context.Context, doc string, chunks []store.PolicyChunk) (int64, int, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	f.replaced = append(f.replaced, doc)
	f.upserted = append(f.upserted, chunks...)
	return 1, len(chunks), nil
}

func (f *fakeIndex) DeletePolicyChunks(_ context.Context, doc string) (int64, error) {
	f.deleted = append(f.deleted, doc)
	return 1, nil
}

func writeDocs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"leave.md":    "---\ntitle: Leave\n---\n# Leave\nTwenty days.\n",
		"security.md": "# Security\n## MFA\nAlways on.\n",
		"notes.txt":   "ignored",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestRunner_Run(t *testing.T) {
	idx := &fakeIndex{}
	r := NewRunner(Config{DataDir: writeDocs(t), ChunkSize: 1000, ChunkOverlap: 200}, idx, discardLogger())

	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Files != 2 || sum.Chunks != 2 || sum.Written != 2 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if len(idx.replaced) != 2 || idx.replaced[0] != "leave.md" || idx.replaced[1] != "security.md" {
		t.Errorf("expected per-document replace, got %v", idx.replaced)
	}
	if len(idx.deleted) != 0 || sum.Deleted != 2 {
		t.Errorf("unexpected deletes %v (%d)", idx.deleted, sum.Deleted)
	}
	if idx.upserted[1].Section != "Security > MFA" {
		t.Errorf("unexpected section %q", idx.upserted[1].Section)
	}
}

func TestRunner_ResetAndDryRun(t *testing.T) {
	dir := writeDocs(t)

	idx := &fakeIndex{}
	if _, err := NewRunner(Config{DataDir: dir, ChunkSize: 1000, Reset: true}, idx, discardLogger()).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(idx.deleted) != 1 || idx.deleted[0] != "" {
		t.Errorf("expected a single full reset, got %v", idx.deleted)
	}

	dry := &fakeIndex{}
	sum, err := NewRunner(Config{DataDir: dir, ChunkSize: 1000, Reset: true, DryRun: true}, dry, discardLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(dry.deleted) != 0 || len(dry.replaced) != 0 || sum.Chunks != 2 {
		t.Errorf("dry run must not write: %+v %+v", dry, sum)
	}
}

func TestRunner_EmptiedDocumentIsCleared(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "retired.md"), []byte("---\ntitle: Retired\n---\n# Retired\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	idx := &fakeIndex{}
	sum, err := NewRunner(Config{DataDir: dir, ChunkSize: 1000}, idx, discardLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Chunks != 0 || sum.Written != 0 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if len(idx.replaced) != 1 || idx.replaced[0] != "retired.md" {
		t.Errorf("expected the document to be cleared, got %v", idx.replaced)
	}
}

func TestRunner_Errors(t *testing.T) {
	if _, err := NewRunner(Config{DataDir: "/does/not/exist", ChunkSize: 10}, &fakeIndex{}, discardLogger()).Run(context.Background()); err == nil {
		t.Error("expected error for missing directory")
	}

	idx := &fakeIndex{err: errors.New("db down")}
	if _, err := NewRunner(Config{DataDir: writeDocs(t), ChunkSize: 1000}, idx, discardLogger()).Run(context.Background()); err == nil {
		t.Error("expected storage error to abort")
	}
}
