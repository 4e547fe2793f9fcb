package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/store"
)

// Config holds the ingest command configuration.
type Config struct {
	DataDir      string
	ChunkSize    int
	ChunkOverlap int
	Reset        bool // drop every indexed chunk before writing
	DryRun       bool // split and report without writing
}

// Index is the policy chunk storage. *store.Store satisfies it.
type Index interface {
	ReplacePolicyDocument(ctx context.Context, sourceDocument string, chunks []store.PolicyChunk) (int64, int, error)
	DeletePolicyChunks(ctx context.Context, sourceDocument string) (int64, error)
}

// Summary reports what a run did.
type Summary struct {
	Files   int
	Chunks  int
	Written int
	Deleted int64
	Errors  []string
}

type Runner struct {
	cfg    Config
	index  Index
	logger *slog.Logger
}

func NewRunner(cfg Config, index Index, logger *slog.Logger) *Runner {
	return &Runner{cfg: cfg, index: index, logger: logger}
}

// Run indexes every *.md file in the data directory. A file that fails to
// read or parse is recorded in the summary and skipped; storage errors
// abort the run.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	files, err := discover(r.cfg.DataDir)
	if err != nil {
		return nil, err
	}
	r.logger.Info("files discovered", "data_dir", r.cfg.DataDir, "files", len(files))

	sum := &Summary{}
	if len(files) == 0 {
		r.logger.Warn("no markdown files found", "data_dir", r.cfg.DataDir)
		return sum, nil
	}

	if r.cfg.Reset && !r.cfg.DryRun {
		n, err := r.index.DeletePolicyChunks(ctx, "")
		if err != nil {
			return sum, fmt.Errorf("reset index: %w", err)
		}
		sum.Deleted += n
		r.logger.Info("index reset", "deleted", n)
	}

	splitter := NewSplitter(r.cfg.ChunkSize, r.cfg.ChunkOverlap)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		chunks, err := ChunkFile(path, splitter)
		if err != nil {
			r.logger.Warn("failed to chunk file", "path", path, "error", err)
			sum.Errors = append(sum.Errors, err.Error())
			continue
		}
		sum.Files++
		sum.Chunks += len(chunks)
		r.logger.Info("file chunked", "path", path, "chunks", len(chunks))

		if r.cfg.DryRun {
			continue
		}

		// A document with no chunks left is still replaced so its old
		// chunks stop matching searches.
		deleted, written, err := r.index.ReplacePolicyDocument(ctx, filepath.Base(path), chunks)
		if err != nil {
			return sum, fmt.Errorf("write %s: %w", path, err)
		}
		sum.Deleted += deleted
		sum.Written += written
	}

	r.logger.Info("ingest complete",
		"files", sum.Files,
		"chunks", sum.Chunks,
		"written", sum.Written,
		"deleted", sum.Deleted,
		"errors", len(sum.Errors),
		"dry_run", r.cfg.DryRun,
	)
	return sum, nil
}

func discover(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("data directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data directory %s is not a directory", dir)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// ChunkFile reads one markdown document and returns its chunks. Chunk
// indexes run across the whole document.
func ChunkFile(path string, splitter *Splitter) ([]store.PolicyChunk, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	fm, body, err := ParseFrontMatter(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return Chunk(filepath.Base(path), fm, body, splitter), nil
}

func Chunk(filename string, fm FrontMatter, body string, splitter *Splitter) []store.PolicyChunk {
	var out []store.PolicyChunk
	for _, sec := range SplitHeaders(body) {
		section := sec.Path()
		if section == "" {
			section = filename
		}
		for _, text := range splitter.Split(sec.Content) {
			meta := map[string]string{"source": filename}
			if fm.Title != "" {
				meta["title"] = fm.Title
			}
			if len(fm.Tags) > 0 {
				meta["tags"] = strings.Join(fm.Tags, ",")
			}
			if fm.Owner != "" {
				meta["owner"] = fm.Owner
			}
			out = append(out, store.PolicyChunk{
				SourceDocument: filename,
				Section:        section,
				ChunkIndex:     len(out),
				Content:        text,
				Metadata:       meta,
			})
		}
	}
	return out
}
