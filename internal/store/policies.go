package store

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/domain"
)

// PolicyChunk is one indexed slice of a policy document.
type PolicyChunk struct {
	SourceDocument string
	Section        string
	ChunkIndex     int
	Content        string
	Metadata       map[string]string
}

// ReplacePolicyDocument swaps the indexed chunks of one document for chunks
// in a single transaction. An empty chunks slice removes the document.
func (s *Store) ReplacePolicyDocument(ctx context.Context, sourceDocument string, chunks []PolicyChunk) (deleted int64, written int, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM policy_chunks WHERE source_document = $1`, sourceDocument)
	if err != nil {
		return 0, 0, fmt.Errorf("clear %s: %w", sourceDocument, err)
	}

	for _, c := range chunks {
		if c.SourceDocument != sourceDocument {
			return 0, 0, fmt.Errorf("chunk %s#%d does not belong to %s", c.SourceDocument, c.ChunkIndex, sourceDocument)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO policy_chunks (id, source_document, section, chunk_index, content, metadata)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New(), c.SourceDocument, c.Section, c.ChunkIndex, c.Content, c.Metadata,
		)
		if err != nil {
			return 0, 0, fmt.Errorf("insert chunk %s#%d: %w", c.SourceDocument, c.ChunkIndex, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit: %w", err)
	}
	return tag.RowsAffected(), len(chunks), nil
}

// DeletePolicyChunks removes the chunks of one document, or of every
// document when sourceDocument is empty.
func (s *Store) DeletePolicyChunks(ctx context.Context, sourceDocument string) (int64, error) {
	sql := `DELETE FROM policy_chunks`
	var args []any
	if sourceDocument != "" {
		sql += ` WHERE source_document = $1`
		args = append(args, sourceDocument)
	}
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete policy chunks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SearchPolicies ranks chunks against the words of query using Postgres
// full-text search. Any query word may match.
func (s *Store) SearchPolicies(ctx context.Context, query string, limit int) ([]domain.PolicyHit, error) {
	tsq := orQuery(query)
	if tsq == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.pool.Query(ctx, `
		SELECT content, source_document, section, ts_rank(search, q) AS score
		FROM policy_chunks, to_tsquery('english', $1) AS q
		WHERE search @@ q
		ORDER BY score DESC, source_document, chunk_index
		LIMIT $2`, tsq, limit)
	if err != nil {
		return nil, fmt.Errorf("search policies: %w", err)
	}
	defer rows.Close()

	var hits []domain.PolicyHit
	for rows.Next() {
		var h domain.PolicyHit
		var score float32
		if err := rows.Scan(&h.Content, &h.SourceDocument, &h.Section, &score); err != nil {
			return nil, fmt.Errorf("scan policy hit: %w", err)
		}
		h.RelevanceScore = float64(score)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// orQuery turns free text into a to_tsquery expression joining its words
// with |. Punctuation is dropped so the expression is always valid.
func orQuery(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	var terms []string
	for _, w := range words {
		if len(w) < 2 || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
	}
	return strings.Join(terms, " | ")
}
