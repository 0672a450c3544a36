package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
)

// Exchange is one answered question.
type Exchange struct {
	// Question is the user's question.
	Question string `json:"question"`
	// Answer is the generated answer text.
	Answer string `json:"answer"`
	// Citations are the passages the answer referenced.
	Citations []rag.Citation `json:"citations"`
	// CreatedAt is when the exchange was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// History persists answered questions per namespace.
// Implementations must be safe for concurrent use.
type History interface {
	// AppendExchange persists one answered question.
	AppendExchange(ctx context.Context, namespace string, ex Exchange) error
	// RecentExchanges returns the most recent n exchanges for namespace,
	// ordered oldest-first. If fewer than n exist, all are returned.
	RecentExchanges(ctx context.Context, namespace string, n int) ([]Exchange, error)
}

// AppendExchange persists one answered question.
func (s *SQLiteStore) AppendExchange(ctx context.Context, namespace string, ex Exchange) error {
	cites := ex.Citations
	if cites == nil {
		cites = []rag.Citation{}
	}
	raw, err := json.Marshal(cites)
	if err != nil {
		return fmt.Errorf("store: encode citations: %w", err)
	}
	created := ex.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	const q = `INSERT INTO exchanges (namespace, question, answer, citations, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, namespace, ex.Question, ex.Answer, string(raw), created.Unix()); err != nil {
		return fmt.Errorf("store: append exchange: %w", err)
	}
	return nil
}

// RecentExchanges returns the most recent n exchanges for namespace,
// oldest-first. Uses a subquery to select the tail then re-order it.
func (s *SQLiteStore) RecentExchanges(ctx context.Context, namespace string, n int) ([]Exchange, error) {
	const q = `
SELECT question, answer, citations, created_at FROM (
    SELECT id, question, answer, citations, created_at
    FROM   exchanges
    WHERE  namespace = ?
    ORDER  BY created_at DESC, id DESC
    LIMIT  ?
) ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, namespace, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent exchanges: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var ex Exchange
		var raw string
		var ts int64
		if err := rows.Scan(&ex.Question, &ex.Answer, &raw, &ts); err != nil {
			return nil, fmt.Errorf("store: recent exchanges scan: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &ex.Citations); err != nil {
			return nil, fmt.Errorf("store: decode citations: %w", err)
		}
		ex.CreatedAt = time.Unix(ts, 0)
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent exchanges rows: %w", err)
	}
	return out, nil
}
