package titles

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore reads titles from a table with columns (id BIGINT, title TEXT).
type PostgresStore struct {
	db    *sql.DB
	query string
}

func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	return &PostgresStore{
		db:    db,
		query: fmt.Sprintf("SELECT id, title FROM %s WHERE id = ANY($1)", pq.QuoteIdentifier(table)),
	}
}

func (s *PostgresStore) Titles(ctx context.Context, ids []uint32) (map[uint32]string, error) {
	keys := make([]int64, len(ids))
	for i, id := range ids {
		keys[i] = int64(id)
	}
	rows, err := s.db.QueryContext(ctx, s.query, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("querying titles: %w", err)
	}
	defer rows.Close()

	out := make(map[uint32]string, len(ids))
	for rows.Next() {
		var (
			id    int64
			title string
		)
		if err := rows.Scan(&id, &title); err != nil {
			return nil, fmt.Errorf("scanning title row: %w", err)
		}
		out[uint32(id)] = title
	}
	return out, rows.Err()
}
