package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/plowed/claimgate/internal/model"
)

// PostgresCodeRepo はPostgreSQLを使用した招待コードリポジトリ。
type PostgresCodeRepo struct {
	db *sql.DB
}

// NewPostgresCodeRepo はPostgresCodeRepoを生成する。
func NewPostgresCodeRepo(db *sql.DB) *PostgresCodeRepo {
	return &PostgresCodeRepo{db: db}
}

// ListCandidates は照合対象のコードを作成日時の新しい順に返す。
func (r *PostgresCodeRepo) ListCandidates(ctx context.Context, includeUsed bool) ([]*model.Code, error) {
	query := `SELECT id, code_hash, tier, expires_at, used_at, created_at
		 FROM codes
		 WHERE ($1 OR used_at IS NULL)
		 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, includeUsed)
	if err != nil {
		return nil, fmt.Errorf("failed to list codes: %w", err)
	}
	defer rows.Close()

	var codes []*model.Code
	for rows.Next() {
		code := &model.Code{}
		var expiresAt, usedAt sql.NullTime
		if err := rows.Scan(&code.ID, &code.CodeHash, &code.Tier, &expiresAt, &usedAt, &code.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan code: %w", err)
		}
		if expiresAt.Valid {
			code.ExpiresAt = &expiresAt.Time
		}
		if usedAt.Valid {
			code.UsedAt = &usedAt.Time
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate codes: %w", err)
	}

	return codes, nil
}

// compile-time interface check
var _ CodeRepository = (*PostgresCodeRepo)(nil)
