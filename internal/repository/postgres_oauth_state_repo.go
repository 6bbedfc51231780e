package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/plowed/claimgate/internal/model"
)

// PostgresOAuthStateRepo はPostgreSQLを使用したOAuthStateリポジトリ。
type PostgresOAuthStateRepo struct {
	db *sql.DB
}

// NewPostgresOAuthStateRepo はPostgresOAuthStateRepoを生成する。
func NewPostgresOAuthStateRepo(db *sql.DB) *PostgresOAuthStateRepo {
	return &PostgresOAuthStateRepo{db: db}
}

// Save はOAuthStateを保存する。
func (r *PostgresOAuthStateRepo) Save(ctx context.Context, state *model.OAuthState) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO oauth_states (state, code_verifier, purpose, claim_id, created_at)
		 VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5)`,
		state.State, state.CodeVerifier, string(state.Purpose), state.ClaimID, state.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save oauth state: %w", err)
	}
	return nil
}

// Take はDELETE ... RETURNINGでOAuthStateを取得と同時に削除する。
func (r *PostgresOAuthStateRepo) Take(ctx context.Context, state string) (*model.OAuthState, error) {
	s := &model.OAuthState{}
	var purpose string
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM oauth_states
		 WHERE state = $1
		 RETURNING state, code_verifier, purpose, COALESCE(claim_id::text, ''), created_at`,
		state,
	).Scan(&s.State, &s.CodeVerifier, &purpose, &s.ClaimID, &s.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take oauth state: %w", err)
	}

	s.Purpose = model.Purpose(purpose)
	return s, nil
}

// compile-time interface check
var _ OAuthStateRepository = (*PostgresOAuthStateRepo)(nil)
