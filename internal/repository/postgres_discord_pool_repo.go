package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresDiscordPoolRepo はPostgreSQLを使用したDiscord配布用コードプールリポジトリ。
type PostgresDiscordPoolRepo struct {
	db *sql.DB
}

// NewPostgresDiscordPoolRepo はPostgresDiscordPoolRepoを生成する。
func NewPostgresDiscordPoolRepo(db *sql.DB) *PostgresDiscordPoolRepo {
	return &PostgresDiscordPoolRepo{db: db}
}

// AllocateCode はallocate_discord_code関数でユーザーにコードを割り当てる。
// 冪等性はストア側の一意制約で保証される。
func (r *PostgresDiscordPoolRepo) AllocateCode(ctx context.Context, userID string) (string, error) {
	var code sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT allocate_discord_code($1)`,
		userID,
	).Scan(&code)
	if err != nil {
		return "", fmt.Errorf("failed to allocate discord code: %w", err)
	}
	if !code.Valid {
		return "", ErrPoolExhausted
	}
	return code.String, nil
}

// compile-time interface check
var _ DiscordPoolRepository = (*PostgresDiscordPoolRepo)(nil)
