// Package cleanup は期限切れOAuthStateの定期削除ジョブを提供する。
// コールバックで消費されなかったstateは鮮度ウィンドウを過ぎると
// 受け付けられないため、ストアからも削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultStateTTL はOAuthStateの鮮度ウィンドウのデフォルト値。
const DefaultStateTTL = 15 * time.Minute

// DefaultInterval はStartに0以下の間隔が渡された場合の実行間隔。
const DefaultInterval = 10 * time.Minute

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は鮮度ウィンドウを過ぎたoauth_statesの削除ジョブ。
// 冪等な削除処理を保証する。
type CleanupJob struct {
	db       Executor
	logger   *slog.Logger
	StateTTL time.Duration // これより古いstateを削除する（デフォルト: 15分）
}

// NewCleanupJob は新しいCleanupJobを生成する。ttlが0以下の場合はDefaultStateTTLを使用する。
func NewCleanupJob(db Executor, logger *slog.Logger, ttl time.Duration) *CleanupJob {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &CleanupJob{
		db:       db,
		logger:   logger,
		StateTTL: ttl,
	}
}

// Run はcreated_atがStateTTLより古いoauth_statesを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d seconds", int64(j.StateTTL/time.Second))

	query := `DELETE FROM oauth_states WHERE created_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("OAuthStateクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("state_ttl", j.StateTTL),
		)
		return fmt.Errorf("OAuthStateクリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("OAuthStateクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Duration("state_ttl", j.StateTTL),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回、以降intervalごとにRunを実行する。ctxがキャンセルされるまでブロックする。
// 個々の実行失敗はログに記録して次回に持ち越す。intervalが0以下の場合はDefaultIntervalを使う。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	j.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *CleanupJob) runOnce(ctx context.Context) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Warn("cleanup run failed, retrying next tick", slog.String("error", err.Error()))
	}
}
