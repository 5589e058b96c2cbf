// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval はジョブの実行間隔のデフォルト値。
const DefaultInterval = time.Hour

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SessionCleanupJob はexpires_atを過ぎたセッションを削除するジョブ。
// 期限切れセッションは参照時にも無視されるため、削除は容量の回収のみを目的とする。
type SessionCleanupJob struct {
	db       Executor
	logger   *slog.Logger
	Interval time.Duration
}

// NewSessionCleanupJob はSessionCleanupJobを生成する。intervalが0以下ならDefaultIntervalを使う。
func NewSessionCleanupJob(db Executor, logger *slog.Logger, interval time.Duration) *SessionCleanupJob {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &SessionCleanupJob{db: db, logger: logger, Interval: interval}
}

// Run は期限切れセッションを1回削除する。削除対象がなくてもエラーにならない。
func (j *SessionCleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	result, err := j.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		j.logger.Error("session cleanup failed", slog.String("error", err.Error()))
		return fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("failed to get deleted session count", slog.String("error", err.Error()))
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	j.logger.Info("session cleanup completed",
		slog.Int64("deleted_count", deletedCount),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}

// Start は起動直後に1回、その後Interval毎にRunを実行する。ctxがキャンセルされるまでブロックする。
func (j *SessionCleanupJob) Start(ctx context.Context) {
	j.logger.Info("session cleanup job started", slog.Duration("interval", j.Interval))

	// エラーはRun内でログ済みなので次の周期で再試行する
	_ = j.Run(ctx)

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("session cleanup job stopped")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
