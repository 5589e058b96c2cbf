// Package logger はslogの構造化ログ出力を設定する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// FormatText は人間向けのカラー付きテキスト出力を選ぶLOG_FORMATの値。
const FormatText = "text"

// Options はロガーの出力形式とレベル。
type Options struct {
	Format string // "json"（デフォルト）または "text"
	Level  string // "debug", "info", "warn", "error"
}

// ParseLevel はレベル名をslog.Levelに変換する。不明な値はInfoとして扱う。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New はOptionsに従ったslog.Loggerを生成する。
// 本番はJSON、ローカル開発ではtintのテキスト出力を使う。
func New(w io.Writer, opts Options) *slog.Logger {
	level := ParseLevel(opts.Level)
	if strings.EqualFold(opts.Format, FormatText) {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			NoColor:    w != os.Stdout && w != os.Stderr,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Setup はInfoレベルのJSONロガーを生成する。
func Setup(w io.Writer) *slog.Logger {
	return New(w, Options{})
}

// SetupDefault はロガーを生成してグローバルロガーとして設定する。
// wがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer, opts Options) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	l := New(w, opts)
	slog.SetDefault(l)
	return l
}
