package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"
)

// フラッシュメッセージの分類
const (
	FlashSuccess = "success"
	FlashInfo    = "info"
	FlashWarning = "warning"
	FlashDanger  = "danger"
)

// flashCategories は表示順。
var flashCategories = []string{FlashDanger, FlashWarning, FlashSuccess, FlashInfo}

const flashCookieName = "blogman_flash"

// Flash は次のリクエストで1回だけ表示するメッセージ。
type Flash struct {
	Category string
	Message  string
}

// FlashStore は署名付きCookieにフラッシュメッセージを保存する。
type FlashStore struct {
	store *sessions.CookieStore
}

// NewFlashStore はFlashStoreを生成する。secretはCookieの署名鍵。
func NewFlashStore(secret []byte, secure bool, domain string) *FlashStore {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		Domain:   domain,
		MaxAge:   300,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &FlashStore{store: store}
}

// Add はメッセージを追加してCookieに書き込む。レスポンス本文を書く前に呼ぶこと。
func (f *FlashStore) Add(w http.ResponseWriter, r *http.Request, category, message string) {
	session, err := f.store.Get(r, flashCookieName)
	if err != nil {
		// 署名不一致などの壊れたCookieは新しいセッションで上書きする
		slog.Warn("discarding invalid flash cookie", slog.String("error", err.Error()))
	}
	session.AddFlash(message, category)
	if err := session.Save(r, w); err != nil {
		slog.Error("failed to save flash message", slog.String("error", err.Error()))
	}
}

// Pop は保存済みのメッセージを取り出して消去する。
func (f *FlashStore) Pop(w http.ResponseWriter, r *http.Request) []Flash {
	session, err := f.store.Get(r, flashCookieName)
	if err != nil || session.IsNew {
		return nil
	}

	var flashes []Flash
	for _, category := range flashCategories {
		for _, v := range session.Flashes(category) {
			if msg, ok := v.(string); ok {
				flashes = append(flashes, Flash{Category: category, Message: msg})
			}
		}
	}
	if len(flashes) == 0 {
		return nil
	}
	if err := session.Save(r, w); err != nil {
		slog.Error("failed to clear flash messages", slog.String("error", err.Error()))
	}
	return flashes
}
