package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/blogman/internal/model"
)

// --- モック定義 ---

type mockSessionRepository struct {
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionRepository) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

// captureSession はミドルウェア通過後のセッションを記録するハンドラーを返す。
func captureSession(got **model.Session) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

// --- テスト ---

func TestSessionMiddleware_ValidSession_InjectsSession(t *testing.T) {
	repo := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id == "valid-session-id" {
				return &model.Session{
					ID:        "valid-session-id",
					UserID:    "user-123",
					Role:      model.RoleAdmin,
					ExpiresAt: time.Now().Add(time.Hour),
				}, nil
			}
			return nil, nil
		},
	}

	var got *model.Session
	handler := NewSessionMiddleware(repo)(captureSession(&got))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-session-id"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got == nil || got.UserID != "user-123" || !got.IsAdmin() {
		t.Errorf("session = %+v, want user-123 admin", got)
	}
}

func TestSessionMiddleware_AnonymousRequestsPassThrough(t *testing.T) {
	tests := []struct {
		name   string
		cookie *http.Cookie
		findFn func(ctx context.Context, id string) (*model.Session, error)
	}{
		{name: "Cookieなし"},
		{name: "空のCookie", cookie: &http.Cookie{Name: SessionCookieName, Value: ""}},
		{
			name:   "期限切れ",
			cookie: &http.Cookie{Name: SessionCookieName, Value: "expired"},
			findFn: func(context.Context, string) (*model.Session, error) { return nil, nil },
		},
		{
			name:   "リポジトリエラー",
			cookie: &http.Cookie{Name: SessionCookieName, Value: "any"},
			findFn: func(context.Context, string) (*model.Session, error) { return nil, errors.New("db down") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *model.Session
			handler := NewSessionMiddleware(&mockSessionRepository{findByIDFn: tt.findFn})(captureSession(&got))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", w.Code)
			}
			if got != nil {
				t.Errorf("session = %+v, want nil", got)
			}
		})
	}
}

func TestUserIDFromContext(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for empty context")
	}

	ctx := ContextWithSession(context.Background(), &model.Session{UserID: "user-456"})
	userID, err := UserIDFromContext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != "user-456" {
		t.Errorf("userID = %q, want %q", userID, "user-456")
	}
}
