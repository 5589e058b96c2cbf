package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFlashStore_AddThenPopOnce(t *testing.T) {
	store := NewFlashStore([]byte("0123456789abcdef0123456789abcdef"), false, "")

	// 1. リダイレクト前に追加
	w := httptest.NewRecorder()
	store.Add(w, httptest.NewRequest(http.MethodPost, "/login", nil), FlashSuccess, "Logged in successfully")
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("flash cookie not set")
	}

	// 2. 次のリクエストで取り出す
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w2 := httptest.NewRecorder()
	flashes := store.Pop(w2, req)
	if len(flashes) != 1 || flashes[0].Category != FlashSuccess || flashes[0].Message != "Logged in successfully" {
		t.Fatalf("flashes = %+v", flashes)
	}

	// 3. 消去後のCookieでは空
	req3 := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range w2.Result().Cookies() {
		req3.AddCookie(c)
	}
	if got := store.Pop(httptest.NewRecorder(), req3); len(got) != 0 {
		t.Errorf("flashes after pop = %+v, want none", got)
	}
}

func TestFlashStore_PopWithoutCookie(t *testing.T) {
	store := NewFlashStore([]byte("0123456789abcdef0123456789abcdef"), false, "")
	if got := store.Pop(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil)); got != nil {
		t.Errorf("flashes = %+v, want nil", got)
	}
}

func TestFlashStore_TamperedCookieIgnored(t *testing.T) {
	store := NewFlashStore([]byte("0123456789abcdef0123456789abcdef"), false, "")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: flashCookieName, Value: "forged"})

	if got := store.Pop(httptest.NewRecorder(), req); got != nil {
		t.Errorf("flashes = %+v, want nil", got)
	}
}
