package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/security"
)

//go:embed templates/*.html
var templateFS embed.FS

// ページ名（templates/<name>.html）
const (
	pageHome     = "home"
	pagePost     = "post"
	pagePostForm = "post_form"
	pageLogin    = "login"
	pageRegister = "register"
	pageProfile  = "profile"
	pageAdmin    = "admin"
	pageEditUser = "edit_user"
	pageNotFound = "404"
)

var pageNames = []string{
	pageHome, pagePost, pagePostForm, pageLogin, pageRegister,
	pageProfile, pageAdmin, pageEditUser, pageNotFound,
}

// templateFuncs はテンプレート関数を返す。
// 投稿本文は入力のまま保存されているため、sanitizeHTMLで許可リストを通してから描画する。
func templateFuncs(sanitizer security.ContentSanitizerService) template.FuncMap {
	return template.FuncMap{
		"formatDate":   func(t time.Time) string { return t.Format("January 2, 2006") },
		"sanitizeHTML": func(s string) template.HTML { return template.HTML(sanitizer.Sanitize(s)) },
	}
}

// pageView は全ページ共通のテンプレート入力。
type pageView struct {
	Title     string
	Session   *model.Session
	Flashes   []middleware.Flash
	CSRFToken string
	Data      any
}

// Renderer は埋め込みテンプレートからHTMLページを描画する。
type Renderer struct {
	pages   map[string]*template.Template
	flashes *middleware.FlashStore
}

// NewRenderer はテンプレートを解析してRendererを生成する。
func NewRenderer(flashes *middleware.FlashStore, sanitizer security.ContentSanitizerService) (*Renderer, error) {
	funcs := templateFuncs(sanitizer)
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &Renderer{pages: pages, flashes: flashes}, nil
}

// Render はページを描画する。保留中のフラッシュメッセージはここで消費する。
func (rn *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any, extra ...middleware.Flash) {
	tmpl, ok := rn.pages[name]
	if !ok {
		slog.Error("unknown template", slog.String("name", name))
		middleware.WriteInternalServerError(w)
		return
	}

	// 1. ヘッダー送信前にフラッシュを取り出す（Cookieの更新を伴う）
	flashes := append(rn.flashes.Pop(w, r), extra...)

	view := pageView{
		Title:     title,
		Session:   middleware.SessionFromContext(r.Context()),
		Flashes:   flashes,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Data:      data,
	}

	// 2. バッファに描画してから書き出す
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", view); err != nil {
		slog.Error("failed to render template",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
