package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/post"
)

// PostHandler は投稿のHTTPハンドラー。
type PostHandler struct {
	base
	posts   PostServiceInterface
	uploads UploadServiceInterface
}

// NewPostHandler はPostHandlerを生成する。uploadsがnilの場合は画像を受け付けない。
func NewPostHandler(b base, posts PostServiceInterface, uploads UploadServiceInterface) *PostHandler {
	return &PostHandler{base: b, posts: posts, uploads: uploads}
}

type postView struct {
	Post    *model.Post
	CanEdit bool
}

type postFormView struct {
	Action string
	Post   *model.Post
}

// Home は投稿一覧を作成日時の降順で表示する。
// GET /
func (h *PostHandler) Home(w http.ResponseWriter, r *http.Request) {
	posts, err := h.posts.List(r.Context())
	if err != nil {
		// 一覧自体がリダイレクト先なので、その場でエラーを表示する
		slog.Error("failed to list posts", slog.String("error", err.Error()))
		h.renderer.Render(w, r, http.StatusServiceUnavailable, pageHome, "Home", nil,
			middleware.Flash{Category: middleware.FlashDanger, Message: genericFailureMessage})
		return
	}
	h.renderer.Render(w, r, http.StatusOK, pageHome, "Home", posts)
}

// View は投稿を1件表示する。IDで見つからなければスラッグで探す。
// GET /post/{idOrSlug}
func (h *PostHandler) View(w http.ResponseWriter, r *http.Request) {
	p, err := h.posts.View(r.Context(), chi.URLParam(r, "idOrSlug"))
	if err != nil {
		h.fail(w, r, err, "/")
		return
	}

	sess := session(r)
	canEdit := sess != nil && (sess.UserID == p.AuthorUserID || sess.IsAdmin())
	h.renderer.Render(w, r, http.StatusOK, pagePost, p.Title, postView{Post: p, CanEdit: canEdit})
}

// ShowCreate は投稿作成フォームを表示する。
// GET /create
func (h *PostHandler) ShowCreate(w http.ResponseWriter, r *http.Request) {
	if session(r) == nil {
		h.fail(w, r, model.NewUnauthenticatedError(), "/")
		return
	}
	h.renderer.Render(w, r, http.StatusOK, pagePostForm, "Create Post", postFormView{Action: "/create"})
}

// Create は投稿を作成する。画像が拒否されても投稿は画像なしで保存する。
// POST /create
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess := session(r)
	if sess == nil {
		h.fail(w, r, model.NewUnauthenticatedError(), "/")
		return
	}

	// 1. 必須項目の確認（不備のある送信で画像を保存しない）
	if !hasTitleAndContent(r) {
		h.fail(w, r, errTitleAndContentRequired(), "/create")
		return
	}

	// 2. 画像の受付（任意）
	imageURL := h.acceptImage(w, r)

	// 3. 投稿の作成
	_, err := h.posts.Create(r.Context(), sess, post.CreateInput{
		Title:    r.PostFormValue("title"),
		Content:  r.PostFormValue("content"),
		ImageURL: imageURL,
	})
	if err != nil {
		h.fail(w, r, err, "/create")
		return
	}

	h.redirectWithFlash(w, r, "/", middleware.FlashSuccess, "Post created successfully")
}

// ShowEdit は編集フォームを既存の値で表示する。
// GET /edit/{id}
func (h *PostHandler) ShowEdit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.posts.Editable(r.Context(), session(r), id)
	if err != nil {
		h.fail(w, r, err, "/")
		return
	}
	h.renderer.Render(w, r, http.StatusOK, pagePostForm, "Edit Post", postFormView{Action: "/edit/" + p.ID, Post: p})
}

// Edit は投稿を更新する。新しい画像がない場合は既存の画像を維持する。
// POST /edit/{id}
func (h *PostHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess := session(r)

	// 認可前に画像を保存しないよう、先に編集可否を確認する
	if _, err := h.posts.Editable(r.Context(), sess, id); err != nil {
		h.fail(w, r, err, "/edit/"+id)
		return
	}

	if !hasTitleAndContent(r) {
		h.fail(w, r, errTitleAndContentRequired(), "/edit/"+id)
		return
	}

	imageURL := h.acceptImage(w, r)
	p, err := h.posts.Edit(r.Context(), sess, id, post.EditInput{
		Title:    r.PostFormValue("title"),
		Content:  r.PostFormValue("content"),
		ImageURL: imageURL,
	})
	if err != nil {
		h.fail(w, r, err, "/edit/"+id)
		return
	}

	h.redirectWithFlash(w, r, "/post/"+p.ID, middleware.FlashSuccess, "Post updated successfully")
}

// Delete は投稿を削除する。
// POST /delete/{id}
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.posts.Delete(r.Context(), session(r), id); err != nil {
		h.fail(w, r, err, "/post/"+id)
		return
	}
	h.redirectWithFlash(w, r, "/", middleware.FlashSuccess, "Post deleted successfully")
}

// hasTitleAndContent はタイトルと本文が空白以外を含むかを確認する。
// 本文のサニタイズを含む最終的な検証はサービス側で行う。
func hasTitleAndContent(r *http.Request) bool {
	return strings.TrimSpace(r.PostFormValue("title")) != "" &&
		strings.TrimSpace(r.PostFormValue("content")) != ""
}

func errTitleAndContentRequired() error {
	return model.NewValidationError("Title and content are required.")
}

// acceptImage はフォームの画像を保存してURLを返す。
// 画像がない、または拒否された場合はnilを返し、拒否理由は警告として積む。
func (h *PostHandler) acceptImage(w http.ResponseWriter, r *http.Request) *string {
	if h.uploads == nil {
		return nil
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil
	}
	if err != nil {
		slog.Warn("failed to read uploaded image", slog.String("error", err.Error()))
		h.flashes.Add(w, r, middleware.FlashWarning, "The image could not be read and was not attached.")
		return nil
	}
	defer file.Close()
	if header.Filename == "" {
		return nil
	}

	url, err := h.uploads.Accept(r.Context(), file, header)
	if err != nil {
		message := genericFailureMessage
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			message = apiErr.Message
		}
		slog.Warn("image upload rejected",
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()),
		)
		h.flashes.Add(w, r, middleware.FlashWarning, message+" The image was not attached.")
		return nil
	}
	return &url
}
