// Package post はブログ投稿のライフサイクル（作成・閲覧・編集・削除・一覧）を提供する。
package post

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hitoshi/blogman/internal/authz"
	"github.com/hitoshi/blogman/internal/metrics"
	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/repository"
	"github.com/hitoshi/blogman/internal/security"
)

const genericFailureMessage = "Something went wrong. Please try again later."

// CreateInput は投稿作成フォームの入力値。
type CreateInput struct {
	Title    string
	Content  string
	ImageURL *string // アップロード済み画像のURL。なければnil
}

// EditInput は投稿編集フォームの入力値。
// ImageURLがnilの場合は既存の画像を維持する。
type EditInput struct {
	Title    string
	Content  string
	ImageURL *string
}

// Service は投稿に関するビジネスロジックを提供する。
type Service struct {
	posts     repository.PostRepository
	users     repository.UserRepository
	sanitizer security.ContentSanitizerService
	metrics   metrics.MetricsCollector
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
}

// NewService はServiceを生成する。
func NewService(
	posts repository.PostRepository,
	users repository.UserRepository,
	sanitizer security.ContentSanitizerService,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		posts:     posts,
		users:     users,
		sanitizer: sanitizer,
		metrics:   collector,
		tracer:    otel.Tracer("blogman/post"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Create は新しい投稿を作成する。
// 投稿者はセッションのユーザーに固定され、スラッグはこの時点のタイトルから生成する。
func (s *Service) Create(ctx context.Context, sess *model.Session, in CreateInput) (_ *model.Post, err error) {
	ctx, span := s.tracer.Start(ctx, "Create")
	defer func() { s.finish(span, "create", err) }()

	// 1. 認証
	userID, err := authz.RequireAuthenticated(sess)
	if err != nil {
		return nil, err
	}

	// 2. 入力検証
	if err := s.validate(in.Title, in.Content); err != nil {
		return nil, err
	}

	// 3. 投稿者プロフィールを取得
	author, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, model.NewUpstreamError(genericFailureMessage, err)
	}
	if author == nil {
		return nil, model.NewUserNotFoundError(userID)
	}

	// 4. 永続化
	now := s.now()
	post := &model.Post{
		ID:                s.newID(),
		Title:             in.Title,
		Content:           in.Content,
		AuthorUserID:      userID,
		AuthorDisplayName: author.DisplayName(),
		Slug:              Slugify(strings.TrimSpace(in.Title)),
		ImageURL:          in.ImageURL,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, model.NewUpstreamError(genericFailureMessage, err)
	}

	span.SetAttributes(attribute.String("post.id", post.ID))
	slog.Info("post created",
		slog.String("post_id", post.ID),
		slog.String("user_id", userID),
	)
	return post, nil
}

// View はIDまたはスラッグで投稿を取得する。認証は不要。
// IDを優先し、なければスラッグが一致する最初の投稿を返す。
func (s *Service) View(ctx context.Context, idOrSlug string) (_ *model.Post, err error) {
	ctx, span := s.tracer.Start(ctx, "View", trace.WithAttributes(attribute.String("post.key", idOrSlug)))
	defer func() { s.endSpan(span, err) }()

	if strings.TrimSpace(idOrSlug) == "" {
		return nil, model.NewPostNotFoundError(idOrSlug)
	}

	post, err := s.posts.FindByID(ctx, idOrSlug)
	if err != nil {
		return nil, model.NewUpstreamError(genericFailureMessage, err)
	}
	if post != nil {
		return post, nil
	}

	post, err = s.posts.FindBySlug(ctx, idOrSlug)
	if err != nil {
		return nil, model.NewUpstreamError(genericFailureMessage, err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(idOrSlug)
	}
	return post, nil
}

// Editable は編集フォームの初期値として投稿を返す。
// 所有者または管理者でなければForbiddenを返す。
func (s *Service) Editable(ctx context.Context, sess *model.Session, id string) (*model.Post, error) {
	return s.authorize(ctx, sess, id)
}

// Edit は投稿のタイトルと本文を更新する。
// 新しい画像が指定された場合のみ画像を差し替え、スラッグは変更しない。
func (s *Service) Edit(ctx context.Context, sess *model.Session, id string, in EditInput) (_ *model.Post, err error) {
	ctx, span := s.tracer.Start(ctx, "Edit", trace.WithAttributes(attribute.String("post.id", id)))
	defer func() { s.finish(span, "edit", err) }()

	// 1. 認証・存在確認・認可
	post, err := s.authorize(ctx, sess, id)
	if err != nil {
		return nil, err
	}

	// 2. 入力検証
	if err := s.validate(in.Title, in.Content); err != nil {
		return nil, err
	}

	// 3. 更新
	post.Title = in.Title
	post.Content = in.Content
	if in.ImageURL != nil {
		post.ImageURL = in.ImageURL
	}
	post.UpdatedAt = s.now()

	if err := s.posts.Update(ctx, post); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewPostNotFoundError(id)
		}
		return nil, model.NewUpstreamError(genericFailureMessage, err)
	}

	slog.Info("post updated",
		slog.String("post_id", post.ID),
		slog.String("user_id", sess.UserID),
	)
	return post, nil
}

// Delete は投稿を物理削除する。
func (s *Service) Delete(ctx context.Context, sess *model.Session, id string) (err error) {
	ctx, span := s.tracer.Start(ctx, "Delete", trace.WithAttributes(attribute.String("post.id", id)))
	defer func() { s.finish(span, "delete", err) }()

	if _, err := s.authorize(ctx, sess, id); err != nil {
		return err
	}

	if err := s.posts.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewPostNotFoundError(id)
		}
		return model.NewUpstreamError(genericFailureMessage, err)
	}

	slog.Info("post deleted",
		slog.String("post_id", id),
		slog.String("user_id", sess.UserID),
	)
	return nil
}

// List は全投稿を新しい順に返す。ページネーションは行わない。
func (s *Service) List(ctx context.Context) (_ []*model.Post, err error) {
	ctx, span := s.tracer.Start(ctx, "List")
	defer func() { s.endSpan(span, err) }()

	posts, err := s.posts.List(ctx)
	if err != nil {
		return nil, model.NewUpstreamError(genericFailureMessage, err)
	}
	span.SetAttributes(attribute.Int("post.count", len(posts)))
	return posts, nil
}

// authorize は認証、存在確認、所有者または管理者の確認をこの順に行う。
func (s *Service) authorize(ctx context.Context, sess *model.Session, id string) (*model.Post, error) {
	if _, err := authz.RequireAuthenticated(sess); err != nil {
		return nil, err
	}

	post, err := s.posts.FindByID(ctx, id)
	if err != nil {
		return nil, model.NewUpstreamError(genericFailureMessage, err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(id)
	}

	if err := authz.RequireOwnerOrAdmin(sess, post.AuthorUserID); err != nil {
		return nil, err
	}
	return post, nil
}

// validate はタイトルと本文が空でないことを確認する。
// 値は入力のまま保存し、表示時にサニタイズする。
// 本文はサニタイズ後に空になる場合も未入力として扱う。
func (s *Service) validate(title, content string) error {
	if strings.TrimSpace(title) == "" || s.sanitizer.Sanitize(content) == "" {
		return model.NewValidationError("Title and content are required.")
	}
	return nil
}

func (s *Service) finish(span trace.Span, op string, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	s.metrics.RecordPostOperation(op, outcome)
	s.endSpan(span, err)
}

func (s *Service) endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(model.CategoryOf(err)))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
