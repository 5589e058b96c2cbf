package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/blogman/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用した投稿リポジトリ。
// 作成順はBIGSERIALのseq列で保持する。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

const postColumns = `id, title, content, author_user_id, author_display_name, slug, image_url, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(s rowScanner) (*model.Post, error) {
	post := &model.Post{}
	var imageURL sql.NullString
	if err := s.Scan(
		&post.ID, &post.Title, &post.Content,
		&post.AuthorUserID, &post.AuthorDisplayName, &post.Slug,
		&imageURL, &post.CreatedAt, &post.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if imageURL.Valid {
		v := imageURL.String
		post.ImageURL = &v
	}
	return post, nil
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	// スラッグで呼ばれることもあるため、UUID以外は未検出とする
	if !isUUID(id) {
		return nil, nil
	}
	post, err := scanPost(r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM blog_posts WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post by ID: %w", err)
	}
	return post, nil
}

// FindBySlug はスラッグが一致する投稿のうち最初に作成されたものを返す。
func (r *PostgresPostRepo) FindBySlug(ctx context.Context, slug string) (*model.Post, error) {
	post, err := scanPost(r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM blog_posts WHERE slug = $1 ORDER BY seq ASC LIMIT 1`,
		slug,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post by slug: %w", err)
	}
	return post, nil
}

// Create は投稿を作成する。seqはDB側で採番される。
func (r *PostgresPostRepo) Create(ctx context.Context, post *model.Post) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO blog_posts (id, title, content, author_user_id, author_display_name, slug, image_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		post.ID, post.Title, post.Content,
		post.AuthorUserID, post.AuthorDisplayName, post.Slug,
		nullString(post.ImageURL), post.CreatedAt, post.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// Update はタイトル・本文・画像URL・更新日時を上書きする。
func (r *PostgresPostRepo) Update(ctx context.Context, post *model.Post) error {
	if !isUUID(post.ID) {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE blog_posts
		 SET title = $2, content = $3, image_url = $4, updated_at = $5
		 WHERE id = $1`,
		post.ID, post.Title, post.Content, nullString(post.ImageURL), post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	return checkAffected(result)
}

// Delete は投稿を物理削除する。
func (r *PostgresPostRepo) Delete(ctx context.Context, id string) error {
	if !isUUID(id) {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM blog_posts WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return checkAffected(result)
}

// List は全投稿を作成日時の降順で返す。ページネーションは行わない。
func (r *PostgresPostRepo) List(ctx context.Context) ([]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM blog_posts ORDER BY created_at DESC, seq ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	var posts []*model.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}
	return posts, nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
