package model

import "time"

// Post はブログ投稿（blog_postsコレクションのドキュメント）を表す。
type Post struct {
	ID                string
	Title             string
	Content           string // サニタイズ済みHTML
	AuthorUserID      string
	AuthorDisplayName string // 作成時点の氏名。プロフィール変更には追従しない
	Slug              string // 一意性は保証しない
	ImageURL          *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasImage は画像が添付されているかどうかを返す。
func (p *Post) HasImage() bool {
	return p.ImageURL != nil && *p.ImageURL != ""
}
