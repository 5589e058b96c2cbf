package post

import "strings"

// Slugify はタイトルからスラッグを生成する。
// 小文字化して半角スペースをハイフンに置き換えるだけで、一意性は保証しない。
func Slugify(title string) string {
	return strings.ReplaceAll(strings.ToLower(title), " ", "-")
}
