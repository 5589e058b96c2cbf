// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は投稿本文のHTMLをサニタイズする。
// 本文は入力のまま保存し、表示時にbluemondayの許可リストポリシーを通して
// 安全なタグと属性のみを描画する。
package security

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
// 投稿ページの描画時と、本文が実質空かどうかの検証に使用される。
type ContentSanitizerService interface {
	// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// imageSource はimgのsrcとして許可するURLの形式。
var imageSource = regexp.MustCompile(`^(https://\S+|/uploads/[A-Za-z0-9._-]+)$`)

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのPolicyは構築後はスレッドセーフに使える。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, pre, code, strong, em, h2-h4, img
//   - 禁止タグ: script, iframe, style および全てのon*イベント属性
//   - URL: httpsスキームと/uploads/配下の相対パスのみ許可
//   - aタグ: 外部リンクにtarget="_blank"とrel="noopener noreferrer"を付与
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "h2", "h3", "h4",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("alt").OnElements("img")
	p.AllowAttrs("src").Matching(imageSource).OnElements("img")

	p.AllowRelativeURLs(true)
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return u.Host != ""
	})

	return &contentSanitizer{
		policy: p,
	}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return strings.TrimSpace(s.policy.Sanitize(rawHTML))
}
