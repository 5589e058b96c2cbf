// Package upload は投稿画像のアップロード受付と保存先（ローカル/Cloudinary）を提供する。
package upload

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// 受け付ける拡張子（小文字、ドットなし）
var allowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SanitizeFilename はクライアントが送ったファイル名を保存可能な形に正規化する。
// 使える文字がなくなった場合は空文字を返す。
func SanitizeFilename(name string) string {
	// 1. NFKD分解して非ASCII文字を落とす
	var b strings.Builder
	for _, r := range norm.NFKD.String(name) {
		if r < 0x80 {
			b.WriteRune(r)
		}
	}
	s := b.String()

	// 2. パス区切りは空白として扱う
	s = strings.NewReplacer("/", " ", `\`, " ").Replace(s)

	// 3. 空白の連続を"_"1つにまとめる
	s = strings.Join(strings.Fields(s), "_")

	// 4. 許可外の文字を除去し、前後の"."と"_"を落とす
	s = unsafeChars.ReplaceAllString(s, "")
	return strings.Trim(s, "._")
}

// extensionOf は小文字化した拡張子をドットなしで返す。
func extensionOf(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// AllowedFile はファイル名の拡張子が許可リストに含まれるかを判定する。
func AllowedFile(name string) bool {
	return allowedExtensions[extensionOf(name)]
}
