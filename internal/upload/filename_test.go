package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"そのまま", "photo.png", "photo.png"},
		{"空白はアンダースコア", "my holiday  photo.jpg", "my_holiday_photo.jpg"},
		{"パストラバーサル", "../../etc/passwd", "etc_passwd"},
		{"バックスラッシュ", `C:\Users\me\cat.gif`, "C_Users_me_cat.gif"},
		{"アクセント記号を分解", "café.jpeg", "cafe.jpeg"},
		{"非ASCIIのみ", "写真.png", "png"},
		{"先頭のドット", ".hidden.png", "hidden.png"},
		{"記号を除去", "a<b>c?.png", "abc.png"},
		{"空になる", "...", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestAllowedFile(t *testing.T) {
	for _, name := range []string{"a.png", "a.JPG", "a.jpeg", "a.gif"} {
		assert.True(t, AllowedFile(name), name)
	}
	for _, name := range []string{"a.svg", "a.exe", "png", "a.png.html", ""} {
		assert.False(t, AllowedFile(name), name)
	}
}
