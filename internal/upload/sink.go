package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Sink はアップロード済みファイルの保存先。
// Saveは保存したファイルを参照するURLを返す。
type Sink interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// ErrExists は同名ファイルが既に存在することを表す。
var ErrExists = errors.New("upload already exists")

// LocalSink はローカルディレクトリに保存し、/uploads/ 配下で配信する。
type LocalSink struct {
	dir    string
	prefix string
}

// LocalURLPrefix はLocalSinkが返すURLの接頭辞。
const LocalURLPrefix = "/uploads/"

// NewLocalSink はLocalSinkを生成する。ディレクトリがなければ作成する。
func NewLocalSink(dir string) (*LocalSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalSink{dir: dir, prefix: LocalURLPrefix}, nil
}

// Save はファイルを書き込む。既存ファイルは上書きしない。
func (s *LocalSink) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, filepath.Base(name))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return "", ErrExists
	}
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close upload file: %w", err)
	}
	return s.prefix + filepath.Base(name), nil
}

// Handler はアップロード済みファイルを配信するハンドラーを返す。
// ディレクトリ一覧は返さない。
func (s *LocalSink) Handler() http.Handler {
	files := http.FileServer(http.Dir(s.dir))
	return http.StripPrefix(strings.TrimSuffix(s.prefix, "/"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	}))
}

// CloudinarySink はCloudinaryに保存し、配信用のHTTPS URLを返す。
type CloudinarySink struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewCloudinarySink はCLOUDINARY_URL形式の接続文字列からCloudinarySinkを生成する。
func NewCloudinarySink(cloudinaryURL, folder string) (*CloudinarySink, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("cloudinary configuration error: %w", err)
	}
	return &CloudinarySink{cld: cld, folder: folder}, nil
}

// Save はCloudinaryにアップロードする。public IDは拡張子を除いたファイル名。
func (s *CloudinarySink) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	params := uploader.UploadParams{
		Folder:   s.folder,
		PublicID: strings.TrimSuffix(name, filepath.Ext(name)),
	}

	result, err := s.cld.Upload.Upload(ctx, r, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload to cloudinary: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("cloudinary rejected upload: %s", result.Error.Message)
	}
	return result.SecureURL, nil
}

// compile-time interface check
var (
	_ Sink = (*LocalSink)(nil)
	_ Sink = (*CloudinarySink)(nil)
)
