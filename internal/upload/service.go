package upload

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/hitoshi/blogman/internal/metrics"
	"github.com/hitoshi/blogman/internal/model"
)

// DefaultMaxSize はアップロードサイズの上限（16MiB）。
const DefaultMaxSize int64 = 16 << 20

// 拒否理由（メトリクスのラベル値）
const (
	ReasonEmptyName   = "empty_filename"
	ReasonExtension   = "extension"
	ReasonTooLarge    = "too_large"
	ReasonContentType = "content_type"
)

// 中身として受け付けるMIMEタイプ
var allowedMIMEs = []string{"image/png", "image/jpeg", "image/gif"}

// Service はアップロードの検証と保存を行う。
type Service struct {
	sink    Sink
	maxSize int64
	metrics metrics.MetricsCollector
	newID   func() string
}

// NewService はServiceを生成する。maxSizeが0以下の場合はDefaultMaxSizeを使う。
func NewService(sink Sink, maxSize int64, collector metrics.MetricsCollector) *Service {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		sink:    sink,
		maxSize: maxSize,
		metrics: collector,
		newID:   uuid.NewString,
	}
}

// MaxSize は受け付ける最大バイト数を返す。
func (s *Service) MaxSize() int64 {
	return s.maxSize
}

// Accept はアップロードされたファイルを検証して保存し、参照URLを返す。
// 拒否した場合はバリデーションエラー、保存先の障害は上流エラーを返す。
func (s *Service) Accept(ctx context.Context, file io.ReadSeeker, header *multipart.FileHeader) (string, error) {
	// 1. ファイル名の正規化
	safe := SanitizeFilename(header.Filename)
	if safe == "" {
		return "", s.reject(ReasonEmptyName, "No selected file.")
	}

	// 2. 拡張子の確認
	if !AllowedFile(safe) {
		return "", s.reject(ReasonExtension, "File type not allowed.")
	}

	// 3. サイズの確認
	if header.Size > s.maxSize {
		return "", s.reject(ReasonTooLarge, "File is too large.")
	}

	// 4. 中身のスニッフィング
	detected, err := mimetype.DetectReader(file)
	if err != nil {
		return "", model.NewUpstreamError("Image upload failed.", fmt.Errorf("failed to read upload: %w", err))
	}
	if !mimetype.EqualsAny(detected.String(), allowedMIMEs...) {
		return "", s.reject(ReasonContentType, "File content is not a supported image.")
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", model.NewUpstreamError("Image upload failed.", fmt.Errorf("failed to rewind upload: %w", err))
	}

	// 5. 保存（名前はUUIDで一意にする）
	url, err := s.sink.Save(ctx, s.newID()+"_"+safe, io.LimitReader(file, s.maxSize))
	if err != nil {
		return "", model.NewUpstreamError("Image upload failed.", err)
	}
	return url, nil
}

func (s *Service) reject(reason, message string) error {
	s.metrics.RecordUploadRejected(reason)
	return model.NewInvalidUploadError(message)
}
