// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrorCategory はエラーの分類を表す。
// ハンドラー境界でフラッシュメッセージとリダイレクト先を決定するために使う。
type ErrorCategory string

const (
	// CategoryValidation は入力値の不備（必須項目の欠落など）。
	CategoryValidation ErrorCategory = "validation"
	// CategoryUnauthenticated はセッションが存在しないことを表す。
	CategoryUnauthenticated ErrorCategory = "unauthenticated"
	// CategoryForbidden はセッションはあるが所有権またはロールが不足していることを表す。
	CategoryForbidden ErrorCategory = "forbidden"
	// CategoryNotFound は指定されたID/スラッグに該当するリソースがないことを表す。
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryUpstream はIdPやドキュメントストアの呼び出し失敗を表す。
	CategoryUpstream ErrorCategory = "upstream"
)

// APIError は統一エラーフォーマットを表す。
// Messageはそのままユーザーに表示してよい文言のみを持つ。
// 内部エラーの詳細はErrに保持し、ログにのみ出力する。
type APIError struct {
	Code     string        // エラーコード
	Message  string        // ユーザー向けメッセージ
	Category ErrorCategory // エラー分類
	Action   string        // ユーザー向け対処方法
	Err      error         // 原因（ユーザーには表示しない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodePostNotFound       = "POST_NOT_FOUND"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken         = "EMAIL_TAKEN"
	ErrCodeInvalidUpload      = "INVALID_UPLOAD"
	ErrCodeUpstreamFailure    = "UPSTREAM_FAILURE"
)

// CategoryOf はエラーの分類を返す。
// APIErrorでないエラーはすべて上流障害として扱う。
func CategoryOf(err error) ErrorCategory {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category
	}
	return CategoryUpstream
}

// IsCategory はエラーが指定された分類に属するかを判定する。
func IsCategory(err error, category ErrorCategory) bool {
	return err != nil && CategoryOf(err) == category
}

// NewValidationError は必須項目の欠落などの入力エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: CategoryValidation,
		Action:   "Please correct the form and try again.",
	}
}

// NewUnauthenticatedError は未ログインエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "Please log in to continue.",
		Category: CategoryUnauthenticated,
		Action:   "Log in and try again.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "You do not have permission to perform this action.",
		Category: CategoryForbidden,
		Action:   "Only the author or an administrator can do this.",
	}
}

// NewAdminRequiredError は管理者専用ページへのアクセス拒否エラーを生成する。
func NewAdminRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "You do not have permission to access this page.",
		Category: CategoryForbidden,
		Action:   "Ask an administrator for access.",
	}
}

// NewPostNotFoundError は投稿未検出エラーを生成する。
func NewPostNotFoundError(idOrSlug string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  "Post not found.",
		Category: CategoryNotFound,
		Action:   "Check the link and try again.",
		Err:      fmt.Errorf("post %q does not exist", idOrSlug),
	}
}

// NewUserNotFoundError はユーザー未検出エラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: CategoryNotFound,
		Action:   "Check the user ID and try again.",
		Err:      fmt.Errorf("user %q does not exist", userID),
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メールアドレスとパスワードのどちらが誤っているかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password.",
		Category: CategoryValidation,
		Action:   "Check your email and password and try again.",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "This email address is already registered.",
		Category: CategoryValidation,
		Action:   "Use a different email address or log in.",
	}
}

// NewInvalidUploadError はアップロードファイルの拒否エラーを生成する。
func NewInvalidUploadError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidUpload,
		Message:  reason,
		Category: CategoryValidation,
		Action:   "Upload a png, jpg, jpeg or gif image up to 16 MiB.",
	}
}

// NewUpstreamError はIdPやストアの障害を汎用メッセージでラップする。
// 原因のエラー文言はユーザーに表示しない。
func NewUpstreamError(message string, err error) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailure,
		Message:  message,
		Category: CategoryUpstream,
		Action:   "Please try again later.",
		Err:      err,
	}
}
