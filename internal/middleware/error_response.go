package middleware

import (
	"fmt"
	"net/http"

	"github.com/hitoshi/blogman/internal/model"
)

// WriteErrorResponse はミドルウェアで打ち切ったリクエストに簡易なテキスト応答を返す。
// ユーザー向けのMessageとActionのみを出力し、原因エラーは含めない。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	fmt.Fprintf(w, "%s\n%s\n", apiErr.Message, apiErr.Action)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "Something went wrong.",
		Category: model.CategoryUpstream,
		Action:   "Please try again later.",
	})
}
