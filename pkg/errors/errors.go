// Package errors 提供應用程式錯誤處理
//
// 錯誤分類（對應請求邊界的處理方式）：
//
//	NOT_FOUND                  實體不存在，客戶端錯誤，不重試
//	TRY_AGAIN                  併發寫入衝突，請客戶端稍後重試
//	VERSION_CONFLICT           樂觀鎖版本衝突（內部使用，對外轉為 TRY_AGAIN）
//	UNRECOVERED_INCONSISTENCY  補償失敗，只寫入維運日誌，不回傳給使用者
package errors

import (
	"errors"
	"fmt"
)

// 定義錯誤碼
const (
	// ErrCodeNotFound 資源未找到
	ErrCodeNotFound = "NOT_FOUND"
	// ErrCodeTryAgain 暫時性失敗，客戶端可重試
	ErrCodeTryAgain = "TRY_AGAIN"
	// ErrCodeVersionConflict 樂觀鎖版本衝突
	ErrCodeVersionConflict = "VERSION_CONFLICT"
	// ErrCodeInvalidInput 無效輸入
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeForbidden 使用者不符
	ErrCodeForbidden = "FORBIDDEN"
	// ErrCodeUnrecoveredInconsistency 計數器補償失敗
	ErrCodeUnrecoveredInconsistency = "UNRECOVERED_INCONSISTENCY"
	// ErrCodeInternal 內部錯誤
	ErrCodeInternal = "INTERNAL_ERROR"
)

// AppError 應用程式錯誤
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error 實現 error 介面
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 實現 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 實現 errors.Is
//
// 只比較錯誤碼，讓 errors.Is(err, ErrTryAgain) 對任何 TRY_AGAIN 成立。
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 創建新的應用程式錯誤
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包裝錯誤
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails 添加詳細資訊（回傳副本，避免修改預定義錯誤）
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// 預定義錯誤
var (
	// ErrVideoNotFound 影片不存在或尚未可用
	ErrVideoNotFound = New(ErrCodeNotFound, "no such video object")

	// ErrCommentNotFound 留言不存在
	ErrCommentNotFound = New(ErrCodeNotFound, "no such comment object")

	// ErrUserNotFound 使用者不存在
	ErrUserNotFound = New(ErrCodeNotFound, "no such user object")

	// ErrClipNotFound 暫存影片不存在
	ErrClipNotFound = New(ErrCodeNotFound, "no such clip object")

	// ErrTryAgain 併發衝突
	ErrTryAgain = New(ErrCodeTryAgain, "please try again later")

	// ErrUserMismatch 不是擁有者
	ErrUserMismatch = New(ErrCodeForbidden, "user mismatch")

	// ErrInvalidInput 無效輸入
	ErrInvalidInput = New(ErrCodeInvalidInput, "invalid input")

	// ErrUnrecoveredInconsistency 補償迴圈放棄
	ErrUnrecoveredInconsistency = New(ErrCodeUnrecoveredInconsistency, "counter left inconsistent")
)

// Code 取得錯誤碼；非 AppError 一律視為內部錯誤
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsNotFound 檢查是否為未找到錯誤
func IsNotFound(err error) bool {
	return Code(err) == ErrCodeNotFound
}

// IsTryAgain 檢查是否為可重試錯誤
func IsTryAgain(err error) bool {
	code := Code(err)
	return code == ErrCodeTryAgain || code == ErrCodeVersionConflict
}

// IsForbidden 檢查是否為使用者不符
func IsForbidden(err error) bool {
	return Code(err) == ErrCodeForbidden
}

// IsInvalidInput 檢查是否為無效輸入
func IsInvalidInput(err error) bool {
	return Code(err) == ErrCodeInvalidInput
}
