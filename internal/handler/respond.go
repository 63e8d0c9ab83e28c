package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/koopa0/video-engagement/internal/docstore"
	apperrors "github.com/koopa0/video-engagement/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// maxBodyBytes 請求 body 上限
const maxBodyBytes = 1 << 20

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	h.respondErrorBody(w, r, status, errorBody{Code: code, Message: message})
}

func (h *Handler) respondErrorBody(w http.ResponseWriter, r *http.Request, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Success: false, Error: body}); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to encode error response", "error", err, "code", body.Code)
	}
}

// respondAppError 把服務層錯誤轉成狀態碼
//
//	NOT_FOUND → 404, TRY_AGAIN / VERSION_CONFLICT → 409,
//	INVALID_INPUT → 400, FORBIDDEN → 403, 其他 → 500
func (h *Handler) respondAppError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		h.logger.ErrorContext(r.Context(), "request failed", "error", err)
		h.respondError(w, r, http.StatusInternalServerError, apperrors.ErrCodeInternal, "internal server error")
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Code {
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeTryAgain, apperrors.ErrCodeVersionConflict:
		status = http.StatusConflict
	case apperrors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case apperrors.ErrCodeForbidden:
		status = http.StatusForbidden
	default:
		h.logger.ErrorContext(r.Context(), "request failed", "error", err)
	}

	body := errorBody{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
	if status == http.StatusInternalServerError {
		body = errorBody{Code: apperrors.ErrCodeInternal, Message: "internal server error"}
	}
	h.respondErrorBody(w, r, status, body)
}

// decode 解析並驗證 JSON body
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.respondError(w, r, http.StatusBadRequest, apperrors.ErrCodeInvalidInput, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.respondErrorBody(w, r, http.StatusBadRequest, errorBody{
			Code:    apperrors.ErrCodeInvalidInput,
			Message: "validation failed",
			Details: describeValidation(err),
		})
		return false
	}
	return true
}

// pathID 讀取路徑上的 ObjectID
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(r.PathValue(name))
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, apperrors.ErrCodeInvalidInput, "invalid "+name)
		return primitive.NilObjectID, false
	}
	return id, true
}

// requireUser 需要登入的操作
func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	id, ok := currentUser(r.Context())
	if !ok {
		h.respondError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", headerUserID+" required")
		return primitive.NilObjectID, false
	}
	return id, true
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// 錯誤訊息使用 JSON 欄位名稱
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
		return primitive.IsValidObjectID(fl.Field().String())
	})
	_ = v.RegisterValidation("videotag", func(fl validator.FieldLevel) bool {
		return docstore.Tag(fl.Field().String()).Valid()
	})
	return v
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}
