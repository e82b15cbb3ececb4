package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/senyabanana/auction-service/internal/models"
)

// SendErrorResponse отправляет ошибку в формате JSON.
func SendErrorResponse(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := models.ErrorResponse{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
	}
	if err := json.NewEncoder(w).Encode(errorResponse); err != nil {
		log.Println(err)
	}
}

// SendServiceError отправляет ошибку сервиса, сохраняя её HTTP-код и
// машинный код; любая другая ошибка отдаётся как InternalError.
func SendServiceError(w http.ResponseWriter, err error) {
	var serviceErr *models.ErrorResponse
	if errors.As(err, &serviceErr) {
		SendErrorResponse(w, serviceErr.StatusCode, serviceErr.Code, serviceErr.Message)
		return
	}
	SendErrorResponse(w, http.StatusInternalServerError, models.CodeInternal, "internal server error")
}

// SendJSONResponse отправляет успешный ответ в формате JSON.
func SendJSONResponse(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Println(err)
	}
}

// ParseLimitOffset обрабатывает limit и offset.
func ParseLimitOffset(limitStr, offsetStr string) (int, int, error) {
	var limit, offset int
	var err error

	if limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit <= 0 || limit > 50 {
			return 0, 0, fmt.Errorf("invalid limit parameter, must be a positive integer [0:50]")
		}
	} else {
		limit = 5
	}

	if offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset parameter, must be a non-negative integer")
		}
	} else {
		offset = 0
	}

	return limit, offset, nil
}

// GetPrincipal извлекает аутентифицированного пользователя из заголовков запроса.
func GetPrincipal(r *http.Request) (models.Principal, error) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		return models.Principal{}, fmt.Errorf("missing X-User-Id header")
	}
	role, ok := models.ParseRole(r.Header.Get("X-User-Role"))
	if !ok {
		return models.Principal{}, fmt.Errorf("missing or unknown X-User-Role header")
	}
	return models.Principal{UserID: userID, Role: role}, nil
}
