package res

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ErrorResponse представляет формат JSON-ответа для ошибок.
type ErrorResponse struct {
	Error     string `json:"error"`                // Сообщение об ошибке (для пользователя)
	ErrorCode int    `json:"error_code,omitempty"` // HTTP-код ошибки
	Reason    string `json:"reason,omitempty"`     // Категория отказа эквайринга
	Details   any    `json:"details,omitempty"`    // Детали ошибки (например, ошибки валидации)
}

// JsonResponse отправляет JSON-ответ с заданным статусом.
func JsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// JsonErrorResponse отправляет JSON ответ ошибки. Серверные ошибки пишутся в лог как Error,
// клиентские как Warn.
func JsonErrorResponse(w http.ResponseWriter, errResponse ErrorResponse, status int, log *zap.Logger) {
	if errResponse.ErrorCode == 0 {
		errResponse.ErrorCode = status
	}
	JsonResponse(w, errResponse, status)
	if status >= http.StatusInternalServerError {
		log.Error("Error response", zap.Int("status", status), zap.Any("error", errResponse))
		return
	}
	log.Warn("Error response", zap.Int("status", status), zap.Any("error", errResponse))
}
