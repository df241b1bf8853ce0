package req

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Dhoini/parking-payments/pkg/res"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode декодирует JSON из io.Reader в структуру типа T.
func Decode[T any](body io.Reader) (T, error) {
	var payload T
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return payload, err
	}
	return payload, nil
}

// IsValid валидирует структуру типа T.
func IsValid[T any](payload T) error {
	return validate.Struct(payload)
}

// HandleBody декодирует и валидирует тело запроса. При ошибке ответ уже отправлен.
func HandleBody[T any](w http.ResponseWriter, r *http.Request, log *zap.Logger) (*T, error) {
	body, err := Decode[T](r.Body)
	if err != nil {
		res.JsonErrorResponse(w, res.ErrorResponse{Error: "Некорректный формат запроса", Details: err.Error()}, http.StatusUnprocessableEntity, log)
		return nil, err
	}

	if err := IsValid(body); err != nil {
		res.JsonErrorResponse(w, res.ErrorResponse{Error: "Некорректные данные запроса", Details: fieldErrors(err)}, http.StatusUnprocessableEntity, log)
		return nil, err
	}
	return &body, nil
}

// fieldErrors переводит ошибки валидатора в пары поле-правило
func fieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Namespace()] = fe.Tag()
	}
	return out
}
