package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"io"
	"net/http"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/internal/repository"
	"github.com/Dhoini/parking-payments/pkg/logger"
	"github.com/Dhoini/parking-payments/pkg/res"
	"github.com/gin-gonic/gin"
)

const (
	VendorNameHeader = "X-Vendor-Name"
	SignatureHeader  = "X-Signature"

	// ContextVendorKey ключ для хранения вендора в контексте gin
	ContextVendorKey = "vendor"

	maxVendorBody = 1 << 20
)

// VendorAuth проверяет подпись запроса вендора: X-Signature содержит hex HMAC-SHA512
// тела запроса на секрете вендора из X-Vendor-Name
func VendorAuth(vendors repository.VendorRepository, log *logger.Logger) gin.HandlerFunc {
	log = log.Named("vendor-auth")
	return func(c *gin.Context) {
		name := c.GetHeader(VendorNameHeader)
		signature, err := hex.DecodeString(c.GetHeader(SignatureHeader))
		if name == "" || err != nil || len(signature) == 0 {
			rejectVendor(c, log, name, "Missing vendor credentials")
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxVendorBody))
		if err != nil {
			rejectVendor(c, log, name, "Failed to read request body")
			return
		}
		// Восстанавливаем тело для обработчика
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		vendor, err := vendors.GetByName(c.Request.Context(), name)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				log.Error("Failed to load vendor %s: %v", name, err)
				res.JsonResponse(c.Writer, res.ErrorResponse{Error: "internal server error", ErrorCode: http.StatusInternalServerError},
					http.StatusInternalServerError)
				c.Abort()
				return
			}
			rejectVendor(c, log, name, "Unknown vendor")
			return
		}

		if !hmac.Equal(signature, Sign(body, vendor.Secret)) {
			rejectVendor(c, log, name, "Invalid signature")
			return
		}

		c.Set(ContextVendorKey, vendor)
		c.Next()
	}
}

// Sign вычисляет HMAC-SHA512 тела на секрете вендора
func Sign(body []byte, secret string) []byte {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// Vendor возвращает вендора, положенного VendorAuth
func Vendor(c *gin.Context) *domain.Vendor {
	v, _ := c.Get(ContextVendorKey)
	vendor, _ := v.(*domain.Vendor)
	return vendor
}

func rejectVendor(c *gin.Context, log *logger.Logger, name, message string) {
	log.Warn("Vendor authentication failed. Vendor: %q, Path: %s, Error: %s", name, c.Request.URL.Path, message)
	res.JsonResponse(c.Writer, res.ErrorResponse{Error: message, ErrorCode: http.StatusUnauthorized}, http.StatusUnauthorized)
	c.Abort()
}
