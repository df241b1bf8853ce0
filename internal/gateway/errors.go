package gateway

import (
	"errors"
	"fmt"

	"github.com/Dhoini/parking-payments/internal/domain"
)

// ErrNoResult means the gateway gave no usable answer (network failure,
// timeout, non-200, invalid JSON). Nothing is known to have happened on
// the gateway side, so the call is safe to retry on the next sweep.
var ErrNoResult = fmt.Errorf("acquiring gateway returned no result: %w", domain.ErrExternalServiceUnavailable)

// IsNoResult reports whether err means "retry later"
func IsNoResult(err error) bool {
	return errors.Is(err, domain.ErrExternalServiceUnavailable)
}

// Category groups gateway error codes into a few user-facing buckets
type Category string

const (
	CategoryNone              Category = ""
	CategoryThreeDSFailed     Category = "3ds_failed"
	CategoryFraudDenied       Category = "fraud_denied"
	CategoryInvalidCard       Category = "invalid_card"
	CategoryInsufficientFunds Category = "insufficient_funds"
	CategoryBankDenied        Category = "bank_denied"
	CategoryGatewayInternal   Category = "gateway_internal"
	CategoryUnknown           Category = "unknown"
)

var categoryMessages = map[Category]string{
	CategoryThreeDSFailed:     "Не пройдена проверка 3-D Secure",
	CategoryFraudDenied:       "Операция отклонена системой фрод-мониторинга",
	CategoryInvalidCard:       "Проверьте реквизиты карты или используйте другую карту",
	CategoryInsufficientFunds: "Недостаточно средств на карте",
	CategoryBankDenied:        "Операция отклонена банком, выпустившим карту",
	CategoryGatewayInternal:   "Платёжный сервис временно недоступен, повторите попытку позже",
	CategoryUnknown:           "Не удалось провести оплату",
}

// UserMessage is the localized text shown to the paying client
func (c Category) UserMessage() string {
	if msg, ok := categoryMessages[c]; ok {
		return msg
	}
	return ""
}

// errorCategories is the fixed code -> category lookup table
var errorCategories = map[string]Category{
	// 3-D Secure
	"101":  CategoryThreeDSFailed,
	"1013": CategoryThreeDSFailed,
	"3001": CategoryThreeDSFailed,
	"3002": CategoryThreeDSFailed,

	// fraud monitoring
	"102":  CategoryFraudDenied,
	"1034": CategoryFraudDenied,
	"1059": CategoryFraudDenied,
	"1063": CategoryFraudDenied,
	"1089": CategoryFraudDenied,
	"1093": CategoryFraudDenied,

	// card data
	"1001": CategoryInvalidCard,
	"1003": CategoryInvalidCard,
	"1014": CategoryInvalidCard,
	"1015": CategoryInvalidCard,
	"1030": CategoryInvalidCard,
	"1033": CategoryInvalidCard,
	"1041": CategoryInvalidCard,
	"1043": CategoryInvalidCard,
	"1054": CategoryInvalidCard,
	"1082": CategoryInvalidCard,
	"1091": CategoryInvalidCard,

	// balance and limits
	"116":  CategoryInsufficientFunds,
	"1051": CategoryInsufficientFunds,
	"1061": CategoryInsufficientFunds,
	"1065": CategoryInsufficientFunds,

	// issuer decline
	"1004": CategoryBankDenied,
	"1005": CategoryBankDenied,
	"1007": CategoryBankDenied,
	"1012": CategoryBankDenied,
	"1019": CategoryBankDenied,
	"1057": CategoryBankDenied,
	"1058": CategoryBankDenied,
	"1062": CategoryBankDenied,
	"1075": CategoryBankDenied,
	"1076": CategoryBankDenied,

	// gateway side
	"3":    CategoryGatewayInternal,
	"9":    CategoryGatewayInternal,
	"99":   CategoryGatewayInternal,
	"103":  CategoryGatewayInternal,
	"119":  CategoryGatewayInternal,
	"1006": CategoryGatewayInternal,
	"1099": CategoryGatewayInternal,
	"9999": CategoryGatewayInternal,
}

// ErrorCategory maps a gateway error code onto its category
func ErrorCategory(code string) Category {
	if code == "" || code == "0" {
		return CategoryNone
	}
	if cat, ok := errorCategories[code]; ok {
		return cat
	}
	return CategoryUnknown
}
