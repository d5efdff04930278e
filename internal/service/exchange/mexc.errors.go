package exchange

import (
	"net/http"
	"strings"

	"github.com/krobus00/futures-signal-executor/internal/entity"
)

const (
	MeaningAuthentication      = "AUTHENTICATION_FAILED"
	MeaningRequestExpired      = "REQUEST_EXPIRED"
	MeaningRateLimited         = "RATE_LIMITED"
	MeaningInvalidParameter    = "INVALID_PARAMETER"
	MeaningInvalidSymbol       = "INVALID_SYMBOL"
	MeaningInvalidQuantity     = "INVALID_QUANTITY"
	MeaningInvalidLeverage     = "INVALID_LEVERAGE"
	MeaningInsufficientBalance = "INSUFFICIENT_BALANCE"
	MeaningPositionNotFound    = "POSITION_NOT_FOUND"
	MeaningExchangeBusy        = "EXCHANGE_BUSY"
)

// mexcErrorCodes maps contract API codes to a stable meaning. Unknown codes pass through with
// the exchange message only.
var mexcErrorCodes = map[int]string{
	401:  MeaningAuthentication,
	402:  MeaningAuthentication,
	406:  MeaningAuthentication,
	500:  MeaningExchangeBusy,
	501:  MeaningExchangeBusy,
	510:  MeaningRateLimited,
	513:  MeaningRequestExpired,
	600:  MeaningInvalidParameter,
	602:  MeaningAuthentication,
	1001: MeaningInvalidSymbol,
	1002: MeaningInvalidSymbol,
	1004: MeaningInvalidQuantity,
	2005: MeaningInsufficientBalance,
	2006: MeaningInvalidLeverage,
	2008: MeaningInvalidQuantity,
	2009: MeaningPositionNotFound,
	2011: MeaningInvalidQuantity,
	2015: MeaningInvalidQuantity,
	2018: MeaningInsufficientBalance,
	2023: MeaningInvalidLeverage,
	2024: MeaningInvalidLeverage,
	2029: MeaningInvalidQuantity,
}

func newMEXCExchangeError(httpStatus, code int, message string) *entity.ExchangeError {
	message = strings.TrimSpace(message)
	if message == "" {
		message = http.StatusText(httpStatus)
	}
	if message == "" {
		message = "unknown error"
	}

	return &entity.ExchangeError{
		HTTPStatus: httpStatus,
		Code:       code,
		Meaning:    mexcErrorCodes[code],
		Message:    message,
	}
}
