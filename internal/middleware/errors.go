package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/idempotency"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

var statusByCode = map[ledger.Code]int{
	ledger.CodeNotFound:             http.StatusNotFound,
	ledger.CodeAlreadyExists:        http.StatusConflict,
	ledger.CodeInvalidAmount:        http.StatusBadRequest,
	ledger.CodeInvalidCurrency:      http.StatusBadRequest,
	ledger.CodeInvalidTransaction:   http.StatusBadRequest,
	ledger.CodeSameWalletTransfer:   http.StatusBadRequest,
	ledger.CodeCurrencyMismatch:     http.StatusUnprocessableEntity,
	ledger.CodeInsufficientBalance:  http.StatusUnprocessableEntity,
	ledger.CodeDuplicateIdempotency: http.StatusUnprocessableEntity,
	ledger.CodeConcurrencyConflict:  http.StatusConflict,
	ledger.CodeRollbackFailed:       http.StatusInternalServerError,
}

type errorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// ErrorHandler renders ledger errors with their stable code and metadata and
// maps them to HTTP statuses. Unknown errors become opaque 500s.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		requestID, _ := c.Locals(requestIDHeader).(string)
		body := errorBody{RequestID: requestID}
		status := http.StatusInternalServerError

		var (
			coded    ledger.Coded
			fiberErr *fiber.Error
		)
		switch {
		case errors.As(err, &coded):
			body.Code = string(coded.ErrorCode())
			body.Message = coded.Error()
			body.Details = coded.Metadata()
			if s, ok := statusByCode[coded.ErrorCode()]; ok {
				status = s
			}
			if ledger.IsCritical(err) {
				logger.Error("critical ledger failure", slog.String("request_id", requestID), slog.Any("error", err))
			}
		case errors.Is(err, idempotency.ErrMissingKey):
			status = http.StatusBadRequest
			body.Code = "IDEMPOTENCY_KEY_REQUIRED"
			body.Message = err.Error()
		case errors.As(err, &fiberErr):
			status = fiberErr.Code
			body.Code = http.StatusText(fiberErr.Code)
			body.Message = fiberErr.Message
		default:
			logger.Error("unhandled error", slog.String("request_id", requestID), slog.Any("error", err))
			body.Code = "INTERNAL"
			body.Message = "internal server error"
		}

		return c.Status(status).JSON(fiber.Map{"error": body})
	}
}
