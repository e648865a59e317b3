package funding

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/middleware"
)

// Handler exposes HTTP endpoints for funding flows.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Fund credits a wallet from an external source.
func (h *Handler) Fund(c *fiber.Ctx) error {
	var req FundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	w, err := h.service.Fund(c.UserContext(), FundInput{
		WalletID:       c.Params("walletId"),
		Amount:         req.Amount,
		IdempotencyKey: middleware.IdempotencyKey(c),
		Metadata:       req.Metadata,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(w)
}

// Withdraw debits a wallet towards an external sink.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req WithdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	w, err := h.service.Withdraw(c.UserContext(), WithdrawInput{
		WalletID:       c.Params("walletId"),
		Amount:         req.Amount,
		IdempotencyKey: middleware.IdempotencyKey(c),
		Metadata:       req.Metadata,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(w)
}

func mapError(err error) error {
	if errors.Is(err, ErrAuthorizationDeclined) {
		return fiber.NewError(http.StatusPaymentRequired, err.Error())
	}
	return err
}
