package wallet

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Currency       string          `json:"currency"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

// Create provisions a wallet.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, err := h.service.Create(c.UserContext(), CreateInput{Currency: req.Currency, InitialBalance: req.InitialBalance})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(w)
}

// Details returns the wallet with its most recent transactions.
func (h *Handler) Details(c *fiber.Ctx) error {
	details, err := h.service.Details(c.UserContext(), c.Params("walletId"), DetailsQuery{
		Limit:  c.QueryInt("limit", ledger.DefaultLimit),
		Offset: c.QueryInt("offset", 0),
		Order:  ledger.SortOrder(c.Query("order", string(ledger.OrderDesc))),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(details)
}

// Transaction returns a single ledger entry by reference.
func (h *Handler) Transaction(c *fiber.Ctx) error {
	tx, err := h.service.Transaction(c.UserContext(), c.Params("reference"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(tx)
}
