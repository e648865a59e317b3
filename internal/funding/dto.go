package funding

import "github.com/shopspring/decimal"

// FundRequest is the HTTP body for crediting a wallet.
type FundRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Metadata map[string]any  `json:"metadata"`
}

// WithdrawRequest is the HTTP body for debiting a wallet.
type WithdrawRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Metadata map[string]any  `json:"metadata"`
}
