package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet_ledger/internal/config"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/logging"
	"github.com/congo-pay/wallet_ledger/internal/middleware"
	"github.com/congo-pay/wallet_ledger/internal/payments"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	logger := logging.Discard()
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logger)})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := config.Config{
		AppEnv:          "test",
		IdempotencyTTL:  0,
		MaxAmount:       decimal.NewFromInt(1_000_000),
		MaxAttempts:     3,
		ReferencePrefix: "TXN",
	}
	require.NoError(t, Setup(ctx, app, Deps{Cfg: cfg, Logger: logger, Registry: prometheus.NewRegistry()}))
	return app
}

func do(t *testing.T, app *fiber.App, method, path, key, body string, out any) int {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func createWallet(t *testing.T, app *fiber.App, key, balance string) wallet.Wallet {
	t.Helper()
	var w wallet.Wallet
	status := do(t, app, fiber.MethodPost, "/api/v1/wallets", key, `{"currency":"USD","initial_balance":"`+balance+`"}`, &w)
	require.Equal(t, fiber.StatusCreated, status)
	return w
}

func TestSetupRequiresBackendsOutsideDev(t *testing.T) {
	app := fiber.New()
	err := Setup(context.Background(), app, Deps{Cfg: config.Config{AppEnv: "production"}, Logger: logging.Discard()})
	assert.ErrorContains(t, err, "database is required")
}

func TestTransferFlowOverHTTP(t *testing.T) {
	app := newTestApp(t)
	source := createWallet(t, app, "create-a", "100.00")
	target := createWallet(t, app, "create-b", "0")

	body := `{"source_wallet_id":"` + source.ID + `","target_wallet_id":"` + target.ID + `","amount":"30.00"}`
	var first payments.TransferResult
	require.Equal(t, fiber.StatusCreated, do(t, app, fiber.MethodPost, "/api/v1/transfers", "transfer-1", body, &first))
	assert.True(t, first.SourceWallet.Balance.Equal(decimal.NewFromInt(70)))
	assert.True(t, first.TargetWallet.Balance.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, ledger.TypeTransfer, first.Transaction.Type)

	var replay payments.TransferResult
	require.Equal(t, fiber.StatusCreated, do(t, app, fiber.MethodPost, "/api/v1/transfers", "transfer-1", body, &replay))
	assert.Equal(t, first.Transaction.Reference, replay.Transaction.Reference)

	var details wallet.Details
	require.Equal(t, fiber.StatusOK, do(t, app, fiber.MethodGet, "/api/v1/wallets/"+source.ID, "", "", &details))
	assert.True(t, details.Wallet.Balance.Equal(decimal.NewFromInt(70)), "replay must not move funds twice")
	assert.Equal(t, 1, details.TotalCount)

	var tx ledger.Transaction
	require.Equal(t, fiber.StatusOK, do(t, app, fiber.MethodGet, "/api/v1/transactions/"+first.Transaction.Reference, "", "", &tx))
	assert.Equal(t, first.Transaction.ID, tx.ID)
}

func TestFundAndWithdrawOverHTTP(t *testing.T) {
	app := newTestApp(t)
	w := createWallet(t, app, "create", "0")

	var funded wallet.Wallet
	require.Equal(t, fiber.StatusOK, do(t, app, fiber.MethodPost, "/api/v1/wallets/"+w.ID+"/fund", "fund-1", `{"amount":"50.25"}`, &funded))
	assert.True(t, funded.Balance.Equal(decimal.RequireFromString("50.25")))
	assert.Equal(t, int64(2), funded.Version)

	var withdrawn wallet.Wallet
	require.Equal(t, fiber.StatusOK, do(t, app, fiber.MethodPost, "/api/v1/wallets/"+w.ID+"/withdraw", "withdraw-1", `{"amount":"0.25"}`, &withdrawn))
	assert.True(t, withdrawn.Balance.Equal(decimal.NewFromInt(50)))
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func TestErrorsOverHTTP(t *testing.T) {
	app := newTestApp(t)
	source := createWallet(t, app, "create-a", "10")
	target := createWallet(t, app, "create-b", "0")

	tests := []struct {
		name   string
		method string
		path   string
		key    string
		body   string
		status int
		code   string
	}{
		{"missing key", fiber.MethodPost, "/api/v1/transfers", "", `{}`, fiber.StatusBadRequest, "Bad Request"},
		{"unknown wallet", fiber.MethodGet, "/api/v1/wallets/nope", "", "", fiber.StatusNotFound, "NOT_FOUND"},
		{"unknown reference", fiber.MethodGet, "/api/v1/transactions/TXN-nope", "", "", fiber.StatusNotFound, "NOT_FOUND"},
		{"same wallet", fiber.MethodPost, "/api/v1/transfers", "k1",
			`{"source_wallet_id":"` + source.ID + `","target_wallet_id":"` + source.ID + `","amount":"1"}`,
			fiber.StatusBadRequest, "SAME_WALLET_TRANSFER"},
		{"insufficient", fiber.MethodPost, "/api/v1/transfers", "k2",
			`{"source_wallet_id":"` + source.ID + `","target_wallet_id":"` + target.ID + `","amount":"11"}`,
			fiber.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE"},
		{"invalid amount", fiber.MethodPost, "/api/v1/wallets/" + source.ID + "/fund", "k3", `{"amount":"0.001"}`,
			fiber.StatusBadRequest, "INVALID_AMOUNT"},
		{"invalid currency", fiber.MethodPost, "/api/v1/wallets", "k4", `{"currency":"XYZ"}`,
			fiber.StatusBadRequest, "INVALID_CURRENCY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env errorEnvelope
			status := do(t, app, tt.method, tt.path, tt.key, tt.body, &env)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestKeyReuseWithDifferentBodyIsRejected(t *testing.T) {
	app := newTestApp(t)
	source := createWallet(t, app, "create-a", "10")
	target := createWallet(t, app, "create-b", "0")

	body := func(amount string) string {
		return `{"source_wallet_id":"` + source.ID + `","target_wallet_id":"` + target.ID + `","amount":"` + amount + `"}`
	}
	require.Equal(t, fiber.StatusCreated, do(t, app, fiber.MethodPost, "/api/v1/transfers", "reuse", body("1"), nil))

	var env errorEnvelope
	assert.Equal(t, fiber.StatusUnprocessableEntity, do(t, app, fiber.MethodPost, "/api/v1/transfers", "reuse", body("2"), &env))
	assert.Equal(t, "DUPLICATE_IDEMPOTENT_REQUEST", env.Error.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t)

	var health struct {
		Status map[string]string `json:"status"`
	}
	require.Equal(t, fiber.StatusOK, do(t, app, fiber.MethodGet, "/healthz", "", "", &health))
	assert.Equal(t, statusDisabled, health.Status["postgres"])

	createWallet(t, app, "create", "1")

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "http_requests_total")
}
