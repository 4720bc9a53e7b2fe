package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/cresco-money/cresco/internal/config"
	"github.com/cresco-money/cresco/internal/logging"
	"github.com/cresco-money/cresco/internal/mobilemoney"
	"github.com/cresco-money/cresco/internal/stellar"
)

const testSecret = "routes-test-secret"

func setupTestApp(t *testing.T) (*fiber.App, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := config.Config{
		AppEnv:            "development",
		SessionSecret:     testSecret,
		NetworkPassphrase: "Test SDF Network ; September 2015",
		IdempotencyTTL:    time.Minute,
	}

	app := fiber.New()
	err = Setup(app, Deps{
		Cfg:        cfg,
		Cache:      cache,
		Logger:     logging.Discard(),
		Gateway:    stellar.NewInMemory(),
		Aggregator: mobilemoney.StaticAggregator{},
	})
	if err != nil {
		t.Fatalf("setup routes: %v", err)
	}

	cleanup := func() {
		cache.Close()
		mr.Close()
	}
	return app, cleanup
}

func sessionToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, app *fiber.App, method, path, token, idemKey, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("app.Test %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var decoded map[string]any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &decoded); err != nil {
			t.Fatalf("decode body %q: %v", payload, err)
		}
	}
	return resp.StatusCode, decoded
}

func TestRoutesRejectMissingSession(t *testing.T) {
	app, cleanup := setupTestApp(t)
	defer cleanup()

	status, _ := doJSON(t, app, fiber.MethodGet, "/api/v1/wallets/me/balance", "", "", "")
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected %d got %d", fiber.StatusUnauthorized, status)
	}
}

func TestProvisionThenBalance(t *testing.T) {
	app, cleanup := setupTestApp(t)
	defer cleanup()

	token := sessionToken(t, "user-alice")
	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/wallets", token, "prov-1",
		`{"mobile_number":"+242061234567"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("provision: expected %d got %d (%v)", fiber.StatusCreated, status, body)
	}
	if body["link_status"] != "active" {
		t.Fatalf("expected active link, got %v", body["link_status"])
	}
	if body["native_balance"] != "10000.0000000" {
		t.Fatalf("expected faucet balance, got %v", body["native_balance"])
	}
	if body["public_key"] == "" {
		t.Fatalf("missing public key in %v", body)
	}

	status, body = doJSON(t, app, fiber.MethodGet, "/api/v1/wallets/me/balance", token, "", "")
	if status != fiber.StatusOK {
		t.Fatalf("balance: expected %d got %d (%v)", fiber.StatusOK, status, body)
	}
	if body["balance"] != "10000.00" {
		t.Fatalf("expected 10000.00 got %v", body["balance"])
	}
	if body["source"] != "ledger" {
		t.Fatalf("expected ledger source got %v", body["source"])
	}
}

func TestPaymentBetweenProvisionedWallets(t *testing.T) {
	app, cleanup := setupTestApp(t)
	defer cleanup()

	alice := sessionToken(t, "user-alice")
	bob := sessionToken(t, "user-bob")

	status, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/wallets", alice, "prov-a",
		`{"mobile_number":"+242061234567"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("provision alice: got %d", status)
	}
	status, bobWallet := doJSON(t, app, fiber.MethodPost, "/api/v1/wallets", bob, "prov-b",
		`{"mobile_number":"+242069876543"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("provision bob: got %d", status)
	}

	destination, _ := bobWallet["public_key"].(string)
	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/payments", alice, "pay-1",
		`{"destination":"`+destination+`","amount":"12.50"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("payment: expected %d got %d (%v)", fiber.StatusCreated, status, body)
	}
	if body["hash"] == "" {
		t.Fatalf("missing transaction hash in %v", body)
	}
}

func TestPaymentRejectsBadDestination(t *testing.T) {
	app, cleanup := setupTestApp(t)
	defer cleanup()

	token := sessionToken(t, "user-alice")
	status, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/wallets", token, "prov-1",
		`{"mobile_number":"+242061234567"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("provision: got %d", status)
	}

	status, _ = doJSON(t, app, fiber.MethodPost, "/api/v1/payments", token, "pay-bad",
		`{"destination":"not-a-stellar-address","amount":"1"}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}
}

func TestMobileMoneyPayment(t *testing.T) {
	app, cleanup := setupTestApp(t)
	defer cleanup()

	token := sessionToken(t, "user-alice")
	status, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/wallets", token, "prov-1",
		`{"mobile_number":"+242061234567"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("provision: got %d", status)
	}

	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/mobile-money/payments", token, "mm-1",
		`{"recipient_id":"user-bob","recipient_number":"+242069876543","amount":"25"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("mobile money payment: expected %d got %d (%v)", fiber.StatusCreated, status, body)
	}
	if body["status"] != "COMPLETED" {
		t.Fatalf("expected COMPLETED got %v", body["status"])
	}
}

func TestMobileMoneyLinkRetry(t *testing.T) {
	app, cleanup := setupTestApp(t)
	defer cleanup()

	token := sessionToken(t, "user-carol")
	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/mobile-money/link", token, "link-1",
		`{"mobile_number":"+242055512345"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("link: expected %d got %d (%v)", fiber.StatusCreated, status, body)
	}
	if body["status"] != "active" {
		t.Fatalf("expected active got %v", body["status"])
	}
}
