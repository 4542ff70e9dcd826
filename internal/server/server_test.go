package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bazaarino/bazaar/internal/config"
	"github.com/bazaarino/bazaar/internal/logging"
	"github.com/bazaarino/bazaar/internal/notification"
	"github.com/bazaarino/bazaar/internal/routes"
)

type inbox struct {
	mu    sync.Mutex
	codes map[string]string
}

var sixDigits = regexp.MustCompile(`\d{6}`)

func (i *inbox) Send(_ context.Context, m notification.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.codes[m.Destination] = sixDigits.FindString(m.Body)
	return nil
}

func (i *inbox) code(phone string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.codes[phone]
}

func testConfig() config.Config {
	return config.Config{
		AppName:               "bazaar-test",
		Env:                   "test",
		AccessSecret:          "access-secret",
		RefreshSecret:         "refresh-secret",
		Issuer:                "bazaar-test",
		AccessTokenTTLMinutes: 30,
		RefreshTokenTTLDays:   7,
		OTPTTLMinutes:         5,
		OTPRatePerMinute:      5,
		OTPHashCost:           bcrypt.MinCost,
		PhoneRegion:           "IR",
		DuplicateWindow:       5 * time.Minute,
		IdempotencyTTL:        time.Hour,
	}
}

func newTestApp(t *testing.T) (*fiber.App, *inbox) {
	t.Helper()
	logger := logging.Discard()
	box := &inbox{codes: map[string]string{}}
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)})
	_, err := routes.Setup(app, routes.Deps{Cfg: testConfig(), Logger: logger, Notifier: box})
	require.NoError(t, err)
	return app, box
}

type response struct {
	status int
	header map[string]string
	body   map[string]any
}

func call(t *testing.T, app *fiber.App, method, path, bearer string, payload any) response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := response{status: resp.StatusCode, header: map[string]string{}, body: map[string]any{}}
	for k := range resp.Header {
		out.header[k] = resp.Header.Get(k)
	}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out.body)
	}
	return out
}

func register(t *testing.T, app *fiber.App, box *inbox, payload map[string]any) string {
	t.Helper()
	res := call(t, app, fiber.MethodPost, "/v1/auth/register", "", payload)
	require.Equal(t, fiber.StatusCreated, res.status, res.body)
	phone := payload["phone"].(string)
	verified := call(t, app, fiber.MethodPost, "/v1/auth/verify", "", map[string]any{
		"phone": phone, "otp": box.code(phone), "role": payload["role"],
	})
	require.Equal(t, fiber.StatusOK, verified.status, verified.body)
	return verified.body["access_token"].(string)
}

func TestHealthz(t *testing.T) {
	app, _ := newTestApp(t)
	res := call(t, app, fiber.MethodGet, "/healthz", "", nil)
	assert.Equal(t, fiber.StatusOK, res.status)
}

func TestVendorJourney(t *testing.T) {
	app, box := newTestApp(t)
	const phone = "+989120000000"

	reg := call(t, app, fiber.MethodPost, "/v1/auth/register", "", map[string]any{
		"role": "vendor", "phone": phone, "name": "Saffron House", "owner_name": "Ali",
		"address": "1 Ferdowsi Sq", "location": "35.7,51.4", "city": "Tehran", "province": "Tehran",
		"category_ids": []string{"spices"},
	})
	require.Equal(t, fiber.StatusCreated, reg.status, reg.body)
	assert.NotEmpty(t, reg.body["id"])

	code := box.code(phone)
	bad := "000000"
	if code == bad {
		bad = "111111"
	}
	wrong := call(t, app, fiber.MethodPost, "/v1/auth/verify", "", map[string]any{"phone": phone, "otp": bad})
	assert.Equal(t, fiber.StatusBadRequest, wrong.status)
	assert.NotEmpty(t, wrong.body["detail"])

	verified := call(t, app, fiber.MethodPost, "/v1/auth/verify", "", map[string]any{"phone": phone, "otp": code})
	require.Equal(t, fiber.StatusOK, verified.status, verified.body)
	access := verified.body["access_token"].(string)
	refresh := verified.body["refresh_token"].(string)

	me := call(t, app, fiber.MethodGet, "/v1/me", access, nil)
	require.Equal(t, fiber.StatusOK, me.status)
	principal := me.body["principal"].(map[string]any)
	assert.Equal(t, "active", principal["status"])
	assert.EqualValues(t, 0, principal["wallet_balance"])

	created := call(t, app, fiber.MethodPost, "/v1/wallet/transactions", access, map[string]any{"amount": 500, "type": "deposit"})
	require.Equal(t, fiber.StatusCreated, created.status, created.body)
	txID := created.body["id"].(string)

	got := call(t, app, fiber.MethodGet, "/v1/wallet/transactions/"+txID, access, nil)
	require.Equal(t, fiber.StatusOK, got.status)
	assert.Equal(t, "pending", got.body["status"])

	withdrawal := call(t, app, fiber.MethodPost, "/v1/wallet/transactions", access, map[string]any{"amount": 500, "type": "withdrawal"})
	require.Equal(t, fiber.StatusCreated, withdrawal.status, withdrawal.body)

	dup := call(t, app, fiber.MethodPost, "/v1/wallet/transactions", access, map[string]any{"amount": 500, "type": "withdrawal"})
	assert.Equal(t, fiber.StatusBadRequest, dup.status)
	assert.Equal(t, "duplicate transaction", dup.body["detail"])

	balance := call(t, app, fiber.MethodGet, "/v1/wallet/balance", access, nil)
	require.Equal(t, fiber.StatusOK, balance.status)
	assert.EqualValues(t, 0, balance.body["balance"])

	refreshed := call(t, app, fiber.MethodPost, "/v1/auth/refresh", refresh, nil)
	require.Equal(t, fiber.StatusOK, refreshed.status, refreshed.body)
	assert.Equal(t, refresh, refreshed.body["refresh_token"])
	access = refreshed.body["access_token"].(string)

	out := call(t, app, fiber.MethodPost, "/v1/auth/logout", access, nil)
	require.Equal(t, fiber.StatusOK, out.status)

	after := call(t, app, fiber.MethodGet, "/v1/me", access, nil)
	assert.Equal(t, fiber.StatusUnauthorized, after.status)
	assert.Equal(t, "Bearer", after.header["Www-Authenticate"])
	assert.Equal(t, "could not validate credentials", after.body["detail"])
}

func TestAuthorizationBoundaries(t *testing.T) {
	app, box := newTestApp(t)

	missing := call(t, app, fiber.MethodGet, "/v1/wallet/balance", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, missing.status)
	assert.Equal(t, "Bearer", missing.header["Www-Authenticate"])

	userToken := register(t, app, box, map[string]any{"role": "user", "phone": "+989121234567"})
	forbidden := call(t, app, fiber.MethodPost, "/v1/wallet/transactions", userToken, map[string]any{"amount": 10, "type": "deposit"})
	assert.Equal(t, fiber.StatusForbidden, forbidden.status)

	admin := call(t, app, fiber.MethodDelete, "/v1/admin/principals/anything", userToken, nil)
	assert.Equal(t, fiber.StatusForbidden, admin.status)

	notFound := call(t, app, fiber.MethodPost, "/v1/auth/logout", "no-such-token", nil)
	assert.Equal(t, fiber.StatusNotFound, notFound.status)
}

func TestRequestOTPResponseIgnoresRegistration(t *testing.T) {
	app, box := newTestApp(t)
	register(t, app, box, map[string]any{"role": "user", "phone": "+989121234568"})

	known := call(t, app, fiber.MethodPost, "/v1/auth/request_otp", "", map[string]any{"phone": "+989121234568"})
	unknown := call(t, app, fiber.MethodPost, "/v1/auth/request_otp", "", map[string]any{"phone": "+989121234569"})
	assert.Equal(t, fiber.StatusOK, known.status)
	assert.Equal(t, known.status, unknown.status)
	assert.Equal(t, known.body, unknown.body)

	invalid := call(t, app, fiber.MethodPost, "/v1/auth/request_otp", "", map[string]any{"phone": "abc"})
	assert.Equal(t, fiber.StatusBadRequest, invalid.status)
}
