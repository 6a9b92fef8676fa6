package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendly/internal/auth"
	"spendly/internal/records/memory"
	"spendly/internal/services"
)

const testSecret = "0123456789abcdef0123"

func newTestServer(t *testing.T, rateLimit int) *Server {
	t.Helper()
	store := memory.New()
	tokens := auth.NewTokenIssuer(testSecret, time.Hour)
	srv := NewServer(":0", Dependencies{
		Store:              store,
		Expenses:           services.NewExpenseService(store, nil, time.UTC),
		Stats:              services.NewStatsService(store, time.UTC),
		Insights:           services.NewInsightService(store, time.UTC),
		Sync:               services.NewSyncReconciler(store, nil, time.UTC, 3),
		Accounts:           services.NewAccountService(store, tokens),
		Tokens:             tokens,
		Location:           time.UTC,
		RateLimitPerMinute: rateLimit,
	})
	t.Cleanup(func() { srv.rateLimiter.Stop() })
	return srv
}

func do(t *testing.T, srv *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func register(t *testing.T, srv *Server, email string) string {
	t.Helper()
	rr := do(t, srv, http.MethodPost, "/api/auth/register", "",
		`{"name":"Test User","email":"`+email+`","password":"secret123"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	token, _ := decode(t, rr)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func createExpense(t *testing.T, srv *Server, token, body string) map[string]any {
	t.Helper()
	rr := do(t, srv, http.MethodPost, "/api/expenses", token, body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	e, _ := decode(t, rr)["expense"].(map[string]any)
	require.NotNil(t, e)
	return e
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, 100)

	for _, path := range []string{"/healthz", "/readyz", "/api/health"} {
		rr := do(t, srv, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json"), path)
		assert.True(t, strings.HasPrefix(rr.Header().Get("X-Request-ID"), "req_"), path)
		assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"), path)
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	srv := newTestServer(t, 100)
	token := register(t, srv, "routes@example.com")

	rr := do(t, srv, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, srv, http.MethodPatch, "/api/expenses/abc", token, `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestExpensesRequireToken(t *testing.T) {
	srv := newTestServer(t, 100)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodGet, "/api/expenses", tt.token, "")
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Equal(t, "unauthorized", decode(t, rr)["error"])
		})
	}
}

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t, 100)
	token := register(t, srv, "Alice@Example.com")

	t.Run("duplicate email", func(t *testing.T) {
		rr := do(t, srv, http.MethodPost, "/api/auth/register", "",
			`{"name":"Other","email":"alice@example.com","password":"secret123"}`)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("short password", func(t *testing.T) {
		rr := do(t, srv, http.MethodPost, "/api/auth/register", "",
			`{"name":"Bob","email":"bob@example.com","password":"123"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "password", decode(t, rr)["field"])
	})

	t.Run("login", func(t *testing.T) {
		rr := do(t, srv, http.MethodPost, "/api/auth/login", "",
			`{"email":"alice@example.com","password":"secret123"}`)
		require.Equal(t, http.StatusOK, rr.Code)
		body := decode(t, rr)
		assert.Equal(t, "Login successful", body["message"])
		assert.NotEmpty(t, body["token"])
	})

	t.Run("wrong password and unknown email look alike", func(t *testing.T) {
		wrong := do(t, srv, http.MethodPost, "/api/auth/login", "",
			`{"email":"alice@example.com","password":"nope1234"}`)
		unknown := do(t, srv, http.MethodPost, "/api/auth/login", "",
			`{"email":"ghost@example.com","password":"nope1234"}`)
		assert.Equal(t, http.StatusUnauthorized, wrong.Code)
		assert.Equal(t, wrong.Code, unknown.Code)
		assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	})

	t.Run("me", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/api/auth/me", token, "")
		require.Equal(t, http.StatusOK, rr.Code)
		user := decode(t, rr)["user"].(map[string]any)
		assert.Equal(t, "alice@example.com", user["email"])
		assert.NotContains(t, rr.Body.String(), "password")
	})

	t.Run("profile", func(t *testing.T) {
		rr := do(t, srv, http.MethodPut, "/api/auth/profile", token, `{"currency":"eur"}`)
		require.Equal(t, http.StatusOK, rr.Code)
		user := decode(t, rr)["user"].(map[string]any)
		assert.Equal(t, "EUR", user["currency"])
		assert.Equal(t, "Test User", user["name"])
	})

	t.Run("change password", func(t *testing.T) {
		rr := do(t, srv, http.MethodPut, "/api/auth/change-password", token,
			`{"currentPassword":"wrong123","newPassword":"another123"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "currentPassword", decode(t, rr)["field"])

		rr = do(t, srv, http.MethodPut, "/api/auth/change-password", token,
			`{"currentPassword":"secret123","newPassword":"another123"}`)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = do(t, srv, http.MethodPost, "/api/auth/login", "",
			`{"email":"alice@example.com","password":"another123"}`)
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestExpenseCRUD(t *testing.T) {
	srv := newTestServer(t, 100)
	alice := register(t, srv, "alice@example.com")
	bob := register(t, srv, "bob@example.com")

	created := createExpense(t, srv, alice,
		`{"amount":"12.345","category":"Food","paymentMethod":"Credit Card","description":"lunch","date":"2025-03-10"}`)
	id := created["id"].(string)
	assert.Equal(t, 12.35, created["amount"])
	assert.Equal(t, "Credit Card", created["paymentMethod"])

	t.Run("get own", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/api/expenses/"+id, alice, "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, id, decode(t, rr)["expense"].(map[string]any)["id"])
	})

	t.Run("foreign record is not found", func(t *testing.T) {
		for _, method := range []string{http.MethodGet, http.MethodDelete} {
			rr := do(t, srv, method, "/api/expenses/"+id, bob, "")
			assert.Equal(t, http.StatusNotFound, rr.Code, method)
			assert.Equal(t, "expense not found", decode(t, rr)["error"])
		}
		rr := do(t, srv, http.MethodPut, "/api/expenses/"+id, bob, `{"amount":1}`)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("partial update", func(t *testing.T) {
		rr := do(t, srv, http.MethodPut, "/api/expenses/"+id, alice, `{"amount":20}`)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		e := decode(t, rr)["expense"].(map[string]any)
		assert.Equal(t, float64(20), e["amount"])
		assert.Equal(t, "Food", e["category"])
		assert.Equal(t, "lunch", e["description"])
	})

	t.Run("invalid update", func(t *testing.T) {
		rr := do(t, srv, http.MethodPut, "/api/expenses/"+id, alice, `{"category":"Rent"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "category", decode(t, rr)["field"])
	})

	t.Run("delete", func(t *testing.T) {
		rr := do(t, srv, http.MethodDelete, "/api/expenses/"+id, alice, "")
		require.Equal(t, http.StatusOK, rr.Code)

		rr = do(t, srv, http.MethodGet, "/api/expenses/"+id, alice, "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestCreateExpenseValidation(t *testing.T) {
	srv := newTestServer(t, 100)
	token := register(t, srv, "alice@example.com")

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing amount", `{"category":"Food","paymentMethod":"Cash"}`, "amount"},
		{"zero amount", `{"amount":0,"category":"Food","paymentMethod":"Cash"}`, "amount"},
		{"text amount", `{"amount":"abc","category":"Food","paymentMethod":"Cash"}`, "amount"},
		{"grouped amount", `{"amount":"1,000","category":"Food","paymentMethod":"Cash"}`, "amount"},
		{"bad category", `{"amount":5,"category":"Rent","paymentMethod":"Cash"}`, "category"},
		{"bad payment method", `{"amount":5,"category":"Food","paymentMethod":"Barter"}`, "paymentMethod"},
		{"unknown field", `{"amount":5,"category":"Food","paymentMethod":"Cash","owner":"x"}`, "owner"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/api/expenses", token, tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			assert.Equal(t, tt.field, decode(t, rr)["field"])
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		rr := do(t, srv, http.MethodPost, "/api/expenses", token, `{"amount":`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestListExpenses(t *testing.T) {
	srv := newTestServer(t, 100)
	token := register(t, srv, "alice@example.com")

	for _, body := range []string{
		`{"amount":10,"category":"Food","paymentMethod":"Cash","date":"2025-03-01"}`,
		`{"amount":20,"category":"Transport","paymentMethod":"UPI","date":"2025-03-02"}`,
		`{"amount":30,"category":"Food","paymentMethod":"Cash","date":"2025-03-03"}`,
	} {
		createExpense(t, srv, token, body)
	}

	t.Run("pagination", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/api/expenses?page=1&limit=2", token, "")
		require.Equal(t, http.StatusOK, rr.Code)
		body := decode(t, rr)
		assert.Len(t, body["expenses"], 2)
		p := body["pagination"].(map[string]any)
		assert.Equal(t, float64(1), p["current"])
		assert.Equal(t, float64(2), p["pages"])
		assert.Equal(t, float64(3), p["total"])

		first := body["expenses"].([]any)[0].(map[string]any)
		assert.Equal(t, float64(30), first["amount"], "newest first")
	})

	t.Run("category filter", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/api/expenses?category=Food", token, "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, decode(t, rr)["expenses"], 2)
	})

	t.Run("inclusive date range", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/api/expenses?startDate=2025-03-02&endDate=2025-03-03", token, "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, decode(t, rr)["expenses"], 2)
	})

	t.Run("page out of range", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/api/expenses?page=9223372036854775807&limit=20", token, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "page", decode(t, rr)["field"])
	})

	t.Run("bad limit", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/api/expenses?limit=0", token, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "limit", decode(t, rr)["field"])
	})

	t.Run("isolated per owner", func(t *testing.T) {
		other := register(t, srv, "bob@example.com")
		rr := do(t, srv, http.MethodGet, "/api/expenses", other, "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, decode(t, rr)["expenses"])
	})
}

func TestStatsEndpoints(t *testing.T) {
	srv := newTestServer(t, 100)
	token := register(t, srv, "alice@example.com")

	createExpense(t, srv, token, `{"amount":10,"category":"Food","paymentMethod":"Cash","date":"2025-03-10"}`)
	createExpense(t, srv, token, `{"amount":5.5,"category":"Food","paymentMethod":"Cash","date":"2025-03-10"}`)
	createExpense(t, srv, token, `{"amount":40,"category":"Bills","paymentMethod":"Net Banking","date":"2025-03-20"}`)
	createExpense(t, srv, token, `{"amount":99,"category":"Bills","paymentMethod":"Cash","date":"2025-04-01"}`)

	t.Run("daily", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/api/expenses/stats/daily?date=2025-03-10", token, "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		body := decode(t, rr)
		assert.Equal(t, 15.5, body["total"])
		assert.Equal(t, float64(2), body["count"])
	})

	t.Run("monthly", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/api/expenses/stats/monthly?month=3&year=2025", token, "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		body := decode(t, rr)
		assert.Equal(t, 55.5, body["total"])
		assert.Equal(t, float64(3), body["count"])
		byCat := body["byCategory"].(map[string]any)
		assert.Equal(t, 15.5, byCat["Food"])
		assert.Equal(t, float64(40), byCat["Bills"])
	})

	t.Run("categories", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/api/expenses/stats/categories?month=3&year=2025", token, "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		cats := decode(t, rr)["categories"].([]any)
		require.Len(t, cats, 2)
		assert.Equal(t, "Bills", cats[0].(map[string]any)["category"])
	})

	t.Run("bad month", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/api/expenses/stats/monthly?month=13", token, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "month", decode(t, rr)["field"])
	})

	t.Run("insights", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/api/expenses/stats/insights", token, "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		body := decode(t, rr)
		assert.Contains(t, body, "insights")
		assert.Contains(t, body, "currentMonthTotal")
		assert.Contains(t, body, "lastMonthTotal")
		assert.Contains(t, body, "overallChange")
	})
}

func TestSync(t *testing.T) {
	srv := newTestServer(t, 100)
	token := register(t, srv, "alice@example.com")

	t.Run("last write wins within a batch", func(t *testing.T) {
		rr := do(t, srv, http.MethodPost, "/api/expenses/sync", token, `{"expenses":[
			{"localId":"a1","amount":50,"category":"Food","paymentMethod":"Cash","date":"2025-03-01"},
			{"localId":"a1","amount":55,"category":"Food","paymentMethod":"Cash","date":"2025-03-01"}
		]}`)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		body := decode(t, rr)
		assert.Equal(t, "Sync complete", body["message"])
		assert.Equal(t, float64(1), body["created"])
		assert.Equal(t, float64(1), body["updated"])

		list := decode(t, do(t, srv, http.MethodGet, "/api/expenses", token, ""))
		expenses := list["expenses"].([]any)
		require.Len(t, expenses, 1)
		e := expenses[0].(map[string]any)
		assert.Equal(t, float64(55), e["amount"])
		assert.Equal(t, "synced", e["syncStatus"])
	})

	t.Run("replay is idempotent", func(t *testing.T) {
		rr := do(t, srv, http.MethodPost, "/api/expenses/sync", token,
			`{"expenses":[{"localId":"a1","amount":55,"category":"Food","paymentMethod":"Cash"}]}`)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, float64(1), decode(t, rr)["updated"])

		list := decode(t, do(t, srv, http.MethodGet, "/api/expenses", token, ""))
		assert.Len(t, list["expenses"], 1)
	})

	t.Run("item failures are isolated", func(t *testing.T) {
		rr := do(t, srv, http.MethodPost, "/api/expenses/sync", token, `{"expenses":[
			{"localId":"b1","amount":"oops","category":"Food","paymentMethod":"Cash"},
			{"localId":"b2","amount":8,"category":"Health","paymentMethod":"Cash","syncStatus":"pending"}
		]}`)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		body := decode(t, rr)
		assert.Equal(t, float64(1), body["failed"])
		assert.Equal(t, float64(1), body["created"])

		results := body["results"].([]any)
		require.Len(t, results, 2)
		failed := results[0].(map[string]any)
		assert.Equal(t, "failed", failed["status"])
		assert.Equal(t, "b1", failed["localId"])
		assert.NotEmpty(t, failed["error"])
		assert.Len(t, body["synced"], 1)
	})

	t.Run("batch errors", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{"missing", `{}`},
			{"not an array", `{"expenses":{"amount":1}}`},
			{"empty", `{"expenses":[]}`},
			{"too large", `{"expenses":[{},{},{},{}]}`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rr := do(t, srv, http.MethodPost, "/api/expenses/sync", token, tt.body)
				assert.Equal(t, http.StatusBadRequest, rr.Code)
				assert.Equal(t, "expenses", decode(t, rr)["field"])
			})
		}
	})
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, 2)

	for i := 0; i < 2; i++ {
		rr := do(t, srv, http.MethodGet, "/api/expenses", "", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	}
	rr := do(t, srv, http.MethodGet, "/api/expenses", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	retry, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.True(t, retry >= 1 && retry <= 60, "Retry-After = %d", retry)

	// health checks are not limited
	rr = do(t, srv, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestShutdownIsIdempotent(t *testing.T) {
	srv := newTestServer(t, 100)
	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, srv.Shutdown(context.Background()))
}
