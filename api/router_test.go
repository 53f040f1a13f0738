package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"rentbuy/internal/transaction"
)

const testSecret = "test-secret"

func initRoutesTests(t *testing.T) (*gin.Engine, *transaction.LocalCatalog) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()

	catalog := transaction.NewLocalCatalog()
	purchase := decimal.RequireFromString("1800.00")
	rental := decimal.RequireFromString("75.00")
	catalog.Put(transaction.Product{ID: "p1", OwnerID: "owner", Title: "iPhone 13", RentUnit: "DAY", PurchasePrice: &purchase, RentalPrice: &rental})
	catalog.Put(transaction.Product{ID: "rent-only", OwnerID: "owner", Title: "Tent", RentUnit: "WEEK", RentalPrice: &rental})

	logger := zaptest.NewLogger(t)
	svc := transaction.NewService(transaction.NewLocalStorage(), catalog, logger)
	InitRoutes(router, svc, logger, testSecret)
	return router, catalog
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := IssueToken(testSecret, userID, userID+"@example.com", time.Hour)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, router *gin.Engine, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// TestTransactionsHappyPath_FullFlow exercises buy -> rent -> history -> cancel over HTTP.
func TestTransactionsHappyPath_FullFlow(t *testing.T) {
	router, _ := initRoutesTests(t)

	var buyID, rentID string

	t.Run("POST_BuyProduct", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/v1/products/p1/buy", "buyer", nil)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var buy BuyResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &buy))
		assert.NotEmpty(t, buy.ID)
		assert.Equal(t, "buyer", buy.BuyerID)
		assert.Equal(t, "owner", buy.SellerID)
		assert.True(t, buy.Price.Equal(decimal.RequireFromString("1800")))
		assert.Equal(t, transaction.BuyCompleted, buy.Status)
		require.NotNil(t, buy.Product)
		assert.Equal(t, "iPhone 13", buy.Product.Title)
		assert.Equal(t, "owner", buy.Product.OwnerID)
		buyID = buy.ID
	})

	t.Run("POST_RentProduct", func(t *testing.T) {
		body := map[string]string{"start_date": "2024-01-01T00:00:00Z", "end_date": "2024-01-10T00:00:00Z"}
		w := do(t, router, http.MethodPost, "/v1/products/p1/rent", "buyer", body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var rent RentResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rent))
		assert.Equal(t, transaction.RentActive, rent.Status)
		assert.Equal(t, "owner", rent.OwnerUserID)
		require.NotNil(t, rent.Product)
		assert.Equal(t, "DAY", rent.Product.RentUnit)
		rentID = rent.ID
	})

	require.NotEmpty(t, buyID)
	require.NotEmpty(t, rentID)

	t.Run("GET_History", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/v1/me/transactions", "buyer", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Results []TransactionResponse `json:"results"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Results, 2)
		for _, tx := range resp.Results {
			require.NotNil(t, tx.Product)
			assert.Equal(t, "p1", tx.Product.ID)
			switch tx.Type {
			case transaction.KindBuy:
				require.NotNil(t, tx.Buy)
				assert.Nil(t, tx.Rent)
				assert.Equal(t, buyID, tx.Buy.ID)
				assert.Equal(t, transaction.RoleBuyer, tx.UserRole)
			case transaction.KindRent:
				require.NotNil(t, tx.Rent)
				assert.Nil(t, tx.Buy)
				assert.Equal(t, rentID, tx.Rent.ID)
				assert.Equal(t, transaction.RoleRenter, tx.UserRole)
			default:
				t.Fatalf("unexpected type %q", tx.Type)
			}
		}
		assert.False(t, resp.Results[0].CreatedAt.Before(resp.Results[1].CreatedAt))
	})

	t.Run("GET_OwnerLendingsAndSales", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/v1/me/lendings", "owner", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var lendings struct {
			Results []RentResponse `json:"results"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lendings))
		require.Len(t, lendings.Results, 1)

		w = do(t, router, http.MethodGet, "/v1/me/sales", "owner", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var sales struct {
			Results []BuyResponse `json:"results"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sales))
		require.Len(t, sales.Results, 1)
	})

	t.Run("GET_OpenTransactions", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/v1/products/p1/open-transactions", "owner", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Open bool `json:"open"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Open)
	})

	t.Run("POST_CancelRent_ThirdParty", func(t *testing.T) {
		w := do(t, router, http.MethodPost, fmt.Sprintf("/v1/rents/%s/cancel", rentID), "stranger", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, transaction.KindUnauthorized, decodeError(t, w).Code)
	})

	t.Run("POST_CancelRent_Owner", func(t *testing.T) {
		w := do(t, router, http.MethodPost, fmt.Sprintf("/v1/rents/%s/cancel", rentID), "owner", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var rent RentResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rent))
		assert.Equal(t, transaction.RentCancelled, rent.Status)
	})

	t.Run("POST_CancelBuy_Twice", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			w := do(t, router, http.MethodPost, fmt.Sprintf("/v1/buys/%s/cancel", buyID), "buyer", nil)
			require.Equal(t, http.StatusOK, w.Code)
			var buy BuyResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &buy))
			assert.Equal(t, transaction.BuyCancelled, buy.Status)
		}
	})

	t.Run("GET_BuysByStatus", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/v1/me/buys?status=CANCELLED", "buyer", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Results []BuyResponse `json:"results"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Results, 1)
		assert.Equal(t, buyID, resp.Results[0].ID)
	})

	t.Run("GET_BuyAndRentByID", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/v1/buys/"+buyID, "owner", nil).Code)
		assert.Equal(t, http.StatusForbidden, do(t, router, http.MethodGet, "/v1/buys/"+buyID, "stranger", nil).Code)
		assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/v1/rents/"+rentID, "buyer", nil).Code)
		assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/v1/rents/missing", "buyer", nil).Code)
	})
}

func TestErrorMapping(t *testing.T) {
	router, _ := initRoutesTests(t)

	period := func(start, end string) map[string]string {
		return map[string]string{"start_date": start, "end_date": end}
	}

	tests := []struct {
		name     string
		method   string
		path     string
		user     string
		body     any
		wantCode int
		wantKind transaction.ErrorKind
	}{
		{"buy unknown product", http.MethodPost, "/v1/products/nope/buy", "u", nil, http.StatusNotFound, transaction.KindNotFound},
		{"buy not for sale", http.MethodPost, "/v1/products/rent-only/buy", "u", nil, http.StatusUnprocessableEntity, transaction.KindInvalidState},
		{"buy own product", http.MethodPost, "/v1/products/p1/buy", "owner", nil, http.StatusForbidden, transaction.KindInvalidOperation},
		{"rent reversed dates", http.MethodPost, "/v1/products/p1/rent", "u", period("2024-01-10T00:00:00Z", "2024-01-01T00:00:00Z"), http.StatusBadRequest, transaction.KindInvalidInput},
		{"rent missing dates", http.MethodPost, "/v1/products/p1/rent", "u", map[string]string{}, http.StatusBadRequest, transaction.KindInvalidInput},
		{"rent malformed date", http.MethodPost, "/v1/products/p1/rent", "u", period("yesterday", "today"), http.StatusBadRequest, transaction.KindInvalidInput},
		{"bad status filter", http.MethodGet, "/v1/me/rentals?status=LOST", "u", nil, http.StatusBadRequest, transaction.KindInvalidInput},
		{"bad type filter", http.MethodGet, "/v1/me/transactions?type=GIFT", "u", nil, http.StatusBadRequest, transaction.KindInvalidInput},
		{"cancel unknown buy", http.MethodPost, "/v1/buys/nope/cancel", "u", nil, http.StatusNotFound, transaction.KindNotFound},
		{"open transactions of someone else's product", http.MethodGet, "/v1/products/p1/open-transactions", "u", nil, http.StatusForbidden, transaction.KindUnauthorized},
		{"open transactions of unknown product", http.MethodGet, "/v1/products/nope/open-transactions", "u", nil, http.StatusNotFound, transaction.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Equal(t, tt.wantKind, decodeError(t, w).Code)
		})
	}
}

func TestProductSummaryOmittedForUnknownProduct(t *testing.T) {
	router, catalog := initRoutesTests(t)
	purchase := decimal.RequireFromString("5")
	catalog.Put(transaction.Product{ID: "gone", OwnerID: "owner", PurchasePrice: &purchase})

	w := do(t, router, http.MethodPost, "/v1/products/gone/buy", "buyer", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	catalog.Remove("gone")

	w = do(t, router, http.MethodGet, "/v1/me/buys", "buyer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Results []BuyResponse `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "gone", resp.Results[0].ProductID)
	assert.Nil(t, resp.Results[0].Product)
}

func TestRentConflictOverHTTP(t *testing.T) {
	router, _ := initRoutesTests(t)

	w := do(t, router, http.MethodPost, "/v1/products/rent-only/rent", "u1",
		map[string]string{"start_date": "2024-01-01T00:00:00Z", "end_date": "2024-01-10T00:00:00Z"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, router, http.MethodPost, "/v1/products/rent-only/rent", "u2",
		map[string]string{"start_date": "2024-01-05T00:00:00Z", "end_date": "2024-01-15T00:00:00Z"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, transaction.KindConflict, decodeError(t, w).Code)

	w = do(t, router, http.MethodPost, "/v1/products/rent-only/rent", "u2",
		map[string]string{"start_date": "2024-01-10T00:00:00Z", "end_date": "2024-01-20T00:00:00Z"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestAuthentication(t *testing.T) {
	router, _ := initRoutesTests(t)

	w := do(t, router, http.MethodGet, "/v1/me/buys", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/me/buys", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	forged, err := IssueToken("other-secret", "u", "", time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/v1/me/buys", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired, err := IssueToken(testSecret, "u", "", -time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/v1/me/buys", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
