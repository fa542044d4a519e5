package accounts

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func newTestRouter(repo *mockRepository) http.Handler {
	handler := NewHandler(nil, NewService(repo))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithPrincipal(req.Context(), &shared.Principal{UserID: 7, TenantID: 1})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	handler.MountRoutes(r)
	return r
}

func TestCreateAccountEndpoint(t *testing.T) {
	router := newTestRouter(newMockRepository())

	body := `{"name":"Petty Cash","type":"ASSET","sub_type":"cash"}`
	req := httptest.NewRequest(http.MethodPost, "/accounts", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var account Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &account))
	assert.Equal(t, "Petty Cash", account.Name)
	assert.Equal(t, AccountTypeAsset, account.Type)
}

func TestCreateAccountEndpointRejectsBadType(t *testing.T) {
	router := newTestRouter(newMockRepository())

	body := `{"name":"Petty Cash","type":"WEIRD"}`
	req := httptest.NewRequest(http.MethodPost, "/accounts", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Validation Failed")
}

func TestDeleteReferencedAccountEndpoint(t *testing.T) {
	repo := newMockRepository()
	account := repo.add(Account{TenantID: 1, Name: "Old Bank", Type: AccountTypeAsset})
	repo.ledgerRef[account.ID] = 2
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodDelete, "/accounts/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBalanceEndpoint(t *testing.T) {
	repo := newMockRepository()
	repo.add(Account{TenantID: 1, Name: "Bank", Type: AccountTypeAsset})
	repo.debitNet = 310.25
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/accounts/1/balance", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 310.25, payload["balance"])
}

func TestMissingPrincipalForbidden(t *testing.T) {
	handler := NewHandler(nil, NewService(newMockRepository()))
	r := chi.NewRouter()
	handler.MountRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
