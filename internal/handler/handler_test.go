package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bankoperations/bank-service/internal/config"
	"github.com/bankoperations/bank-service/internal/middleware"
	"github.com/bankoperations/bank-service/internal/models"
	"github.com/bankoperations/bank-service/internal/repository"
	"github.com/bankoperations/bank-service/internal/service"
)

func newTestRouter(t *testing.T) (*mux.Router, *service.Service, *config.Config) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := &config.Config{
		JWTSecret:            "test-secret",
		LockTimeout:          time.Second,
		AccrualInterval:      time.Minute,
		AccrualGrowthFactor:  decimal.RequireFromString("1.05"),
		AccrualCapMultiplier: decimal.RequireFromString("2.07"),
	}
	store := repository.NewMemory(cfg.LockTimeout)
	svc := service.NewService(store, logger, cfg, nil)
	h := NewHandler(svc, logger)

	r := mux.NewRouter()
	r.HandleFunc("/auth/sign-up", h.SignUp).Methods("POST")
	r.HandleFunc("/auth/sign-in", h.SignIn).Methods("POST")
	authRouter := r.PathPrefix("/api").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))
	authRouter.HandleFunc("/transfer", h.SendMoney).Methods("POST")
	authRouter.HandleFunc("/transfers", h.ListTransfers).Methods("GET")
	authRouter.HandleFunc("/accounts/{ownerID}", h.GetAccount).Methods("GET")
	authRouter.HandleFunc("/users", h.GetAllUsers).Methods("GET")
	authRouter.HandleFunc("/users/search", h.SearchUsers).Methods("GET")
	authRouter.HandleFunc("/users/{id}/email", h.UpdateEmail).Methods("PUT")
	authRouter.HandleFunc("/users/{id}/email", h.DeleteEmail).Methods("DELETE")
	return r, svc, cfg
}

func doJSON(t *testing.T, r *mux.Router, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func signUpBody(username, deposit string) map[string]interface{} {
	return map[string]interface{}{
		"username":        username,
		"full_name":       "Test " + username,
		"password":        "password123",
		"email":           username + "@example.com",
		"date_of_birth":   "1990-01-15",
		"initial_deposit": deposit,
	}
}

func registerAndLogin(t *testing.T, r *mux.Router, username, deposit string) (*models.User, string) {
	t.Helper()
	rec := doJSON(t, r, http.MethodPost, "/auth/sign-up", "", signUpBody(username, deposit))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	user := &models.User{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(user))

	rec = doJSON(t, r, http.MethodPost, "/auth/sign-in", "", map[string]string{
		"username": username,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&login))
	require.NotEmpty(t, login["token"])
	return user, login["token"]
}

func TestSignUpAndSignIn(t *testing.T) {
	r, _, _ := newTestRouter(t)
	user, token := registerAndLogin(t, r, "alice", "100")
	assert.NotZero(t, user.ID)
	assert.NotEmpty(t, token)

	// Duplicate username is a client error with the specific reason.
	rec := doJSON(t, r, http.MethodPost, "/auth/sign-up", "", signUpBody("alice", "50"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "username is already in use")

	// Wrong password.
	rec = doJSON(t, r, http.MethodPost, "/auth/sign-in", "", map[string]string{
		"username": "alice",
		"password": "nope",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTransferEndpoint(t *testing.T) {
	r, _, _ := newTestRouter(t)
	sender, token := registerAndLogin(t, r, "alice", "100")
	recipient, _ := registerAndLogin(t, r, "bob", "50")

	rec := doJSON(t, r, http.MethodPost, "/api/transfer", token, map[string]interface{}{
		"sender_id":    sender.ID,
		"recipient_id": recipient.ID,
		"amount":       "30",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	transfer := &models.Transfer{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(transfer))
	assert.NotZero(t, transfer.ID)
	assert.Equal(t, sender.ID, transfer.SenderID)
	assert.Equal(t, recipient.ID, transfer.RecipientID)
	assert.True(t, transfer.Amount.Equal(decimal.RequireFromString("30")))

	rec = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/accounts/%d", sender.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	account := &models.Account{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(account))
	assert.True(t, account.Balance.Equal(decimal.RequireFromString("70")))
}

func TestTransferEndpointRejections(t *testing.T) {
	r, _, _ := newTestRouter(t)
	sender, token := registerAndLogin(t, r, "alice", "100")
	recipient, _ := registerAndLogin(t, r, "bob", "50")

	tests := []struct {
		name        string
		senderID    int64
		recipientID int64
		amount      string
		wantStatus  int
		wantMessage string
	}{
		{"self transfer", sender.ID, sender.ID, "10", http.StatusBadRequest, "cannot transfer money to your account"},
		{"missing sender", sender.ID + 100, recipient.ID, "10", http.StatusBadRequest, "sender not found"},
		{"missing recipient", sender.ID, recipient.ID + 100, "10", http.StatusBadRequest, "recipient not found"},
		{"zero amount", sender.ID, recipient.ID, "0", http.StatusBadRequest, "cannot transfer money to your account"},
		{"insufficient balance", sender.ID, recipient.ID, "1000", http.StatusBadRequest, "not enough funds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, r, http.MethodPost, "/api/transfer", token, map[string]interface{}{
				"sender_id":    tt.senderID,
				"recipient_id": tt.recipientID,
				"amount":       tt.amount,
			})
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantMessage)
		})
	}
}

func TestAuthRequired(t *testing.T) {
	r, _, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/transfer", "", map[string]interface{}{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/transfer", "not-a-token", map[string]interface{}{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListTransfersForAuthenticatedUser(t *testing.T) {
	r, svc, _ := newTestRouter(t)
	sender, token := registerAndLogin(t, r, "alice", "100")
	recipient, _ := registerAndLogin(t, r, "bob", "50")

	_, err := svc.Transfer(context.Background(), sender.ID, recipient.ID, decimal.RequireFromString("25"))
	require.NoError(t, err)

	rec := doJSON(t, r, http.MethodGet, "/api/transfers", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var transfers []*models.Transfer
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&transfers))
	require.Len(t, transfers, 1)
	assert.Equal(t, sender.ID, transfers[0].SenderID)
}

func TestContactInfoEndpoints(t *testing.T) {
	r, _, _ := newTestRouter(t)
	user, token := registerAndLogin(t, r, "alice", "100")

	rec := doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/users/%d/email", user.ID), token,
		map[string]string{"new_email": "fresh@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := &models.User{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(updated))
	require.NotNil(t, updated.Email)
	assert.Equal(t, "fresh@example.com", *updated.Email)

	// Deleting the only contact method is refused.
	rec = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/users/%d/email", user.ID), token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "delete all contact info")
}

func TestSearchUsersEndpoint(t *testing.T) {
	r, _, _ := newTestRouter(t)
	_, token := registerAndLogin(t, r, "anna", "10")
	registerAndLogin(t, r, "andrew", "10")
	registerAndLogin(t, r, "boris", "10")

	rec := doJSON(t, r, http.MethodGet, "/api/users/search?full_name=Test+an&sort=username,desc", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var users []*models.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&users))
	require.Len(t, users, 2)
	assert.Equal(t, "anna", users[0].Username)
	assert.Equal(t, "andrew", users[1].Username)
}
