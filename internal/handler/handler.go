package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/bankoperations/bank-service/internal/middleware"
	"github.com/bankoperations/bank-service/internal/repository"
	"github.com/bankoperations/bank-service/internal/service"
)

const dateLayout = "2006-01-02"

type Handler struct {
	svc *service.Service
	log *logrus.Logger
}

func NewHandler(svc *service.Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

type signUpRequest struct {
	Username       string          `json:"username"`
	FullName       string          `json:"full_name"`
	Password       string          `json:"password"`
	Email          *string         `json:"email"`
	PhoneNumber    *string         `json:"phone_number"`
	DateOfBirth    string          `json:"date_of_birth"`
	InitialDeposit decimal.Decimal `json:"initial_deposit"`
}

// SignUp handles user registration
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	dateOfBirth, err := time.Parse(dateLayout, req.DateOfBirth)
	if err != nil {
		respondError(w, http.StatusBadRequest, "date_of_birth must be YYYY-MM-DD")
		return
	}

	user, err := h.svc.Register(r.Context(), service.RegisterRequest{
		Username:       req.Username,
		FullName:       req.FullName,
		Password:       req.Password,
		Email:          req.Email,
		PhoneNumber:    req.PhoneNumber,
		DateOfBirth:    dateOfBirth,
		InitialDeposit: req.InitialDeposit,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

type signInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SignIn handles user authentication
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

type transferRequest struct {
	SenderID    int64           `json:"sender_id"`
	RecipientID int64           `json:"recipient_id"`
	Amount      decimal.Decimal `json:"amount"`
}

// SendMoney handles a transfer between two accounts
func (h *Handler) SendMoney(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	transfer, err := h.svc.Transfer(r.Context(), req.SenderID, req.RecipientID, req.Amount)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, transfer)
}

// ListTransfers returns the authenticated user's transfer history
func (h *Handler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authorization required")
		return
	}

	transfers, err := h.svc.ListTransfers(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, transfers)
}

// GetAccount returns a read-only balance snapshot
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	ownerID, err := pathID(r, "ownerID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid account owner id")
		return
	}

	account, err := h.svc.GetAccount(r.Context(), ownerID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, account)
}

// GetAllUsers returns all registered users
func (h *Handler) GetAllUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

// SearchUsers filters users by optional query parameters
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.UserFilter{
		FullNamePrefix: q.Get("full_name"),
		Email:          q.Get("email"),
		PhoneNumber:    q.Get("phone_number"),
		Page:           queryInt(q.Get("page"), 0),
		Size:           queryInt(q.Get("size"), 10),
	}
	if dob := q.Get("date_of_birth"); dob != "" {
		parsed, err := time.Parse(dateLayout, dob)
		if err != nil {
			respondError(w, http.StatusBadRequest, "date_of_birth must be YYYY-MM-DD")
			return
		}
		filter.BornAfter = &parsed
	}
	if sortParam := q.Get("sort"); sortParam != "" {
		field, desc := parseSort(sortParam)
		filter.SortBy = field
		filter.SortDesc = desc
	}

	users, err := h.svc.SearchUsers(r.Context(), filter)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

type updateEmailRequest struct {
	NewEmail string `json:"new_email"`
}

// UpdateEmail replaces a user's email address
func (h *Handler) UpdateEmail(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req updateEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewEmail == "" {
		respondError(w, http.StatusBadRequest, "new_email is required")
		return
	}

	user, err := h.svc.UpdateEmail(r.Context(), userID, req.NewEmail)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

type updatePhoneRequest struct {
	NewPhoneNumber string `json:"new_phone_number"`
}

// UpdatePhone replaces a user's phone number
func (h *Handler) UpdatePhone(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req updatePhoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewPhoneNumber == "" {
		respondError(w, http.StatusBadRequest, "new_phone_number is required")
		return
	}

	user, err := h.svc.UpdatePhoneNumber(r.Context(), userID, req.NewPhoneNumber)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// DeleteEmail removes a user's email address
func (h *Handler) DeleteEmail(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := h.svc.DeleteEmail(r.Context(), userID); err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// DeletePhone removes a user's phone number
func (h *Handler) DeletePhone(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := h.svc.DeletePhoneNumber(r.Context(), userID); err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// respondServiceError maps domain errors to client statuses. Every rejection
// keeps its specific message; only unexpected failures collapse to a generic
// 500 body.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidTransfer),
		errors.Is(err, service.ErrSenderNotFound),
		errors.Is(err, service.ErrRecipientNotFound),
		errors.Is(err, service.ErrInsufficientBalance),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrNoContactInfo),
		errors.Is(err, service.ErrInvalidInitialDeposit),
		errors.Is(err, service.ErrUsernameTaken),
		errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrPhoneTaken):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrLockTimeout):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.log.Errorf("Internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

func queryInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// parseSort splits "field,asc|desc" with ascending as the default.
func parseSort(value string) (string, bool) {
	field, order, found := strings.Cut(value, ",")
	if !found {
		return value, false
	}
	return field, order == "desc"
}
