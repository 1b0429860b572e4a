package account

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-account/internal/activity"
	"github.com/ovaphlow/pitchfork/service-account/pkg/utilities"
)

// maxBodyBytes caps request bodies; every payload here is a small form.
const maxBodyBytes = 1 << 16

// Handler exposes HTTP endpoints for account operations.
type Handler struct {
	auth   *AuthService
	query  *QueryService
	logger *zap.SugaredLogger
}

func NewHandler(auth *AuthService, query *QueryService, logger *zap.SugaredLogger) *Handler {
	return &Handler{auth: auth, query: query, logger: logger}
}

// SessionView is the login response body: the account plus its session token.
type SessionView struct {
	entity.PublicAccount
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LoginRequest login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ResetCodeRequest asks for a one-time reset code.
type ResetCodeRequest struct {
	Username     string `json:"username"`
	MobileNumber string `json:"mobileNumber"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterInput
	if !h.decode(w, r, &req) {
		return
	}
	acc, err := h.auth.Register(r.Context(), req)
	if err != nil {
		h.logger.Debugw("register failed", "err", err)
		h.writeErr(w, err)
		return
	}
	utilities.WriteOK(w, http.StatusCreated, "User registered successfully", acc)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Debugw("login failed", "err", err)
		h.writeErr(w, err)
		return
	}
	utilities.WriteOK(w, http.StatusOK, "Login successful", SessionView{
		PublicAccount: sess.Account,
		Token:         sess.Token,
		ExpiresAt:     sess.ExpiresAt,
	})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetInput
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req); err != nil {
		h.logger.Debugw("reset password failed", "err", err)
		h.writeErr(w, err)
		return
	}
	utilities.WriteOK(w, http.StatusOK, "Password reset successfully", nil)
}

func (h *Handler) RequestResetCode(w http.ResponseWriter, r *http.Request) {
	var req ResetCodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.auth.RequestResetCode(r.Context(), req.Username, req.MobileNumber); err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteOK(w, http.StatusAccepted, "If the details match an account, a code has been sent", nil)
}

// CurrentSession resolves the bearer token to its account.
func (h *Handler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.authorize(w, r)
	if !ok {
		return
	}
	utilities.WriteOK(w, http.StatusOK, "Session valid", acc)
}

// GetAccount returns another account's profile to any signed-in caller.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r); !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	acc, err := h.query.GetAccount(r.Context(), id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteOK(w, http.StatusOK, "User found", acc)
}

// GetActivities serves the caller's own history only; other ids look absent.
func (h *Handler) GetActivities(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authorize(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if id != caller.ID {
		h.writeErr(w, ErrNotFound)
		return
	}
	limit, ok := h.queryLimit(w, r)
	if !ok {
		return
	}
	page, err := h.query.GetActivities(r.Context(), id, activity.Page{Limit: limit, Cursor: r.URL.Query().Get("cursor")})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteOK(w, http.StatusOK, "Activities retrieved", page)
}

// RecentActivities lists the caller's newest events.
func (h *Handler) RecentActivities(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authorize(w, r)
	if !ok {
		return
	}
	limit, ok := h.queryLimit(w, r)
	if !ok {
		return
	}
	events, err := h.query.RecentActivities(r.Context(), caller.ID, limit)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteOK(w, http.StatusOK, "Activities retrieved", events)
}

// authorize resolves the bearer token, writing 401 when it is missing or invalid.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (*entity.PublicAccount, bool) {
	const prefix = "bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		utilities.WriteError(w, http.StatusUnauthorized, "missing session token")
		return nil, false
	}
	acc, err := h.auth.Authenticate(r.Context(), strings.TrimSpace(auth[len(prefix):]))
	if err != nil {
		h.writeErr(w, err)
		return nil, false
	}
	return acc, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		h.logger.Debugw("invalid payload", "err", err, "path", r.URL.Path)
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		utilities.WriteError(w, http.StatusBadRequest, "invalid account id")
		return 0, false
	}
	return id, true
}

func (h *Handler) queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		utilities.WriteError(w, http.StatusBadRequest, "invalid limit")
		return 0, false
	}
	return n, true
}

// writeErr maps service errors to status codes. Unknown errors never leak
// their text.
func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		utilities.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDuplicateUsername):
		utilities.WriteError(w, http.StatusConflict, "Username already exists")
	case errors.Is(err, ErrInvalidCredentials):
		utilities.WriteError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, ErrNotFound):
		utilities.WriteError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, ErrUnavailable):
		utilities.WriteError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		if !errors.Is(err, ErrInternal) {
			h.logger.Errorw("unexpected error", "err", err)
		}
		utilities.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
