package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vintrack/cellar/internal/core/domain"
	"github.com/vintrack/cellar/internal/core/service"
)

type HTTPHandler struct {
	auth    *service.AuthService
	ledger  *service.LedgerService
	reports *service.ReportService
	audits  *service.AuditService
	logger  *slog.Logger
}

func NewHTTPHandler(auth *service.AuthService, ledger *service.LedgerService, reports *service.ReportService, audits *service.AuditService, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{auth: auth, ledger: ledger, reports: reports, audits: audits, logger: logger}
}

func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheck)

	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("POST /api/auth/forgot-password", h.ForgotPassword)
	mux.HandleFunc("POST /api/auth/reset-password", h.ResetPassword)
	mux.HandleFunc("POST /api/auth/logout", h.withAuth(h.Logout))
	mux.HandleFunc("POST /api/auth/refresh", h.withAuth(h.Refresh))
	mux.HandleFunc("PUT /api/auth/password", h.withAuth(h.ChangePassword))
	mux.HandleFunc("GET /api/auth/me", h.withAuth(h.Me))

	mux.HandleFunc("POST /api/inventory/in", h.withAuth(h.StockIn))
	mux.HandleFunc("POST /api/inventory/out", h.withAuth(h.StockOut))
	mux.HandleFunc("GET /api/inventory", h.withAuth(h.ListMovements))
	mux.HandleFunc("GET /api/inventory/{id}", h.withAuth(h.GetMovement))
	mux.HandleFunc("GET /api/inventory/wine/{wineID}", h.withAuth(h.WineMovements))

	mux.HandleFunc("GET /api/dashboard/summary", h.withAuth(h.Summary))
	mux.HandleFunc("GET /api/dashboard/trends", h.withAuth(h.Trends))
	mux.HandleFunc("GET /api/dashboard/distribution/{dimension}", h.withAuth(h.Distribution))
	mux.HandleFunc("GET /api/dashboard/alerts", h.withAuth(h.Alerts))

	mux.HandleFunc("GET /api/logs", h.withAuth(h.ListLogs))
	mux.HandleFunc("GET /api/logs/{id}", h.withAuth(h.GetLog))
}

type authedHandler func(w http.ResponseWriter, r *http.Request, user *domain.User)

// withAuth validates the bearer token and hands the resolved actor to the
// wrapped handler.
func (h *HTTPHandler) withAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			h.writeError(w, r, domain.ErrInvalidToken)
			return
		}
		user, err := h.auth.Validate(r.Context(), token)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next(w, r, user)
	}
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type loginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        userResponse `json:"user"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name, Role: string(u.Role), IsActive: u.IsActive}
}

func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "email and password are required"})
		return
	}

	session, err := h.auth.Login(r.Context(), req.Email, req.Password, req.RememberMe, clientIP(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: session.Token,
		TokenType:   "bearer",
		ExpiresAt:   session.ExpiresAt,
		User:        toUserResponse(session.User),
	})
}

func (h *HTTPHandler) Logout(w http.ResponseWriter, r *http.Request, user *domain.User) {
	if err := h.auth.Logout(r.Context(), user, clientIP(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (h *HTTPHandler) Refresh(w http.ResponseWriter, r *http.Request, user *domain.User) {
	session, err := h.auth.Refresh(r.Context(), user)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: session.Token,
		TokenType:   "bearer",
		ExpiresAt:   session.ExpiresAt,
		User:        toUserResponse(session.User),
	})
}

func (h *HTTPHandler) Me(w http.ResponseWriter, r *http.Request, user *domain.User) {
	writeJSON(w, http.StatusOK, toUserResponse(*user))
}

func (h *HTTPHandler) ChangePassword(w http.ResponseWriter, r *http.Request, user *domain.User) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := h.auth.ChangePassword(r.Context(), user, req.CurrentPassword, req.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "password changed"})
}

func (h *HTTPHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.auth.IssueResetToken(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if token != "" {
		// Mail delivery is out of scope; surface the token in the log the way
		// a dev deployment would.
		h.logger.Info("password reset token issued", "email", req.Email, "token", token)
	}
	// Same response whether or not the account exists.
	writeJSON(w, http.StatusOK, messageResponse{Message: "if the email exists, a reset link has been sent"})
}

func (h *HTTPHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := h.auth.ConsumeResetToken(r.Context(), req.Token, req.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "password reset"})
}

type stockRequest struct {
	WineID   int64  `json:"wine_id"`
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
}

type movementResponse struct {
	ID            int64     `json:"id"`
	WineID        int64     `json:"wine_id"`
	Direction     string    `json:"direction"`
	Quantity      int       `json:"quantity"`
	Reason        string    `json:"reason,omitempty"`
	PerformedBy   int64     `json:"performed_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	WineName      string    `json:"wine_name,omitempty"`
	PerformerName string    `json:"performer_name,omitempty"`
}

func toMovementResponse(mv domain.Movement) movementResponse {
	return movementResponse{
		ID:            mv.ID,
		WineID:        mv.WineID,
		Direction:     string(mv.Direction),
		Quantity:      mv.Quantity,
		Reason:        mv.Reason,
		PerformedBy:   mv.PerformedBy,
		CreatedAt:     mv.CreatedAt,
		WineName:      mv.WineName,
		PerformerName: mv.PerformerName,
	}
}

func (h *HTTPHandler) StockIn(w http.ResponseWriter, r *http.Request, user *domain.User) {
	h.applyStock(w, r, user, h.ledger.StockIn)
}

func (h *HTTPHandler) StockOut(w http.ResponseWriter, r *http.Request, user *domain.User) {
	h.applyStock(w, r, user, h.ledger.StockOut)
}

func (h *HTTPHandler) applyStock(w http.ResponseWriter, r *http.Request, user *domain.User,
	apply func(ctx context.Context, wineID int64, quantity int, reason string, actor *domain.User) (*domain.Movement, error)) {
	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	mv, err := apply(r.Context(), req.WineID, req.Quantity, req.Reason, user)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementResponse(*mv))
}

type movementPageResponse struct {
	Items      []movementResponse `json:"items"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
	TotalPages int                `json:"total_pages"`
}

func (h *HTTPHandler) ListMovements(w http.ResponseWriter, r *http.Request, user *domain.User) {
	q := r.URL.Query()
	f := domain.MovementFilter{
		WineID:      queryInt64(q.Get("wine_id")),
		Direction:   domain.Direction(q.Get("direction")),
		PerformedBy: queryInt64(q.Get("performed_by")),
		From:        queryTime(q.Get("start_date")),
		To:          queryTime(q.Get("end_date")),
	}
	page, err := h.ledger.ListMovements(r.Context(), f, queryInt(q.Get("page"), 1), queryInt(q.Get("page_size"), 10))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]movementResponse, 0, len(page.Items))
	for _, mv := range page.Items {
		items = append(items, toMovementResponse(mv))
	}
	writeJSON(w, http.StatusOK, movementPageResponse{
		Items:      items,
		Total:      page.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
	})
}

func (h *HTTPHandler) GetMovement(w http.ResponseWriter, r *http.Request, user *domain.User) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, r, domain.ErrMovementNotFound)
		return
	}
	mv, err := h.ledger.GetMovement(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementResponse(*mv))
}

func (h *HTTPHandler) WineMovements(w http.ResponseWriter, r *http.Request, user *domain.User) {
	wineID, err := strconv.ParseInt(r.PathValue("wineID"), 10, 64)
	if err != nil {
		h.writeError(w, r, domain.ErrWineNotFound)
		return
	}
	movements, err := h.ledger.MovementsForWine(r.Context(), wineID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]movementResponse, 0, len(movements))
	for _, mv := range movements {
		items = append(items, toMovementResponse(mv))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *HTTPHandler) Summary(w http.ResponseWriter, r *http.Request, user *domain.User) {
	sum, err := h.reports.Summary(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *HTTPHandler) Trends(w http.ResponseWriter, r *http.Request, user *domain.User) {
	points, err := h.reports.Trends(r.Context(), queryInt(r.URL.Query().Get("days"), 7))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (h *HTTPHandler) Distribution(w http.ResponseWriter, r *http.Request, user *domain.User) {
	buckets, err := h.reports.Distribution(r.Context(), r.PathValue("dimension"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

func (h *HTTPHandler) Alerts(w http.ResponseWriter, r *http.Request, user *domain.User) {
	wines, err := h.reports.LowStock(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	type alertWine struct {
		ID                int64  `json:"id"`
		Name              string `json:"name"`
		Region            string `json:"region"`
		CurrentStock      int    `json:"current_stock"`
		LowStockThreshold int    `json:"low_stock_threshold"`
		Status            string `json:"status"`
	}
	items := make([]alertWine, 0, len(wines))
	for _, wine := range wines {
		items = append(items, alertWine{
			ID:                wine.ID,
			Name:              wine.Name,
			Region:            wine.Region,
			CurrentStock:      wine.CurrentStock,
			LowStockThreshold: wine.LowStockThreshold,
			Status:            string(wine.StockStatus()),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"low_stock_count": len(items),
		"items":           items,
	})
}

type auditResponse struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id,omitempty"`
	UserName   string    `json:"user_name,omitempty"`
	ActionType string    `json:"action_type"`
	EntityType string    `json:"entity_type,omitempty"`
	EntityID   int64     `json:"entity_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toAuditResponse(entry domain.AuditLog) auditResponse {
	return auditResponse{
		ID:         entry.ID,
		UserID:     entry.UserID,
		UserName:   entry.UserName,
		ActionType: string(entry.ActionType),
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Details:    entry.Details,
		IPAddress:  entry.IPAddress,
		CreatedAt:  entry.CreatedAt,
	}
}

func (h *HTTPHandler) ListLogs(w http.ResponseWriter, r *http.Request, user *domain.User) {
	q := r.URL.Query()
	f := domain.AuditFilter{
		UserID:     queryInt64(q.Get("user_id")),
		ActionType: domain.ActionType(q.Get("action_type")),
		EntityType: q.Get("entity_type"),
		From:       queryTime(q.Get("start_date")),
		To:         queryTime(q.Get("end_date")),
	}
	page, err := h.audits.List(r.Context(), user, f, queryInt(q.Get("page"), 1), queryInt(q.Get("page_size"), 20))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]auditResponse, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, toAuditResponse(entry))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":       items,
		"total":       page.Total,
		"page":        page.Page,
		"page_size":   page.PageSize,
		"total_pages": page.TotalPages,
	})
}

func (h *HTTPHandler) GetLog(w http.ResponseWriter, r *http.Request, user *domain.User) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, r, domain.ErrAuditLogNotFound)
		return
	}
	entry, err := h.audits.Get(r.Context(), user, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditResponse(*entry))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error        string `json:"error"`
	CurrentStock *int   `json:"current_stock,omitempty"`
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *domain.InsufficientStockError
	var invalid *domain.ValidationError

	switch {
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrAccountDisabled), errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrWineNotFound), errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrMovementNotFound), errors.Is(err, domain.ErrAuditLogNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrEmailTaken):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), CurrentStock: &insufficient.Current})
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func queryInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func queryTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
