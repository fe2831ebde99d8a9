package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/matchengine/internal/exchange"
	"github.com/xtrntr/matchengine/internal/models"
	"github.com/xtrntr/matchengine/internal/money"
	"github.com/xtrntr/matchengine/internal/trade"
	"go.uber.org/zap"
)

// Store serves the persisted order and trade history
type Store interface {
	GetUserOrders(ctx context.Context, userID int) ([]models.OrderSnapshot, error)
	GetUserTrades(ctx context.Context, userID int) ([]trade.Record, error)
}

// Authenticator registers users and issues and verifies tokens
type Authenticator interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (string, error)
	GetUserFromToken(token string) (int, error)
}

type ctxKey int

const userIDKey ctxKey = iota

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Store       Store
	Exchange    *exchange.Exchange
	Auth        Authenticator
	Logger      *zap.SugaredLogger
	DepthLevels int
}

// NewHandler creates a new handler
func NewHandler(store Store, ex *exchange.Exchange, authService Authenticator, logger *zap.SugaredLogger, depthLevels int) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{Store: store, Exchange: ex, Auth: authService, Logger: logger, DepthLevels: depthLevels}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps matching-engine errors onto status codes
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, exchange.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.Logger.Errorw("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func userID(r *http.Request) (int, bool) {
	id, ok := r.Context().Value(userIDKey).(int)
	return id, ok
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		http.Error(w, `{"error": "Username and password required"}`, http.StatusBadRequest)
		return
	}

	user, err := h.Auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		h.Logger.Warnw("Registration failed", "username", req.Username, "error", err)
		http.Error(w, `{"error": "Failed to register user"}`, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	token, err := h.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		http.Error(w, `{"error": "Invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			http.Error(w, `{"error": "Authorization header required"}`, http.StatusUnauthorized)
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		id, err := h.Auth.GetUserFromToken(tokenString)
		if err != nil {
			http.Error(w, `{"error": "Invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PlaceOrder submits a limit order and returns its state and the trades it caused
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		Symbol   string          `json:"symbol"`
		Side     string          `json:"side"`
		Price    decimal.Decimal `json:"price"`
		Quantity decimal.Decimal `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	symbol, err := models.ParseSymbol(req.Symbol)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	side, err := models.ParseSide(req.Side)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	order, err := models.NewOrder(models.OrderParams{
		UserID:   uid,
		Symbol:   symbol,
		Side:     side,
		Price:    money.New(req.Price, symbol.Quote()),
		Quantity: req.Quantity,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	res, err := h.Exchange.Submit(r.Context(), order)
	if err != nil && res.Order.ID == uuid.Nil {
		h.writeEngineError(w, err)
		return
	}
	resp := placeOrderResponse{Result: res}
	if err != nil {
		// accepted and possibly traded; the client must not retry blindly
		h.Logger.Errorw("Order accepted with errors", "orderID", res.Order.ID, "userID", uid, "error", err)
		resp.Warning = "order accepted but not fully recorded"
	}
	writeJSON(w, http.StatusCreated, resp)
}

type placeOrderResponse struct {
	exchange.Result
	Warning string `json:"warning,omitempty"`
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error": "Invalid order ID"}`, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// CancelOrder cancels a resting order
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	snap, err := h.Exchange.Cancel(r.Context(), id, uid)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ReduceOrder cancels part of a resting order's remaining quantity
func (h *Handler) ReduceOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		ReduceBy decimal.Decimal `json:"reduce_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	snap, err := h.Exchange.Reduce(r.Context(), id, uid, req.ReduceBy)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetUserOrders retrieves a user's orders
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	orders, err := h.Store.GetUserOrders(r.Context(), uid)
	if err != nil {
		h.Logger.Errorw("Failed to retrieve orders", "userID", uid, "error", err)
		http.Error(w, `{"error": "Failed to retrieve orders"}`, http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []models.OrderSnapshot{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetUserTrades retrieves a user's trade history
func (h *Handler) GetUserTrades(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	trades, err := h.Store.GetUserTrades(r.Context(), uid)
	if err != nil {
		h.Logger.Errorw("Failed to retrieve trades", "userID", uid, "error", err)
		http.Error(w, `{"error": "Failed to retrieve trades"}`, http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []trade.Record{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetOrderBook returns the summary and depth of one symbol's book
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	symbol, err := models.ParseSymbol(chi.URLParam(r, "symbol"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	levels := h.DepthLevels
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, `{"error": "depth must be a positive integer"}`, http.StatusBadRequest)
			return
		}
		levels = n
	}

	summary, err := h.Exchange.Summary(symbol)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	depth, err := h.Exchange.Depth(symbol, levels)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary": summary,
		"depth":   depth,
	})
}

// GetMarket summarises every book
func (h *Handler) GetMarket(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Exchange.Overview())
}

// Routes mounts the handlers on r
func (h *Handler) Routes(r chi.Router) {
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Get("/books/{symbol}", h.GetOrderBook)
	r.Get("/market", h.GetMarket)

	r.Group(func(r chi.Router) {
		r.Use(h.JWTAuthMiddleware)
		r.Post("/orders", h.PlaceOrder)
		r.Get("/orders", h.GetUserOrders)
		r.Patch("/orders/{id}", h.ReduceOrder)
		r.Delete("/orders/{id}", h.CancelOrder)
		r.Get("/trades", h.GetUserTrades)
	})
}
