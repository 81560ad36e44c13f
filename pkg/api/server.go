package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/swappin/params"
	"github.com/uhyunpark/swappin/pkg/app/core/revert"
	"github.com/uhyunpark/swappin/pkg/app/core/token"
	"github.com/uhyunpark/swappin/pkg/app/exchange"
)

// CallerHeader carries the caller address. The gateway in front of the API
// authenticates callers and sets it; the API trusts it as-is.
const CallerHeader = "X-Caller"

// Server handles REST API and WebSocket connections
type Server struct {
	app      *exchange.App
	router   *mux.Router
	hub      *Hub
	limiter  *CallerLimiter
	origins  []string
	gatherer prometheus.Gatherer
	logger   *zap.SugaredLogger
}

// NewServer creates a new API server. gatherer backs /metrics; nil disables it.
func NewServer(app *exchange.App, cfg params.API, gatherer prometheus.Gatherer, logger *zap.SugaredLogger) *Server {
	s := &Server{
		app:      app,
		router:   mux.NewRouter(),
		hub:      NewHub(logger),
		limiter:  NewCallerLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 0),
		origins:  cfg.AllowedOrigins,
		gatherer: gatherer,
		logger:   logger,
	}

	s.setupRoutes()
	return s
}

// Hub returns the websocket hub; register Hub.PublishCommit as an exchange commit hook
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.rateLimit)

	// Token endpoints
	api.HandleFunc("/tokens", s.handleGetTokens).Methods("GET")
	api.HandleFunc("/tokens/{token}", s.handleGetToken).Methods("GET")
	api.HandleFunc("/tokens/{token}/balances/{account}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/tokens/{token}/allowances/{owner}/{spender}", s.handleGetAllowance).Methods("GET")
	api.HandleFunc("/tokens/{token}/approve", s.handleApprove).Methods("POST")
	api.HandleFunc("/tokens/{token}/transfer", s.handleTransfer).Methods("POST")
	api.HandleFunc("/transfer-from", s.handleTransferFrom).Methods("POST")

	// Order book endpoints
	api.HandleFunc("/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/orders/{id:[0-9]+}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id:[0-9]+}/purchase", s.handlePurchase).Methods("POST")
	api.HandleFunc("/accounts/{address}/orders", s.handleGetAccountOrders).Methods("GET")

	// Raw call envelope
	api.HandleFunc("/calls", s.handleCall).Methods("POST")

	// Chain endpoints
	api.HandleFunc("/chain/status", s.handleGetChainStatus).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
}

// Handler returns the router wrapped with CORS
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", CallerHeader},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr and runs the websocket hub until ctx is done
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("api_listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api shutdown: %w", err)
		}
		return nil
	}
}

// rateLimit applies the per-caller token bucket, keyed by caller header or remote host
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(CallerHeader)
		if key == "" {
			key, _, _ = net.SplitHostPort(r.RemoteAddr)
		}
		if !s.limiter.Allow(key, time.Now()) {
			respondError(w, http.StatusTooManyRequests, "rate limited", key)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ==============================
// Token Handlers
// ==============================

func (s *Server) tokenInfo(t *token.Token) TokenInfo {
	return TokenInfo{
		Address:     t.Address.Hex(),
		Symbol:      t.Symbol,
		Name:        t.Name,
		Decimals:    t.Decimals,
		TotalSupply: s.app.TotalSupply(t.Address).Dec(),
	}
}

func (s *Server) handleGetTokens(w http.ResponseWriter, r *http.Request) {
	tokens := s.app.Tokens().List()
	response := make([]TokenInfo, len(tokens))
	for i, t := range tokens {
		response[i] = s.tokenInfo(t)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	t, ok := s.resolveToken(w, mux.Vars(r)["token"])
	if !ok {
		return
	}
	respondJSON(w, s.tokenInfo(t))
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	t, ok := s.resolveToken(w, vars["token"])
	if !ok {
		return
	}
	account, ok := parseAddress(w, "account", vars["account"])
	if !ok {
		return
	}
	respondJSON(w, BalanceResponse{
		Token:   t.Address.Hex(),
		Account: account.Hex(),
		Balance: s.app.BalanceOf(t.Address, account).Dec(),
	})
}

func (s *Server) handleGetAllowance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	t, ok := s.resolveToken(w, vars["token"])
	if !ok {
		return
	}
	owner, ok := parseAddress(w, "owner", vars["owner"])
	if !ok {
		return
	}
	spender, ok := parseAddress(w, "spender", vars["spender"])
	if !ok {
		return
	}
	respondJSON(w, AllowanceResponse{
		Token:     t.Address.Hex(),
		Owner:     owner.Hex(),
		Spender:   spender.Hex(),
		Allowance: s.app.Allowance(t.Address, owner, spender).Dec(),
	})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	t, ok := s.resolveToken(w, mux.Vars(r)["token"])
	if !ok {
		return
	}
	var req ApproveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	spender, ok := parseAddress(w, "spender", req.Spender)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}

	s.execute(w, &exchange.Call{
		Method:  exchange.MethodApprove,
		Caller:  caller,
		Token:   t.Address,
		Spender: spender,
		Amount:  amount,
	})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	t, ok := s.resolveToken(w, mux.Vars(r)["token"])
	if !ok {
		return
	}
	var req TransferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	to, ok := parseAddress(w, "to", req.To)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}

	s.execute(w, &exchange.Call{
		Method: exchange.MethodTransfer,
		Caller: caller,
		Token:  t.Address,
		To:     to,
		Amount: amount,
	})
}

func (s *Server) handleTransferFrom(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req TransferFromRequest
	if !decodeBody(w, r, &req) {
		return
	}
	t, ok := s.resolveToken(w, req.Token)
	if !ok {
		return
	}
	from, ok := parseAddress(w, "from", req.From)
	if !ok {
		return
	}
	to, ok := parseAddress(w, "to", req.To)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}

	s.execute(w, &exchange.Call{
		Method: exchange.MethodTransferFrom,
		Caller: caller,
		Token:  t.Address,
		From:   from,
		To:     to,
		Amount: amount,
	})
}

// ==============================
// Order Handlers
// ==============================

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req CreateOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	deposit, ok := s.resolveToken(w, req.DepositToken)
	if !ok {
		return
	}
	depositAmount, ok := parseAmount(w, "depositAmount", req.DepositAmount)
	if !ok {
		return
	}
	payment, ok := s.resolveToken(w, req.PaymentToken)
	if !ok {
		return
	}
	paymentAmount, ok := parseAmount(w, "paymentAmount", req.PaymentAmount)
	if !ok {
		return
	}

	s.execute(w, &exchange.Call{
		Method:        exchange.MethodCreateOrder,
		Caller:        caller,
		DepositToken:  deposit.Address,
		DepositAmount: depositAmount,
		PaymentToken:  payment.Address,
		PaymentAmount: paymentAmount,
	})
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id, ok := parseOrderID(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	var req PurchaseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	payment, ok := s.tokenAddress(w, req.PaymentToken)
	if !ok {
		return
	}
	paymentAmount, ok := parseAmount(w, "paymentAmount", req.PaymentAmount)
	if !ok {
		return
	}

	s.execute(w, &exchange.Call{
		Method:        exchange.MethodPurchaseTokens,
		Caller:        caller,
		OrderID:       id,
		Amount:        amount,
		PaymentToken:  payment,
		PaymentAmount: paymentAmount,
	})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	o, err := s.app.Order(id)
	if err != nil {
		s.respondCallError(w, err)
		return
	}
	respondJSON(w, orderInfo(o))
}

// handleGetOrders lists orders; ?status=open restricts to open ones
func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	orders := s.app.Orders(r.URL.Query().Get("status") == "open")
	response := make([]OrderInfo, len(orders))
	for i, o := range orders {
		response[i] = orderInfo(o)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetAccountOrders(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, "address", mux.Vars(r)["address"])
	if !ok {
		return
	}
	orders := s.app.OrdersBySeller(addr)
	response := make([]OrderInfo, len(orders))
	for i, o := range orders {
		response[i] = orderInfo(o)
	}
	respondJSON(w, response)
}

// handleCall executes a raw call envelope. The caller always comes from the header.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var call exchange.Call
	if !decodeBody(w, r, &call) {
		return
	}
	call.Caller = caller
	s.execute(w, &call)
}

func (s *Server) handleGetChainStatus(w http.ResponseWriter, r *http.Request) {
	st := s.app.Status()
	respondJSON(w, ChainStatus{
		Height:     st.Height,
		StateRoot:  st.Root.Hex(),
		Orders:     st.Orders,
		OpenOrders: st.OpenOrders,
		Tokens:     st.Tokens,
		Custody:    st.Custody.Hex(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func (s *Server) execute(w http.ResponseWriter, call *exchange.Call) {
	receipt, err := s.app.Execute(call)
	if err != nil {
		s.respondCallError(w, err)
		return
	}
	s.logger.Infow("call_committed", "method", call.Method, "caller", call.Caller.Hex(), "height", receipt.Height)
	respondJSON(w, CallResponse{
		Status:  "committed",
		Height:  receipt.Height,
		OrderID: receipt.OrderID,
		Events:  receipt.Events,
	})
}

// respondCallError maps reverts to 4xx with the verbatim reason; anything else is a 500
func (s *Server) respondCallError(w http.ResponseWriter, err error) {
	if rv, ok := revert.As(err); ok {
		status := http.StatusBadRequest
		switch rv.Kind {
		case revert.KindUnknownOrder, revert.KindUnknownToken:
			status = http.StatusNotFound
		case revert.KindCustodyCaller:
			status = http.StatusForbidden
		}
		respondError(w, status, rv.Reason, rv.Detail)
		return
	}
	if errors.Is(err, exchange.ErrInvalidCall) {
		respondError(w, http.StatusBadRequest, "invalid call", err.Error())
		return
	}
	s.logger.Errorw("call_failed", "err", err)
	respondError(w, http.StatusInternalServerError, "internal error", err.Error())
}

func (s *Server) resolveToken(w http.ResponseWriter, ref string) (*token.Token, bool) {
	t, err := s.app.Tokens().Resolve(ref)
	if err != nil {
		respondError(w, http.StatusNotFound, revert.ErrUnknownToken.Reason, err.Error())
		return nil, false
	}
	return t, true
}

// tokenAddress accepts any hex address as-is and resolves symbols through the registry
func (s *Server) tokenAddress(w http.ResponseWriter, ref string) (common.Address, bool) {
	if common.IsHexAddress(ref) {
		return common.HexToAddress(ref), true
	}
	t, ok := s.resolveToken(w, ref)
	if !ok {
		return common.Address{}, false
	}
	return t.Address, true
}

func callerFrom(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	h := r.Header.Get(CallerHeader)
	if !common.IsHexAddress(h) {
		respondError(w, http.StatusUnauthorized, "missing caller", CallerHeader+" must be a hex address")
		return common.Address{}, false
	}
	return common.HexToAddress(h), true
}

func parseAddress(w http.ResponseWriter, field, v string) (common.Address, bool) {
	if !common.IsHexAddress(v) {
		respondError(w, http.StatusBadRequest, "invalid address", field)
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

func parseAmount(w http.ResponseWriter, field, v string) (*uint256.Int, bool) {
	amount, err := uint256.FromDecimal(v)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", field+": "+err.Error())
		return nil, false
	}
	return amount, true
}

func parseOrderID(w http.ResponseWriter, v string) (uint64, bool) {
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", v)
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
