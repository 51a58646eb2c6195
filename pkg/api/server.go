// Package api exposes the venue over REST and WebSocket. It translates
// HTTP payloads into core operations and core error kinds into HTTP
// status codes; all state lives in the app layer.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/venuelabs/venue/pkg/app/core/errs"
	"github.com/venuelabs/venue/pkg/app/core/feevault"
	"github.com/venuelabs/venue/pkg/app/core/gov"
	"github.com/venuelabs/venue/pkg/app/core/orderbook"
	venueapp "github.com/venuelabs/venue/pkg/app/venue"
	"github.com/venuelabs/venue/pkg/util"
)

// Server handles REST API and WebSocket connections.
type Server struct {
	app    *venueapp.App
	clock  util.Clock
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

// NewServer creates a new API server and hooks fill broadcasting into
// the app.
func NewServer(app *venueapp.App, clock util.Clock, log *zap.SugaredLogger) *Server {
	s := &Server{
		app:    app,
		clock:  clock,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
	}

	app.OnFill = func(f orderbook.Fill) {
		s.hub.BroadcastToChannel("fills", FillUpdate{
			Type:    "fill",
			TakerID: f.TakerID,
			MakerID: f.MakerID,
			TokenX:  f.TokenX,
			TokenY:  f.TokenY,
			FilledX: f.FilledX,
			PaidY:   f.PaidY,
			Fee:     f.Fee,
			Height:  clock.CurrentBlock(),
		})
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Order book
	api.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/count", s.handleOrderCount).Methods("GET")
	api.HandleFunc("/orders/{id:[0-9]+}", s.handleGetOrder).Methods("GET")

	// Fee vault
	api.HandleFunc("/fees/total", s.handleTotalFees).Methods("GET")
	api.HandleFunc("/fees/add", s.handleAddFees).Methods("POST")
	api.HandleFunc("/fees/withdraw", s.handleWithdrawFees).Methods("POST")
	api.HandleFunc("/fees/distribute", s.handleDistributeFees).Methods("POST")
	api.HandleFunc("/fees/{address}", s.handleFeeBalance).Methods("GET")

	// Governance
	api.HandleFunc("/proposals", s.handleCreateProposal).Methods("POST")
	api.HandleFunc("/proposals/count", s.handleProposalCount).Methods("GET")
	api.HandleFunc("/proposals/{id:[0-9]+}", s.handleGetProposal).Methods("GET")
	api.HandleFunc("/proposals/{id:[0-9]+}/vote", s.handleVote).Methods("POST")
	api.HandleFunc("/proposals/{id:[0-9]+}/end", s.handleEndProposal).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the API server.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ==============================
// Order book handlers
// ==============================

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	trader, ok := parseAddress(w, req.Trader)
	if !ok {
		return
	}
	var side orderbook.Side
	switch req.Side {
	case "buy":
		side = orderbook.Buy
	case "sell":
		side = orderbook.Sell
	default:
		respondError(w, http.StatusBadRequest, "invalid side", "expected buy or sell")
		return
	}

	id, err := s.app.CreateOrder(trader, req.TokenX, req.TokenY, req.AmountX, req.AmountY, side)
	if err != nil {
		respondCoreError(w, err)
		return
	}

	s.log.Infow("order_created", "id", id, "trader", trader.Hex(),
		"pair", req.TokenX+"/"+req.TokenY, "side", req.Side)
	respondJSON(w, CreateOrderResponse{OrderID: id})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}
	if err := s.app.CancelOrder(caller, req.OrderID); err != nil {
		respondCoreError(w, err)
		return
	}

	s.log.Infow("order_cancelled", "id", req.OrderID, "caller", caller.Hex())
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}

	o, err := s.app.GetOrder(id)
	if err != nil {
		respondCoreError(w, err)
		return
	}

	respondJSON(w, OrderInfo{
		ID:         o.ID,
		Trader:     o.Trader.Hex(),
		TokenX:     o.TokenX,
		TokenY:     o.TokenY,
		AmountX:    o.AmountX,
		AmountY:    o.AmountY,
		Side:       o.Side.String(),
		Status:     o.Status.String(),
		RemainingX: o.RemainingX,
		CreatedAt:  o.CreatedAt,
	})
}

func (s *Server) handleOrderCount(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, CountResponse{Count: s.app.OrderCount()})
}

// ==============================
// Fee vault handlers
// ==============================

func (s *Server) handleTotalFees(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, TotalFeesResponse{Total: s.app.TotalFees()})
}

func (s *Server) handleFeeBalance(w http.ResponseWriter, r *http.Request) {
	user, ok := parseAddress(w, mux.Vars(r)["address"])
	if !ok {
		return
	}
	respondJSON(w, FeeBalanceResponse{User: user.Hex(), Balance: s.app.FeeBalance(user)})
}

func (s *Server) handleAddFees(w http.ResponseWriter, r *http.Request) {
	var req AddFeesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}
	if err := s.app.AddFees(caller, req.Amount); err != nil {
		respondCoreError(w, err)
		return
	}

	s.log.Infow("fees_added", "caller", caller.Hex(), "amount", req.Amount)
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleWithdrawFees(w http.ResponseWriter, r *http.Request) {
	var req WithdrawFeesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}
	if err := s.app.WithdrawFees(caller, req.Amount); err != nil {
		respondCoreError(w, err)
		return
	}

	s.log.Infow("fees_withdrawn", "caller", caller.Hex(), "amount", req.Amount)
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleDistributeFees(w http.ResponseWriter, r *http.Request) {
	var req DistributeFeesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}
	recipients := make([]feevault.Recipient, len(req.Recipients))
	for i, rec := range req.Recipients {
		user, ok := parseAddress(w, rec.User)
		if !ok {
			return
		}
		recipients[i] = feevault.Recipient{User: user, Share: rec.Share}
	}
	if err := s.app.DistributeFees(caller, recipients); err != nil {
		respondCoreError(w, err)
		return
	}

	s.log.Infow("fees_distributed", "caller", caller.Hex(), "recipients", len(recipients))
	respondJSON(w, StatusResponse{Status: "ok"})
}

// ==============================
// Governance handlers
// ==============================

func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	var req CreateProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	proposer, ok := parseAddress(w, req.Proposer)
	if !ok {
		return
	}
	action, err := parseAction(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid action", err.Error())
		return
	}

	id, err := s.app.CreateProposal(proposer, req.Description, action, req.Duration)
	if err != nil {
		respondCoreError(w, err)
		return
	}

	p, _ := s.app.GetProposal(id)
	s.hub.BroadcastToChannel("proposals", ProposalUpdate{
		Type: "proposal", ID: id, Status: p.Status.String(), EndBlock: p.EndBlock,
	})
	s.log.Infow("proposal_created", "id", id, "proposer", proposer.Hex())
	respondJSON(w, CreateProposalResponse{ProposalID: id})
}

func parseAction(req CreateProposalRequest) (gov.Action, error) {
	switch req.ActionKind {
	case "", "none":
		return gov.Action{Kind: gov.ActionNone}, nil
	case "set_fee_rate":
		return gov.Action{Kind: gov.ActionSetFeeRate, FeeBps: req.FeeBps}, nil
	case "set_distributor":
		if !common.IsHexAddress(req.Account) {
			return gov.Action{}, errors.New("set_distributor requires a valid account")
		}
		return gov.Action{Kind: gov.ActionSetDistributor, Account: common.HexToAddress(req.Account)}, nil
	case "credit_fees":
		return gov.Action{Kind: gov.ActionCreditFees, Amount: req.Amount}, nil
	default:
		return gov.Action{}, errors.New("unknown action kind " + req.ActionKind)
	}
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid proposal id", err.Error())
		return
	}

	var req VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	voter, ok := parseAddress(w, req.Voter)
	if !ok {
		return
	}

	if err := s.app.Vote(id, voter, req.Amount, req.VoteFor); err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleEndProposal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid proposal id", err.Error())
		return
	}

	if err := s.app.EndProposal(id); err != nil {
		respondCoreError(w, err)
		return
	}

	p, _ := s.app.GetProposal(id)
	s.hub.BroadcastToChannel("proposals", ProposalUpdate{
		Type: "proposal", ID: id, Status: p.Status.String(), EndBlock: p.EndBlock,
	})
	s.log.Infow("proposal_ended", "id", id, "status", p.Status.String())
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid proposal id", err.Error())
		return
	}

	p, err := s.app.GetProposal(id)
	if err != nil {
		respondCoreError(w, err)
		return
	}

	respondJSON(w, ProposalInfo{
		ID:           p.ID,
		Proposer:     p.Proposer.Hex(),
		Description:  p.Description,
		VotesFor:     p.VotesFor,
		VotesAgainst: p.VotesAgainst,
		Status:       p.Status.String(),
		EndBlock:     p.EndBlock,
	})
}

func (s *Server) handleProposalCount(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, CountResponse{Count: s.app.ProposalCount()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func parseAddress(w http.ResponseWriter, raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "invalid address", raw)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg string, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errMsg,
		Message: detail,
	})
}

// respondCoreError maps core error kinds to HTTP status codes.
func respondCoreError(w http.ResponseWriter, err error) {
	status := http.StatusConflict
	switch {
	case errors.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, errs.ErrInvalidAmount), errors.Is(err, errs.ErrSharesMismatch):
		status = http.StatusBadRequest
	}
	respondError(w, status, "operation rejected", err.Error())
}
