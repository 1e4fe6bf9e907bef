package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/stock-trading-ledger/internal/ledger"
)

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type tradeRequest struct {
	Symbol string          `json:"symbol"`
	Shares json.RawMessage `json:"shares"`
}

type openAccountRequest struct {
	AccountID string `json:"account_id"`
}

type cashResponse struct {
	AccountID string          `json:"account_id"`
	Cash      decimal.Decimal `json:"cash"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleOpenAccount opens an account with the configured starting cash. The
// id comes from the body, then the account header, else it is generated.
func (s *Server) handleOpenAccount(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "invalid_input", "invalid request body")
			return
		}
	}
	id := req.AccountID
	if strings.TrimSpace(id) == "" {
		id = r.Header.Get(AccountHeader)
	}

	account, err := s.ledger.OpenAccount(r.Context(), id, s.startingCash)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, account)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.ledger.Quote(r.Context(), mux.Vars(r)["symbol"])
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	symbol, shares, ok := decodeTrade(w, r)
	if !ok {
		return
	}
	result, err := s.ledger.Buy(r.Context(), accountFrom(r.Context()), symbol, shares)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	symbol, shares, ok := decodeTrade(w, r)
	if !ok {
		return
	}
	result, err := s.ledger.Sell(r.Context(), accountFrom(r.Context()), symbol, shares)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	valuation, err := s.ledger.ListHoldingsWithValuation(r.Context(), accountFrom(r.Context()))
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, valuation)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.ledger.ListHistory(r.Context(), accountFrom(r.Context()))
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

func (s *Server) handleCash(w http.ResponseWriter, r *http.Request) {
	id := accountFrom(r.Context())
	cash, err := s.ledger.GetCashBalance(r.Context(), id)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cashResponse{AccountID: id, Cash: cash})
}

func decodeTrade(w http.ResponseWriter, r *http.Request) (string, int64, bool) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", "invalid request body")
		return "", 0, false
	}
	shares, err := parseShares(req.Shares)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return "", 0, false
	}
	return req.Symbol, shares, true
}

// parseShares accepts a JSON integer or a string holding one. Sign is checked
// by the ledger.
func parseShares(raw json.RawMessage) (int64, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return 0, errors.New("must provide number of shares")
	}
	text = strings.TrimSpace(strings.Trim(text, `"`))

	d, err := decimal.NewFromString(text)
	if err != nil {
		return 0, fmt.Errorf("shares must be a whole number, got %s", string(raw))
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("shares must be a whole number, got %s", d)
	}
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || d.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, fmt.Errorf("shares out of range: %s", d)
	}
	return d.IntPart(), nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrAccountNotFound), errors.Is(err, ledger.ErrSymbolNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ledger.ErrInsufficientShares):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrQuoteUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondLedgerError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		// store details stay in the log
		s.logger.Error("request failed", zap.Error(err))
		message = "internal error, please try again"
	}
	respondError(w, status, ledger.Kind(err), message)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   error,
		Message: message,
	})
}
