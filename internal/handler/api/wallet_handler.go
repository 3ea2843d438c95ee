package api

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"panelhub/internal/apperr"
	"panelhub/internal/audit"
)

type WalletHandler struct {
	*Deps
}

func NewWalletHandler(d *Deps) *WalletHandler {
	return &WalletHandler{Deps: d}
}

// Mine returns the caller's balance.
// GET /api/wallet
func (h *WalletHandler) Mine(c echo.Context) error {
	return h.balance(c, callerOf(c).ID)
}

// MyTransactions returns the caller's ledger, newest first.
// GET /api/wallet/transactions
func (h *WalletHandler) MyTransactions(c echo.Context) error {
	return h.history(c, callerOf(c).ID)
}

// Get returns any user's balance.
// GET /api/wallets/:user_id
func (h *WalletHandler) Get(c echo.Context) error {
	id, err := h.userParam(c)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return h.balance(c, id)
}

// Transactions returns any user's ledger.
// GET /api/wallets/:user_id/transactions
func (h *WalletHandler) Transactions(c echo.Context) error {
	id, err := h.userParam(c)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return h.history(c, id)
}

type adjustRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

// Adjust credits or debits a wallet.
// POST /api/wallets/:user_id/adjust
func (h *WalletHandler) Adjust(c echo.Context) error {
	id, err := h.userParam(c)
	if err != nil {
		return h.errorResponse(c, err)
	}
	var req adjustRequest
	if err := bind(c, &req); err != nil {
		return h.errorResponse(c, err)
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manual adjustment"
	}

	w, entry, err := h.Ledger.Adjust(id, req.Amount.Round(2), reason)
	if err != nil {
		return h.errorResponse(c, err)
	}
	h.Audit.Record(audit.Event{
		ActorID: callerOf(c).ID,
		Action:  "wallet.adjust",
		Target:  "wallet",
		Meta: map[string]interface{}{
			"user_id": id,
			"amount":  entry.Amount.StringFixed(2),
			"balance": w.Balance.StringFixed(2),
			"reason":  reason,
		},
	})
	return successResponse(c, "Wallet adjusted", map[string]interface{}{
		"wallet":      w,
		"transaction": entry,
	})
}

func (h *WalletHandler) userParam(c echo.Context) (uint, error) {
	id, err := idParam(c, "user_id")
	if err != nil {
		return 0, err
	}
	if _, err := h.Repos.User.FindByID(id); err != nil {
		return 0, lookupError(err, apperr.NotFound, "user not found")
	}
	return id, nil
}

func (h *WalletHandler) balance(c echo.Context, userID uint) error {
	w, err := h.Ledger.Balance(userID)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return successResponse(c, "Successful", w)
}

func (h *WalletHandler) history(c echo.Context, userID uint) error {
	page, limit := pageParams(c)
	rows, total, err := h.Ledger.History(userID, limit, page)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return successResponse(c, "Successful", paginatedResponse(rows, total, page, limit))
}
