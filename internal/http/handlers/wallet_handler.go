package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"wasil/internal/http/middleware"
	"wasil/internal/modules/wallet"
	"wasil/internal/types"
)

type WalletHandler struct {
	wallets *wallet.Service
}

func NewWalletHandler(svc *wallet.Service) *WalletHandler {
	return &WalletHandler{wallets: svc}
}

func (h *WalletHandler) Get(c *gin.Context) {
	owner, ok := h.resolveOwner(c)
	if !ok {
		return
	}
	w, err := h.wallets.Get(c.Request.Context(), owner)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, w)
}

func (h *WalletHandler) Transactions(c *gin.Context) {
	owner, ok := h.resolveOwner(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.wallets.Transactions(c.Request.Context(), owner, limit)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"transactions": list})
}

// Credit is an admin operation: manual topups and goodwill rewards.
func (h *WalletHandler) Credit(c *gin.Context) {
	var req struct {
		OwnerID     string `json:"owner_id"`
		Amount      int64  `json:"amount"`
		Method      string `json:"method"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !isValidID(req.OwnerID) {
		writeError(c, http.StatusBadRequest, "owner_id and amount required")
		return
	}
	if req.Method == "" {
		req.Method = string(wallet.MethodTransfer)
	}
	err := h.wallets.Credit(c.Request.Context(), types.ID(req.OwnerID), req.Amount, wallet.Method(req.Method), req.Description)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ok": true})
}

// resolveOwner picks whose wallet the call addresses: the caller's own, or an
// arbitrary owner_id for admins.
func (h *WalletHandler) resolveOwner(c *gin.Context) (types.ID, bool) {
	caller := middleware.Identity(c)
	owner := caller.ID
	if q := c.Query("owner_id"); q != "" {
		if !caller.IsAdmin() {
			writeError(c, http.StatusForbidden, "forbidden")
			return "", false
		}
		if !isValidID(q) {
			writeError(c, http.StatusBadRequest, "bad owner_id")
			return "", false
		}
		owner = types.ID(q)
	}
	return owner, true
}
