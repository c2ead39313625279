package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wasil/internal/http/middleware"
	"wasil/internal/modules/order"
	"wasil/internal/types"
)

type OrderHandler struct {
	orders *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{orders: svc}
}

type createOrderReq struct {
	Items []struct {
		ProductID string `json:"product_id"`
		StoreID   string `json:"store_id"`
		Name      string `json:"name"`
		Quantity  int    `json:"quantity"`
		UnitPrice int64  `json:"unit_price"`
	} `json:"items"`
	Address struct {
		Label  string  `json:"label"`
		Street string  `json:"street"`
		City   string  `json:"city"`
		Lat    float64 `json:"lat"`
		Lng    float64 `json:"lng"`
	} `json:"address"`
	PaymentMethod string `json:"payment_method"`
	Price         int64  `json:"price"`
	DeliveryFee   int64  `json:"delivery_fee"`
	CompanyShare  int64  `json:"company_share"`
	PlatformShare int64  `json:"platform_share"`
	WalletUsed    int64  `json:"wallet_used"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}

	caller := middleware.Identity(c)
	items := make([]order.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, order.Item{
			ProductID: types.ID(it.ProductID),
			StoreID:   types.ID(it.StoreID),
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	o, err := h.orders.Create(c.Request.Context(), order.CreateCommand{
		UserID: caller.ID,
		Items:  items,
		Address: order.Address{
			Label:  req.Address.Label,
			Street: req.Address.Street,
			City:   req.Address.City,
			Point:  types.Point{Lat: req.Address.Lat, Lng: req.Address.Lng},
		},
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
		Price:         req.Price,
		DeliveryFee:   req.DeliveryFee,
		CompanyShare:  req.CompanyShare,
		PlatformShare: req.PlatformShare,
		WalletUsed:    req.WalletUsed,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, o)
}

func (h *OrderHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "bad order id")
		return
	}
	o, err := h.orders.Get(c.Request.Context(), types.ID(id), middleware.Identity(c))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *OrderHandler) ListMine(c *gin.Context) {
	caller := middleware.Identity(c)
	userID := caller.ID
	if q := c.Query("user_id"); q != "" && caller.IsAdmin() {
		userID = types.ID(q)
	}
	list, err := h.orders.ListByUser(c.Request.Context(), userID, caller)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": list})
}

func (h *OrderHandler) Assign(c *gin.Context) {
	id := c.Param("id")
	var req struct {
		DriverID string `json:"driver_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !isValidID(id) || !isValidID(req.DriverID) {
		writeError(c, http.StatusBadRequest, "order id and driver_id required")
		return
	}
	o, err := h.orders.AssignDriver(c.Request.Context(), order.AssignDriverCommand{
		OrderID:    types.ID(id),
		DriverID:   types.ID(req.DriverID),
		AssignedBy: middleware.Identity(c),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

// Accept lets a driver claim a ready order for themselves.
func (h *OrderHandler) Accept(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "bad order id")
		return
	}
	caller := middleware.Identity(c)
	o, err := h.orders.AssignDriver(c.Request.Context(), order.AssignDriverCommand{
		OrderID:    types.ID(id),
		DriverID:   caller.ID,
		AssignedBy: caller,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *OrderHandler) Start(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "bad order id")
		return
	}
	o, err := h.orders.StartDelivery(c.Request.Context(), order.StartDeliveryCommand{
		OrderID:  types.ID(id),
		DriverID: middleware.Identity(c).ID,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *OrderHandler) Complete(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "bad order id")
		return
	}
	var req struct {
		ImageRef  string `json:"image_ref"`
		Signature string `json:"signature"`
	}
	_ = c.ShouldBindJSON(&req) // proof is optional

	cmd := order.CompleteDeliveryCommand{
		OrderID:  types.ID(id),
		DriverID: middleware.Identity(c).ID,
	}
	if req.ImageRef != "" || req.Signature != "" {
		cmd.Proof = &order.Proof{ImageRef: req.ImageRef, Signature: req.Signature}
	}
	o, err := h.orders.CompleteDelivery(c.Request.Context(), cmd)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id := c.Param("id")
	var req struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !isValidID(id) || req.Status == "" {
		writeError(c, http.StatusBadRequest, "order id and status required")
		return
	}
	o, err := h.orders.UpdateStatus(c.Request.Context(), order.UpdateStatusCommand{
		OrderID:   types.ID(id),
		Status:    order.Status(req.Status),
		ChangedBy: middleware.Identity(c),
		Reason:    req.Reason,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "bad order id")
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	o, err := h.orders.Cancel(c.Request.Context(), order.CancelCommand{
		OrderID:     types.ID(id),
		Reason:      req.Reason,
		CancelledBy: middleware.Identity(c),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *OrderHandler) Return(c *gin.Context) {
	id := c.Param("id")
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !isValidID(id) || req.Reason == "" {
		writeError(c, http.StatusBadRequest, "order id and reason required")
		return
	}
	o, err := h.orders.Return(c.Request.Context(), order.ReturnCommand{
		OrderID:    types.ID(id),
		Reason:     req.Reason,
		ReturnedBy: middleware.Identity(c),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *OrderHandler) RefundReturned(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "bad order id")
		return
	}
	o, err := h.orders.RefundReturned(c.Request.Context(), order.RefundReturnedCommand{
		OrderID: types.ID(id),
		By:      middleware.Identity(c),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *OrderHandler) Rate(c *gin.Context) {
	id := c.Param("id")
	var req struct {
		Rating int `json:"rating"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !isValidID(id) {
		writeError(c, http.StatusBadRequest, "order id and rating required")
		return
	}
	err := h.orders.Rate(c.Request.Context(), order.RateCommand{
		OrderID: types.ID(id),
		UserID:  middleware.Identity(c).ID,
		Rating:  req.Rating,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"rating": req.Rating})
}

func (h *OrderHandler) AddNote(c *gin.Context) {
	id := c.Param("id")
	var req struct {
		Body       string `json:"body"`
		Visibility string `json:"visibility"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !isValidID(id) {
		writeError(c, http.StatusBadRequest, "order id and body required")
		return
	}
	if req.Visibility == "" {
		req.Visibility = string(order.NotePublic)
	}
	err := h.orders.AddNote(c.Request.Context(), order.AddNoteCommand{
		OrderID:    types.ID(id),
		Body:       req.Body,
		Visibility: order.NoteVisibility(req.Visibility),
		Author:     middleware.Identity(c),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"ok": true})
}
