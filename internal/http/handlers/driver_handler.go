package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wasil/internal/config"
	"wasil/internal/http/middleware"
	"wasil/internal/modules/driver"
	"wasil/internal/modules/order"
	"wasil/internal/types"
)

type DriverHandler struct {
	drivers *driver.Service
	orders  *order.Service
	cfg     config.MatchingConfig
}

func NewDriverHandler(drivers *driver.Service, orders *order.Service, cfg config.MatchingConfig) *DriverHandler {
	return &DriverHandler{drivers: drivers, orders: orders, cfg: cfg}
}

// NearbyOrders returns the ready pool ranked for the calling driver: nearest
// first, residence-city orders boosted, everything beyond the match radius
// dropped.
func (h *DriverHandler) NearbyOrders(c *gin.Context) {
	caller := middleware.Identity(c)
	d, err := h.drivers.FindByID(c.Request.Context(), caller.ID)
	if err != nil {
		writeDriverError(c, err)
		return
	}
	ready, err := h.orders.ListReady(c.Request.Context())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	ranked := driver.RankReadyOrders(d, ready, h.cfg.RadiusKm, h.cfg.CityBoostKm)
	writeJSON(c, http.StatusOK, gin.H{"orders": ranked})
}

func (h *DriverHandler) SetAvailability(c *gin.Context) {
	var req struct {
		IsAvailable *bool `json:"is_available"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.IsAvailable == nil {
		writeError(c, http.StatusBadRequest, "is_available required")
		return
	}
	caller := middleware.Identity(c)
	if err := h.drivers.SetAvailability(c.Request.Context(), caller.ID, *req.IsAvailable); err != nil {
		writeDriverError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"is_available": *req.IsAvailable})
}

func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "lat and lng required")
		return
	}
	caller := middleware.Identity(c)
	p := types.Point{Lat: req.Lat, Lng: req.Lng}
	if p.Zero() {
		writeError(c, http.StatusBadRequest, "lat and lng required")
		return
	}
	if err := h.drivers.UpdateLocation(c.Request.Context(), caller.ID, p); err != nil {
		writeDriverError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ok": true})
}

func writeDriverError(c *gin.Context, err error) {
	switch err {
	case driver.ErrNotFound:
		writeError(c, http.StatusNotFound, err.Error())
	case driver.ErrBanned:
		writeError(c, http.StatusForbidden, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
