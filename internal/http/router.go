// Package http registers the REST routes and the websocket endpoint and owns
// the server lifecycle.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"wasil/internal/auth"
	"wasil/internal/config"
	"wasil/internal/gateway"
	"wasil/internal/http/handlers"
	"wasil/internal/http/middleware"
	"wasil/internal/modules/driver"
	"wasil/internal/modules/order"
	"wasil/internal/modules/wallet"
	"wasil/internal/types"
)

type RouterDeps struct {
	Orders   *order.Service
	Drivers  *driver.Service
	Wallets  *wallet.Service
	Gateway  *gateway.Gateway
	Verifier auth.Verifier
	Matching config.MatchingConfig
	Log      *logrus.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	// The websocket handshake carries its own token; gateway rejects inline.
	r.GET("/ws", gin.WrapF(deps.Gateway.HandleWS))

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	orderHandler := handlers.NewOrderHandler(deps.Orders)
	orders := api.Group("/orders")
	orders.POST("", middleware.RequireRole(types.RoleCustomer), orderHandler.Create)
	orders.GET("", orderHandler.ListMine)
	orders.GET("/:id", orderHandler.Get)
	orders.POST("/:id/assign", middleware.RequireRole(), orderHandler.Assign)
	orders.POST("/:id/accept", middleware.RequireRole(types.RoleDriver), orderHandler.Accept)
	orders.POST("/:id/start", middleware.RequireRole(types.RoleDriver), orderHandler.Start)
	orders.POST("/:id/complete", middleware.RequireRole(types.RoleDriver), orderHandler.Complete)
	orders.POST("/:id/status", middleware.RequireRole(types.RoleVendor, types.RoleDriver), orderHandler.UpdateStatus)
	orders.POST("/:id/cancel", orderHandler.Cancel)
	orders.POST("/:id/return", middleware.RequireRole(types.RoleCustomer), orderHandler.Return)
	orders.POST("/:id/refund", middleware.RequireRole(), orderHandler.RefundReturned)
	orders.POST("/:id/rate", middleware.RequireRole(types.RoleCustomer), orderHandler.Rate)
	orders.POST("/:id/notes", orderHandler.AddNote)

	driverHandler := handlers.NewDriverHandler(deps.Drivers, deps.Orders, deps.Matching)
	drivers := api.Group("/drivers", middleware.RequireRole(types.RoleDriver))
	drivers.GET("/orders", driverHandler.NearbyOrders)
	drivers.POST("/availability", driverHandler.SetAvailability)
	drivers.PUT("/location", driverHandler.UpdateLocation)

	walletHandler := handlers.NewWalletHandler(deps.Wallets)
	wallets := api.Group("/wallet")
	wallets.GET("", walletHandler.Get)
	wallets.GET("/transactions", walletHandler.Transactions)
	wallets.POST("/credit", middleware.RequireRole(), walletHandler.Credit)

	return r
}
