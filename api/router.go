package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rentbuy/internal/transaction"
)

// InitRoutes registers the health check and every buy/rent endpoint on the
// given Gin engine. All /v1 routes require a bearer token signed with jwtSecret.
func InitRoutes(e *gin.Engine, service *transaction.Service, logger *zap.Logger, jwtSecret string) {
	h := NewTransactionHandler(service, logger)

	e.Use(requestLogger(logger), gin.Recovery())

	e.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "OK",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	v1 := e.Group("/v1", requireUser(jwtSecret, logger))

	v1.POST("/products/:id/buy", h.handleBuyProduct)
	v1.POST("/products/:id/rent", h.handleRentProduct)
	v1.GET("/products/:id/open-transactions", h.handleOpenTransactions)

	v1.GET("/buys/:id", h.handleGetBuy)
	v1.POST("/buys/:id/cancel", h.handleCancelBuy)
	v1.GET("/rents/:id", h.handleGetRent)
	v1.POST("/rents/:id/cancel", h.handleCancelRent)

	v1.GET("/me/buys", h.handleMyBuys)
	v1.GET("/me/sales", h.handleMySales)
	v1.GET("/me/rentals", h.handleMyRentals)
	v1.GET("/me/lendings", h.handleMyLendings)
	v1.GET("/me/transactions", h.handleMyTransactions)
}
