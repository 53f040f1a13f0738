package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"rentbuy/internal/transaction"
)

// transactionHandler holds the transaction service and implements HTTP handlers for buy and rent operations.
type transactionHandler struct {
	service  *transaction.Service
	logger   *zap.Logger
	validate *validator.Validate
}

// NewTransactionHandler creates a new transaction handler.
func NewTransactionHandler(service *transaction.Service, logger *zap.Logger) *transactionHandler {
	return &transactionHandler{
		service:  service,
		logger:   logger,
		validate: validator.New(),
	}
}

// handleBuyProduct handles POST /v1/products/:id/buy.
func (h *transactionHandler) handleBuyProduct(ctx *gin.Context) {
	buy, err := h.service.BuyProduct(ctx.Request.Context(), callerID(ctx), ctx.Param("id"))
	if err != nil {
		h.writeError(ctx, "buy product", err)
		return
	}
	products, ok := h.lookupProducts(ctx, "buy product", buy.ProductID)
	if !ok {
		return
	}
	ctx.JSON(http.StatusCreated, newBuyResponse(buy, products))
}

// handleRentProduct handles POST /v1/products/:id/rent.
func (h *transactionHandler) handleRentProduct(ctx *gin.Context) {
	var req rentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("failed to bind JSON request", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request payload", Code: transaction.KindInvalidInput})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse{Error: "start_date and end_date are required", Code: transaction.KindInvalidInput})
		return
	}

	rent, err := h.service.RentProduct(ctx.Request.Context(), callerID(ctx), ctx.Param("id"), *req.StartDate, *req.EndDate)
	if err != nil {
		h.writeError(ctx, "rent product", err)
		return
	}
	products, ok := h.lookupProducts(ctx, "rent product", rent.ProductID)
	if !ok {
		return
	}
	ctx.JSON(http.StatusCreated, newRentResponse(rent, products))
}

func (h *transactionHandler) handleCancelBuy(ctx *gin.Context) {
	buy, err := h.service.CancelBuy(ctx.Request.Context(), callerID(ctx), ctx.Param("id"))
	if err != nil {
		h.writeError(ctx, "cancel buy", err)
		return
	}
	products, ok := h.lookupProducts(ctx, "cancel buy", buy.ProductID)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, newBuyResponse(buy, products))
}

func (h *transactionHandler) handleCancelRent(ctx *gin.Context) {
	rent, err := h.service.CancelRent(ctx.Request.Context(), callerID(ctx), ctx.Param("id"))
	if err != nil {
		h.writeError(ctx, "cancel rent", err)
		return
	}
	products, ok := h.lookupProducts(ctx, "cancel rent", rent.ProductID)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, newRentResponse(rent, products))
}

func (h *transactionHandler) handleGetBuy(ctx *gin.Context) {
	buy, err := h.service.GetBuy(ctx.Request.Context(), callerID(ctx), ctx.Param("id"))
	if err != nil {
		h.writeError(ctx, "get buy", err)
		return
	}
	products, ok := h.lookupProducts(ctx, "get buy", buy.ProductID)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, newBuyResponse(buy, products))
}

func (h *transactionHandler) handleGetRent(ctx *gin.Context) {
	rent, err := h.service.GetRent(ctx.Request.Context(), callerID(ctx), ctx.Param("id"))
	if err != nil {
		h.writeError(ctx, "get rent", err)
		return
	}
	products, ok := h.lookupProducts(ctx, "get rent", rent.ProductID)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, newRentResponse(rent, products))
}

// handleMyBuys handles GET /v1/me/buys?status=.
func (h *transactionHandler) handleMyBuys(ctx *gin.Context) {
	status, err := transaction.ParseBuyStatus(ctx.Query("status"))
	if err != nil {
		h.writeError(ctx, "list buys", err)
		return
	}
	buys, err := h.service.GetUserBuys(ctx.Request.Context(), callerID(ctx), status)
	if err != nil {
		h.writeError(ctx, "list buys", err)
		return
	}
	products, ok := h.lookupProducts(ctx, "list buys", buyProductIDs(buys)...)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"results": newBuyResponses(buys, products)})
}

func (h *transactionHandler) handleMySales(ctx *gin.Context) {
	sales, err := h.service.GetUserSales(ctx.Request.Context(), callerID(ctx))
	if err != nil {
		h.writeError(ctx, "list sales", err)
		return
	}
	products, ok := h.lookupProducts(ctx, "list sales", buyProductIDs(sales)...)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"results": newBuyResponses(sales, products)})
}

// handleMyRentals handles GET /v1/me/rentals?status=.
func (h *transactionHandler) handleMyRentals(ctx *gin.Context) {
	status, err := transaction.ParseRentStatus(ctx.Query("status"))
	if err != nil {
		h.writeError(ctx, "list rentals", err)
		return
	}
	rentals, err := h.service.GetUserRentals(ctx.Request.Context(), callerID(ctx), status)
	if err != nil {
		h.writeError(ctx, "list rentals", err)
		return
	}
	products, ok := h.lookupProducts(ctx, "list rentals", rentProductIDs(rentals)...)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"results": newRentResponses(rentals, products)})
}

func (h *transactionHandler) handleMyLendings(ctx *gin.Context) {
	lendings, err := h.service.GetUserLendings(ctx.Request.Context(), callerID(ctx))
	if err != nil {
		h.writeError(ctx, "list lendings", err)
		return
	}
	products, ok := h.lookupProducts(ctx, "list lendings", rentProductIDs(lendings)...)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"results": newRentResponses(lendings, products)})
}

// handleMyTransactions handles GET /v1/me/transactions?type=BUY|RENT|ALL.
func (h *transactionHandler) handleMyTransactions(ctx *gin.Context) {
	filter, err := transaction.ParseTypeFilter(ctx.Query("type"))
	if err != nil {
		h.writeError(ctx, "transaction history", err)
		return
	}
	history, err := h.service.GetTransactionHistory(ctx.Request.Context(), callerID(ctx), filter)
	if err != nil {
		h.writeError(ctx, "transaction history", err)
		return
	}
	products, ok := h.lookupProducts(ctx, "transaction history", historyProductIDs(history)...)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"results": newTransactionResponses(history, products)})
}

func (h *transactionHandler) handleOpenTransactions(ctx *gin.Context) {
	productID := ctx.Param("id")
	open, err := h.service.ProductHasOpenTransactions(ctx.Request.Context(), callerID(ctx), productID)
	if err != nil {
		h.writeError(ctx, "open transactions", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"product_id": productID, "open": open})
}

// lookupProducts fetches the catalog entries shown alongside records. On
// failure it writes the error response and reports false.
func (h *transactionHandler) lookupProducts(ctx *gin.Context, op string, productIDs ...string) (productIndex, bool) {
	products, err := h.service.Products(ctx.Request.Context(), productIDs...)
	if err != nil {
		h.writeError(ctx, op, err)
		return nil, false
	}
	return products, true
}

func buyProductIDs(buys []*transaction.Buy) []string {
	ids := make([]string, 0, len(buys))
	for _, b := range buys {
		ids = append(ids, b.ProductID)
	}
	return ids
}

func rentProductIDs(rents []*transaction.Rent) []string {
	ids := make([]string, 0, len(rents))
	for _, r := range rents {
		ids = append(ids, r.ProductID)
	}
	return ids
}

func historyProductIDs(history []transaction.Transaction) []string {
	ids := make([]string, 0, len(history))
	for _, tx := range history {
		switch v := tx.(type) {
		case transaction.BuyTransaction:
			ids = append(ids, v.Buy.ProductID)
		case transaction.RentTransaction:
			ids = append(ids, v.Rent.ProductID)
		}
	}
	return ids
}

func (h *transactionHandler) writeError(ctx *gin.Context, op string, err error) {
	kind := transaction.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("op", op),
			zap.String("user_id", callerID(ctx)),
			zap.String(requestIDKey, ctx.GetString(requestIDKey)),
			zap.Error(err),
		)
		ctx.JSON(status, errorResponse{Error: "internal error", Code: transaction.KindUnknown})
		return
	}
	ctx.JSON(status, errorResponse{Error: err.Error(), Code: kind})
}

func statusFor(kind transaction.ErrorKind) int {
	switch kind {
	case transaction.KindInvalidInput:
		return http.StatusBadRequest
	case transaction.KindUnauthorized, transaction.KindInvalidOperation:
		return http.StatusForbidden
	case transaction.KindNotFound:
		return http.StatusNotFound
	case transaction.KindConflict:
		return http.StatusConflict
	case transaction.KindInvalidState:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
