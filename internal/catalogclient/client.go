// Package catalogclient looks products up in a remote catalog service over HTTP.
package catalogclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rentbuy/internal/transaction"
)

type productDTO struct {
	ID            string           `json:"id"`
	OwnerID       string           `json:"ownerId"`
	Title         string           `json:"title"`
	RentUnit      string           `json:"rentUnit"`
	PurchasePrice *decimal.Decimal `json:"purchasePrice"`
	RentalPrice   *decimal.Decimal `json:"rentalPrice"`
}

// Client is a transaction.Catalog that calls GET {baseURL}/products/{id}.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		logger: logger,
	}
}

func (c *Client) FindProduct(ctx context.Context, productID string) (*transaction.Product, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", productID).
		SetResult(&productDTO{}).
		Get("/products/{id}")
	if err != nil {
		return nil, fmt.Errorf("error making request to catalog: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, transaction.ErrProductNotFound
	default:
		c.logger.Warn("unexpected catalog response",
			zap.String("product_id", productID),
			zap.Int("status", resp.StatusCode()),
		)
		return nil, fmt.Errorf("catalog returned unexpected status: %d", resp.StatusCode())
	}

	dto, ok := resp.Result().(*productDTO)
	if !ok || dto.OwnerID == "" {
		return nil, fmt.Errorf("catalog returned an invalid product for %s", productID)
	}
	id := dto.ID
	if id == "" {
		id = productID
	}
	return &transaction.Product{
		ID:            id,
		OwnerID:       dto.OwnerID,
		Title:         dto.Title,
		RentUnit:      dto.RentUnit,
		PurchasePrice: dto.PurchasePrice,
		RentalPrice:   dto.RentalPrice,
	}, nil
}
