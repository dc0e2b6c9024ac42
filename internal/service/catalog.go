package service

import (
	"context"
	"fmt"

	"github.com/Spolkip/AtlasCoreSite/internal/apperror"
	"github.com/Spolkip/AtlasCoreSite/internal/models"
	"github.com/Spolkip/AtlasCoreSite/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CartItem is one requested line of a checkout
type CartItem struct {
	ProductID uuid.UUID `json:"productId" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1"`
}

// Catalog resolves products and prices carts
type Catalog struct {
	products ProductRepository
	logger   *zap.Logger
}

// NewCatalog creates a new catalog
func NewCatalog(products ProductRepository) *Catalog {
	return &Catalog{
		products: products,
		logger:   util.GetLogger(),
	}
}

// ListProducts returns the whole catalog
func (c *Catalog) ListProducts(ctx context.Context) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "Catalog.ListProducts")
	defer span.End()

	return c.products.GetProducts(ctx)
}

// Product looks up a single product
func (c *Catalog) Product(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := c.products.GetProductByID(ctx, id)
	if apperror.Is(err, apperror.KindNotFound) {
		return nil, apperror.Wrap(ErrProductNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product %s: %w", id, err)
	}
	return product, nil
}

// PriceCart verifies every item against the catalog and snapshots unit prices.
// Stock is only checked here; it is decremented at fulfillment.
func (c *Catalog) PriceCart(ctx context.Context, items []CartItem) (models.OrderLines, error) {
	ctx, span := util.StartSpan(ctx, "Catalog.PriceCart")
	defer span.End()

	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	requested := make(map[uuid.UUID]int, len(items))
	lines := make(models.OrderLines, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, apperror.Validation("quantity must be at least 1", nil)
		}

		product, err := c.Product(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}

		// repeated lines of one product draw from the same stock
		requested[product.ID] += item.Quantity
		if !product.HasStock(requested[product.ID]) {
			c.logger.Info("Insufficient stock",
				zap.String("product_id", product.ID.String()),
				zap.Int("requested", requested[product.ID]),
				zap.Intp("stock", product.Stock))
			return nil, apperror.Wrap(ErrInsufficientStock, fmt.Errorf("not enough stock for %s", product.Name))
		}

		lines = append(lines, models.OrderLine{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  item.Quantity,
			Price:     product.EffectivePrice(),
		})
	}

	return lines, nil
}
