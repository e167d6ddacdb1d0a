package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/vendorhub/marketplace/internal/domain"
	"github.com/vendorhub/marketplace/internal/repositories"
)

// PricedCart is a cart whose lines were rebuilt from the catalog.
type PricedCart struct {
	Items    []OrderItem
	Subtotal decimal.Decimal
	Total    decimal.Decimal
}

// PricingResolver replaces client-supplied line data with catalog data. Only the
// product id and quantity of each submitted line survive. Products are read
// from the repository on every call so price and status reflect the catalog at
// checkout.
type PricingResolver struct {
	products repositories.ProductRepository
}

// NewPricingResolver builds a resolver.
func NewPricingResolver(products repositories.ProductRepository) (*PricingResolver, error) {
	if products == nil {
		return nil, errors.New("pricing resolver: product repository is required")
	}
	return &PricingResolver{products: products}, nil
}

// Resolve re-prices every line. Given the same catalog state the output is identical.
func (r *PricingResolver) Resolve(ctx context.Context, cmd CreateOrderCommand) (PricedCart, error) {
	virtualStoreID := strings.TrimSpace(cmd.VirtualStoreID)
	items := make([]OrderItem, 0, len(cmd.Items))
	subtotal := decimal.Zero

	for idx, line := range cmd.Items {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return PricedCart{}, fmt.Errorf("%w: item %d product id is required", ErrOrderInvalidInput, idx)
		}
		if line.Quantity <= 0 {
			return PricedCart{}, fmt.Errorf("%w: item %d quantity must be positive", ErrOrderInvalidInput, idx)
		}

		product, err := r.product(ctx, productID)
		if err != nil {
			return PricedCart{}, err
		}
		if product.Status != domain.ProductStatusActive {
			return PricedCart{}, fmt.Errorf("%w: product %s is %s", ErrOrderProductUnavailable, productID, product.Status)
		}
		if product.VirtualStoreID != virtualStoreID {
			return PricedCart{}, fmt.Errorf("%w: product %s belongs to store %s", ErrOrderProductUnavailable, productID, product.VirtualStoreID)
		}

		lineSubtotal := product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		items = append(items, OrderItem{
			ProductID:         product.ID,
			OriginalProductID: product.OriginalProductID,
			Name:              product.Name,
			Image:             product.Image,
			SKU:               product.SKU,
			BasePrice:         product.BasePrice,
			SellingPrice:      product.Price,
			Commission:        product.Commission,
			Quantity:          line.Quantity,
			Subtotal:          lineSubtotal,
			Currency:          strings.ToUpper(strings.TrimSpace(product.Currency)),
			VirtualStoreID:    product.VirtualStoreID,
			PhysicalStoreID:   product.PhysicalStoreID,
		})
		subtotal = subtotal.Add(lineSubtotal)
	}

	total := subtotal.Add(cmd.Shipping).Add(cmd.Tax).Sub(cmd.Discount)
	return PricedCart{Items: items, Subtotal: subtotal, Total: total}, nil
}

func (r *PricingResolver) product(ctx context.Context, productID string) (Product, error) {
	product, err := r.products.FindByID(ctx, productID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) {
			switch {
			case repoErr.IsNotFound():
				return Product{}, fmt.Errorf("%w: product %s", ErrOrderProductNotFound, productID)
			case repoErr.IsUnavailable():
				return Product{}, fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
			}
		}
		return Product{}, err
	}
	return product, nil
}
