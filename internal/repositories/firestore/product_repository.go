package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/vendorhub/marketplace/internal/domain"
	pfirestore "github.com/vendorhub/marketplace/internal/platform/firestore"
	"github.com/vendorhub/marketplace/internal/repositories"
)

const productsCollection = "products"

// ProductRepository reads virtual-store listings. The catalog is owned elsewhere; this is read-only.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		base: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
	}, nil
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	var amounts amountDecoder
	product := domain.Product{
		ID:                doc.ID,
		OriginalProductID: doc.Data.OriginalProductID,
		Status:            doc.Data.Status,
		VirtualStoreID:    doc.Data.VirtualStoreID,
		PhysicalStoreID:   doc.Data.PhysicalStoreID,
		Name:              doc.Data.Name,
		Image:             doc.Data.Image,
		SKU:               doc.Data.SKU,
		Currency:          doc.Data.Currency,
		BasePrice:         amounts.decode("basePrice", doc.Data.BasePrice),
		Price:             amounts.decode("price", doc.Data.Price),
		Commission:        amounts.decode("commission", doc.Data.Commission),
		UpdatedAt:         doc.Data.UpdatedAt.UTC(),
	}
	if amounts.err != nil {
		return domain.Product{}, fmt.Errorf("product %s: %w", doc.ID, amounts.err)
	}
	return product, nil
}

type productDocument struct {
	OriginalProductID string    `firestore:"originalProductId"`
	Status            string    `firestore:"status"`
	VirtualStoreID    string    `firestore:"virtualStoreId"`
	PhysicalStoreID   string    `firestore:"physicalStoreId"`
	Name              string    `firestore:"name"`
	Image             string    `firestore:"image"`
	SKU               string    `firestore:"sku"`
	Currency          string    `firestore:"currency"`
	BasePrice         string    `firestore:"basePrice"`
	Price             string    `firestore:"price"`
	Commission        string    `firestore:"commission"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}
