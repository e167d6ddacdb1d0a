package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/vendorhub/marketplace/internal/platform/firestore"
	"github.com/vendorhub/marketplace/internal/repositories"
)

// Registry bundles every Firestore repository over one shared provider.
type Registry struct {
	provider     *pfirestore.Provider
	orders       *OrderRepository
	orderItems   *OrderItemRepository
	orderNumbers *OrderNumberRepository
	fulfillments *FulfillmentRepository
	commissions  *CommissionRepository
	returns      *ReturnRequestRepository
	products     *ProductRepository
	stores       *StoreRepository
	storeTeams   *StoreTeamRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs all repositories against provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	reg := &Registry{provider: provider}
	var err error
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, err
	}
	if reg.orderItems, err = NewOrderItemRepository(provider); err != nil {
		return nil, err
	}
	if reg.orderNumbers, err = NewOrderNumberRepository(provider); err != nil {
		return nil, err
	}
	if reg.fulfillments, err = NewFulfillmentRepository(provider); err != nil {
		return nil, err
	}
	if reg.commissions, err = NewCommissionRepository(provider); err != nil {
		return nil, err
	}
	if reg.returns, err = NewReturnRequestRepository(provider); err != nil {
		return nil, err
	}
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, err
	}
	if reg.stores, err = NewStoreRepository(provider); err != nil {
		return nil, err
	}
	if reg.storeTeams, err = NewStoreTeamRepository(provider); err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Orders() repositories.OrderRepository             { return r.orders }
func (r *Registry) OrderItems() repositories.OrderItemRepository     { return r.orderItems }
func (r *Registry) OrderNumbers() repositories.OrderNumberRepository { return r.orderNumbers }
func (r *Registry) Fulfillments() repositories.FulfillmentRepository { return r.fulfillments }
func (r *Registry) Commissions() repositories.CommissionRepository   { return r.commissions }
func (r *Registry) Returns() repositories.ReturnRequestRepository    { return r.returns }
func (r *Registry) Products() repositories.ProductRepository         { return r.products }
func (r *Registry) Stores() repositories.StoreRepository             { return r.stores }
func (r *Registry) StoreTeams() repositories.StoreTeamRepository     { return r.storeTeams }
