package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vendorhub/marketplace/internal/platform/cache"
	"github.com/vendorhub/marketplace/internal/platform/config"
	"github.com/vendorhub/marketplace/internal/platform/observability"
	"github.com/vendorhub/marketplace/internal/repositories"
	"github.com/vendorhub/marketplace/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders        services.OrderService
	Fulfillments  services.FulfillmentService
	Returns       services.ReturnService
	Notifications services.NotificationService
	Stores        services.StoreService
	Commissions   services.CommissionService
	System        services.SystemService
}

// Infrastructure carries the external clients services talk to besides Firestore.
// Payments, Logos, Directory and Health are optional.
type Infrastructure struct {
	Publisher services.NotificationPublisher
	Directory services.RecipientDirectory
	Logos     services.LogoStorage
	Payments  services.PaymentStatusLookup
	Health    repositories.HealthRepository
	Build     services.BuildInfo
	Logger    *zap.Logger
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services

	stores *cache.Cache[services.Store]
}

// NewContainer constructs the runtime dependencies. Tests can pass a registry whose
// provider never dials.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if infra.Publisher == nil {
		return nil, errors.New("notification publisher is required")
	}
	if infra.Logger == nil {
		infra.Logger = zap.NewNop()
	}

	c := &Container{
		Config:       cfg,
		Repositories: reg,
		stores:       cache.New[services.Store](cfg.Catalog.CacheSize, cfg.Catalog.CacheTTL),
	}
	svc, err := c.buildServices(ctx, infra)
	if err != nil {
		return nil, err
	}
	c.Services = svc
	return c, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func (c *Container) buildServices(_ context.Context, infra Infrastructure) (Services, error) {
	var svc Services
	reg := c.Repositories
	cfg := c.Config
	policy := services.OrderPolicy{
		PendingCancelWindow:    cfg.Orders.PendingCancelWindow,
		ProcessingCancelWindow: cfg.Orders.ProcessingCancelWindow,
		ReturnWindow:           cfg.Orders.ReturnWindow,
	}
	logFor := func(component string) observability.EventLogger {
		return observability.NewEventLogger(infra.Logger, component)
	}

	notifications, err := services.NewNotificationService(services.NotificationServiceDeps{
		Publisher:     infra.Publisher,
		Directory:     infra.Directory,
		Stores:        reg.Stores(),
		StoreCache:    c.stores,
		OperatorRole:  cfg.Orders.OperatorRole,
		DefaultLocale: cfg.Notifications.DefaultLocale,
		Clock:         time.Now,
		Logger:        logFor("notifications"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build notification service: %w", err)
	}
	svc.Notifications = notifications

	pricing, err := services.NewPricingResolver(reg.Products())
	if err != nil {
		return Services{}, fmt.Errorf("build pricing resolver: %w", err)
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:        reg.Orders(),
		Items:         reg.OrderItems(),
		OrderNumbers:  reg.OrderNumbers(),
		Fulfillments:  reg.Fulfillments(),
		Commissions:   reg.Commissions(),
		Pricing:       pricing,
		Payments:      infra.Payments,
		Notifications: notifications,
		Policy:        policy,
		NumberPrefix:  cfg.Orders.NumberPrefix,
		Clock:         time.Now,
		Logger:        logFor("orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	fulfillmentSvc, err := services.NewFulfillmentService(services.FulfillmentServiceDeps{
		Fulfillments:  reg.Fulfillments(),
		Orders:        reg.Orders(),
		Notifications: notifications,
		Clock:         time.Now,
		Logger:        logFor("fulfillments"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build fulfillment service: %w", err)
	}
	svc.Fulfillments = fulfillmentSvc

	returnSvc, err := services.NewReturnService(services.ReturnServiceDeps{
		Returns: reg.Returns(),
		Orders:  reg.Orders(),
		Policy:  policy,
		Clock:   time.Now,
		Logger:  logFor("returns"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build return service: %w", err)
	}
	svc.Returns = returnSvc

	storeSvc, err := services.NewStoreService(services.StoreServiceDeps{
		Stores: reg.Stores(),
		Teams:  reg.StoreTeams(),
		Logos:  infra.Logos,
		Cache:  c.stores,
		Clock:  time.Now,
		Logger: logFor("stores"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build store service: %w", err)
	}
	svc.Stores = storeSvc

	commissionSvc, err := services.NewCommissionService(services.CommissionServiceDeps{
		Commissions: reg.Commissions(),
		Orders:      reg.Orders(),
		Policy:      policy,
		Clock:       time.Now,
		Logger:      logFor("commissions"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build commission service: %w", err)
	}
	svc.Commissions = commissionSvc

	if infra.Health != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: infra.Health,
			Clock:            time.Now,
			Build:            infra.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
