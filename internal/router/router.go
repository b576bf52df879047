package router

import (
	"strings"
	"time"

	"fulfillment/internal/config"
	"fulfillment/internal/handler"
	"fulfillment/internal/infra"
	"fulfillment/internal/middleware"
	"fulfillment/internal/repository"
	"fulfillment/internal/service"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Repositories is the storage half of the dependency graph. Production uses
// GormRepositories; tests plug in the in-memory store.
type Repositories struct {
	Items          repository.ItemRepository
	PurchaseOrders repository.PurchaseOrderRepository
	Orders         repository.OrderRepository
	Deliveries     repository.DeliveryRepository
	Ledger         repository.LedgerRepository
	Closures       repository.ClosureRepository
}

func GormRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Items:          repository.NewItemRepository(db),
		PurchaseOrders: repository.NewPurchaseOrderRepository(db),
		Orders:         repository.NewOrderRepository(db),
		Deliveries:     repository.NewDeliveryRepository(db),
		Ledger:         repository.NewLedgerRepository(db),
		Closures:       repository.NewClosureRepository(db),
	}
}

// Options carries the optional collaborators of the service layer. Nil
// fields disable the feature: no cache, no lock, no audit mail.
type Options struct {
	Cache     *redis.Client
	Locker    service.Locker
	Notifier  service.OverrideNotifier
	ReportDir string
}

type Services struct {
	Catalog        service.CatalogService
	Fulfillment    service.FulfillmentService
	Allocation     service.AllocationService
	PurchaseOrders service.PurchaseOrderService
	Orders         service.OrderService
	Deliveries     service.DeliveryService
	Reports        service.ReportService
}

// BuildServices wires Service <- Repository.
func BuildServices(repos Repositories, opts Options) Services {
	catalog := service.NewCatalogService(repos.Items, opts.Cache)
	fulfillment := service.NewFulfillmentService(repos.PurchaseOrders, repos.Orders, repos.Deliveries)
	allocation := service.NewAllocationService(repos.PurchaseOrders, repos.Ledger, opts.Locker)

	pos := service.NewPurchaseOrderService(repos.PurchaseOrders, repos.Orders, repos.Ledger, repos.Closures, catalog, fulfillment, opts.Notifier)
	orders := service.NewOrderService(repos.Orders, repos.Deliveries, repos.Closures, allocation, catalog, fulfillment, opts.Notifier)
	deliveries := service.NewDeliveryService(repos.Deliveries, repos.Orders, repos.Ledger, repos.Closures, catalog, opts.Notifier)
	reports := service.NewReportService(pos, map[string]service.ReportRenderer{
		"pdf":  infra.RenderPurchaseOrderPDF,
		"xlsx": infra.RenderPurchaseOrderXLSX,
	}, opts.ReportDir)

	return Services{
		Catalog:        catalog,
		Fulfillment:    fulfillment,
		Allocation:     allocation,
		PurchaseOrders: pos,
		Orders:         orders,
		Deliveries:     deliveries,
		Reports:        reports,
	}
}

// Extras are routes that need live infrastructure. Both may be nil.
type Extras struct {
	Health gin.HandlerFunc
	Jobs   *handler.JobsHandler
}

// New returns a configured Gin engine.
// Dependency graph: Handler <- Service <- Repository <- DB/Redis
func New(cfg *config.Config, svcs Services, extras Extras) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Every route is registered with and without the trailing slash.
	r.RedirectTrailingSlash = false

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Tracing())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(middleware.ErrorHandler())
	r.Use(limiter.Handler())

	// ── Handlers ─────────────────────────────────────────────────────────────
	itemsH := handler.NewItemsHandler(svcs.Catalog)
	posH := handler.NewPurchaseOrdersHandler(svcs.PurchaseOrders, svcs.Fulfillment, svcs.Reports)
	ordersH := handler.NewOrdersHandler(svcs.Orders, svcs.Fulfillment)
	deliveriesH := handler.NewDeliveriesHandler(svcs.Deliveries)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	if extras.Health != nil {
		r.GET("/health", extras.Health)
	}

	v1 := r.Group("/v1", middleware.JWTAuth(cfg.JWTSecret), middleware.RequireRole(middleware.RoleAdmin, middleware.RoleStaff))
	{
		route(v1.GET, "/items", itemsH.List)
		route(v1.GET, "/items/:id", itemsH.Get)

		route(v1.POST, "/purchase-orders", posH.Create)
		route(v1.GET, "/purchase-orders", posH.List)
		route(v1.GET, "/purchase-orders/:id", posH.Get)
		route(v1.DELETE, "/purchase-orders/:id", posH.Delete)
		route(v1.GET, "/purchase-orders/:id/fulfillment", posH.Fulfillment)
		route(v1.GET, "/purchase-orders/:id/ledger", posH.Ledger)
		route(v1.POST, "/purchase-orders/:id/line-items", posH.AddLineItem)
		route(v1.DELETE, "/purchase-orders/:id/line-items/:lineItemId", posH.RemoveLineItem)
		route(v1.POST, "/purchase-orders/:id/waive", posH.Waive)
		route(v1.POST, "/purchase-orders/:id/close", posH.Close)
		v1.GET("/purchase-orders/:id/report.pdf", posH.ReportPDF)
		v1.GET("/purchase-orders/:id/report.xlsx", posH.ReportXLSX)

		route(v1.POST, "/orders", ordersH.Create)
		route(v1.GET, "/orders", ordersH.List)
		route(v1.GET, "/orders/:id", ordersH.Get)
		route(v1.DELETE, "/orders/:id", ordersH.Delete)
		route(v1.GET, "/orders/:id/fulfillment", ordersH.Fulfillment)
		route(v1.POST, "/orders/:id/line-items", ordersH.AddLineItems)
		route(v1.DELETE, "/orders/:id/line-items/:lineItemId", ordersH.RemoveLineItem)
		route(v1.POST, "/orders/:id/close", ordersH.Close)

		route(v1.POST, "/deliveries", deliveriesH.Create)
		route(v1.GET, "/deliveries", deliveriesH.List)
		route(v1.GET, "/deliveries/:id", deliveriesH.Get)
		route(v1.DELETE, "/deliveries/:id", deliveriesH.Delete)
		route(v1.POST, "/deliveries/:id/close", deliveriesH.Close)

		if extras.Jobs != nil {
			admin := v1.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
			admin.GET("/jobs/dlq", extras.Jobs.DeadLetters)
			admin.POST("/jobs/dlq/redrive", extras.Jobs.Redrive)
		}
	}

	// Swagger UI, only outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}

// route registers path both bare and with a trailing slash.
func route(register func(string, ...gin.HandlerFunc) gin.IRoutes, path string, h gin.HandlerFunc) {
	path = strings.TrimSuffix(path, "/")
	register(path, h)
	register(path+"/", h)
}
