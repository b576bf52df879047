//go:build integration

// End-to-end tests against real Postgres and Redis started with
// testcontainers. Run with: go test -tags integration ./internal/router/...

package router_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"fulfillment/internal/config"
	"fulfillment/internal/dto"
	"fulfillment/internal/handler"
	"fulfillment/internal/infra"
	"fulfillment/internal/middleware"
	"fulfillment/internal/model"
	"fulfillment/internal/repository"
	"fulfillment/internal/router"
	"fulfillment/internal/worker"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"gorm.io/gorm"
)

type e2eServer struct {
	*testServer
	db  *gorm.DB
	rdb *redis.Client
}

func setupE2E(t *testing.T) *e2eServer {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("fulfillment_e2e"),
		tcPostgres.WithUsername("test"),
		tcPostgres.WithPassword("test"),
		tcPostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	rdC, err := tcRedis.RunContainer(ctx, testcontainers.WithImage("redis:7-alpine"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdC.Terminate(ctx) })

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	redisURL, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := infra.NewDatabase(dsn)
	require.NoError(t, err)
	rdb, err := infra.NewRedis(redisURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	svcs := router.BuildServices(router.GormRepositories(db), router.Options{
		Cache:     rdb,
		Locker:    infra.NewRedisLocker(rdb, 5*time.Second),
		Notifier:  worker.NewDispatcher(rdb),
		ReportDir: t.TempDir(),
	})
	cfg := &config.Config{Env: "test", RateLimitPerMinute: 10000, JWTSecret: testSecret}
	engine := router.New(cfg, svcs, router.Extras{
		Health: handler.Health(db, rdb, nil),
		Jobs:   handler.NewJobsHandler(rdb),
	})

	staffToken, err := middleware.SignToken(testSecret, "u-1", "sam", middleware.RoleStaff, time.Hour)
	require.NoError(t, err)
	adminToken, err := middleware.SignToken(testSecret, "u-2", "ada", middleware.RoleAdmin, time.Hour)
	require.NoError(t, err)

	return &e2eServer{
		testServer: &testServer{engine: engine, staffToken: staffToken, adminToken: adminToken},
		db:         db,
		rdb:        rdb,
	}
}

func (s *e2eServer) seedItem(t *testing.T) model.Item {
	t.Helper()
	it := model.Item{ID: uuid.New(), Name: "Gadget", MSRP: decimal.NewFromInt(30), MinPrice: decimal.NewFromInt(10)}
	require.NoError(t, repository.NewItemRepository(s.db).Upsert(context.Background(), []model.Item{it}))
	return it
}

func TestE2E(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	s := setupE2E(t)
	ctx := context.Background()

	t.Run("health", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("concurrent allocation never oversells", func(t *testing.T) {
		customer := uuid.New()
		item := s.seedItem(t)
		po := s.createPO(t, customer, item, 5)

		var mu sync.Mutex
		codes := map[int]int{}
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w := s.do(t, http.MethodPost, "/v1/orders/", s.staffToken, dto.CreateOrderRequest{
					CustomerID:     customer.String(),
					AllocateFromPO: true,
					LineItems:      []dto.OrderLineItemRequest{{ItemID: item.ID.String(), Quantity: 1}},
				})
				mu.Lock()
				codes[w.Code]++
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.Equal(t, 5, codes[http.StatusCreated])
		assert.Equal(t, 5, codes[http.StatusConflict])

		w := s.do(t, http.MethodGet, "/v1/purchase-orders/"+po.ID+"/fulfillment", s.staffToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		st := decode[dto.POFulfillmentStatus](t, w)
		assert.Equal(t, 5, st.TotalOrderedQuantity)
		assert.Equal(t, 0, st.TotalRemainingQuantity)
		assert.Equal(t, "Complete", st.Progress)
	})

	t.Run("override close enqueues audit notice", func(t *testing.T) {
		customer := uuid.New()
		item := s.seedItem(t)
		po := s.createPO(t, customer, item, 10)
		s.allocate(t, customer, item, 3)

		w := s.do(t, http.MethodPost, "/v1/purchase-orders/"+po.ID+"/waive", s.staffToken, dto.WaiveRequest{
			LineItemID:      po.LineItems[0].ID,
			QuantityToWaive: 2,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = s.do(t, http.MethodPost, "/v1/purchase-orders/"+po.ID+"/close", s.staffToken, nil)
		assert.Equal(t, http.StatusConflict, w.Code)

		reason := "customer cancelled the remainder"
		w = s.do(t, http.MethodPost, "/v1/purchase-orders/"+po.ID+"/close", s.adminToken, dto.CloseRequest{AdminOverride: true, OverrideReason: &reason})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		closed := decode[dto.PurchaseOrderResponse](t, w)
		assert.Equal(t, "CLOSED", closed.Status)
		require.NotNil(t, closed.Closure)
		assert.True(t, closed.Closure.AdminOverride)

		n, err := s.rdb.LLen(ctx, worker.QueueOverrideAudit).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		w = s.do(t, http.MethodGet, "/v1/purchase-orders/"+po.ID+"/ledger", s.staffToken, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("deliveries enforce serial uniqueness", func(t *testing.T) {
		customer := uuid.New()
		item := s.seedItem(t)
		s.createPO(t, customer, item, 4)
		order := s.allocate(t, customer, item, 2)
		lineID := order.LineItems[0].ID
		serial := "SN-" + uuid.NewString()

		deliver := func() int {
			w := s.do(t, http.MethodPost, "/v1/deliveries/", s.staffToken, dto.CreateDeliveryRequest{
				CustomerID: customer.String(),
				ShipDate:   "2025-03-01",
				LineItems:  []dto.DeliveryLineItemRequest{{ItemID: item.ID.String(), SerialNumber: serial, OrderLineItem: &lineID}},
			})
			return w.Code
		}
		assert.Equal(t, http.StatusCreated, deliver())
		assert.Equal(t, http.StatusBadRequest, deliver())

		w := s.do(t, http.MethodGet, "/v1/orders/"+order.ID+"/fulfillment", s.staffToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		st := decode[dto.OrderFulfillmentStatus](t, w)
		assert.Equal(t, "50% Delivered", st.Progress)
	})

	t.Run("dead letter admin routes", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/v1/admin/jobs/dlq", s.staffToken, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = s.do(t, http.MethodGet, "/v1/admin/jobs/dlq", s.adminToken, nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w = s.do(t, http.MethodPost, "/v1/admin/jobs/dlq/redrive", s.adminToken, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
