// cmd/order-service/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"

	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/httpclient"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/pkg/mq"
	"storefront/internal/pkg/redis"
	"storefront/internal/pkg/zookeeper"
	"storefront/internal/service/order/application"
	"storefront/internal/service/order/domain/port"
	"storefront/internal/service/order/infrastructure"
	"storefront/internal/service/order/infrastructure/adapter"
	"storefront/internal/service/order/interfaces"
)

const (
	serviceName         = "order-service"
	notificationTimeout = 5 * time.Second
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(serviceName, cfg.App.LogLevel)

	if err := bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      serviceName,
		Port:             cfg.App.Port,
		RegisterHandlers: registerHandlers,
	}); err != nil {
		logger.L().Fatal().Err(err).Msg("order service exited with error")
	}
}

func registerHandlers(appCtx *bootstrap.AppCtx) error {
	cfg := appCtx.Config
	tracer := otel.Tracer(serviceName)
	m := metrics.NewCheckoutMetrics(nil)

	// 1. 存储
	db, err := infrastructure.NewMySQL(cfg.Infra.Mysql)
	if err != nil {
		return err
	}
	if err := infrastructure.AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	appCtx.OnShutdown(func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	uow := infrastructure.NewGormUnitOfWork(db)

	// 2. 用户锁，结账与购物车写操作共用
	locker, err := newLocker(appCtx)
	if err != nil {
		return err
	}

	// 3. 结账策略（可选）
	var policy port.CheckoutPolicy
	if cfg.Checkout.Policy != "" {
		celPolicy, err := adapter.NewCELCheckoutPolicy(cfg.Checkout.Policy)
		if err != nil {
			return err
		}
		policy = celPolicy
	}

	// 4. 支付网关与通知
	payment := adapter.NewPaymentHTTPAdapter(httpclient.NewClient(tracer), cfg.Payment.BaseURL, cfg.Payment.APIKey)

	writer := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.NotificationTopic)
	notifier := adapter.NewNotificationKafkaAdapter(writer, tracer, notificationTimeout)
	// 先等待在途的通知发送完成，再关闭 writer
	appCtx.OnShutdown(notifier.Close)

	// 5. 应用服务与 HTTP 接口
	inventory := application.NewInventoryService(uow, tracer, m)
	basket := application.NewBasketService(uow, locker, tracer, m)
	checkout := application.NewCheckoutService(uow, payment, notifier, locker, policy, tracer, m, cfg.Payment.Timeout)

	interfaces.NewStorefrontHandler(inventory, basket, checkout, cfg.App.StoreID).RegisterRoutes(appCtx.Mux)
	return nil
}

func newLocker(appCtx *bootstrap.AppCtx) (port.Locker, error) {
	cfg := appCtx.Config
	switch cfg.Checkout.LockBackend {
	case "zookeeper":
		conn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, 5*time.Second)
		if err != nil {
			return nil, err
		}
		appCtx.OnShutdown(func(context.Context) error {
			conn.Close()
			return nil
		})
		return adapter.NewZookeeperLocker(conn), nil
	default:
		client, err := redis.NewClient(appCtx.Ctx, cfg.Infra.Redis.Addr, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis client: %w", err)
		}
		appCtx.OnShutdown(func(context.Context) error { return client.Close() })
		return adapter.NewRedisLocker(client, cfg.Checkout.LockTTL)
	}
}
