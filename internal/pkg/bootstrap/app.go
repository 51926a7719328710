// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/pkg/nacos"
	"storefront/internal/pkg/tracing"
)

const shutdownTimeout = 10 * time.Second

// AppCtx 在注册路由时交给各个服务，用于挂载 HTTP 路由、后台任务和关停钩子。
type AppCtx struct {
	Mux    *http.ServeMux
	Config *Config
	// Ctx 在收到退出信号时被取消，后台任务应当据此退出
	Ctx context.Context

	group     *errgroup.Group
	mu        sync.Mutex
	shutdowns []func(ctx context.Context) error
}

// Go 启动一个受管理的后台任务（例如 Kafka 消费者）。任务返回错误会触发整个服务退出。
func (a *AppCtx) Go(fn func(ctx context.Context) error) {
	a.group.Go(func() error { return fn(a.Ctx) })
}

// OnShutdown 注册关停钩子，按注册的逆序执行。
func (a *AppCtx) OnShutdown(fn func(ctx context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.shutdowns = append(a.shutdowns, fn)
}

func (a *AppCtx) runShutdown(ctx context.Context) {
	a.mu.Lock()
	hooks := a.shutdowns
	a.mu.Unlock()
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			logger.L().Error().Err(err).Msg("shutdown hook failed")
		}
	}
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName string
	Port        int
	// RegisterHandlers 允许每个服务注册自己独特的 HTTP 路由和后台任务
	RegisterHandlers func(appCtx *AppCtx) error
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。
func StartService(info AppInfo) error {
	cfg := GetCurrentConfig()

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer provider: %w", err)
	}

	// 2. 服务注册（可选）
	var (
		namingClient *nacos.Client
		ip           string
	)
	if cfg.Infra.Nacos.Enabled {
		namingClient, err = nacos.NewNacosClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			return err
		}
		if ip, err = GetOutboundIP(); err != nil {
			return fmt.Errorf("failed to get outbound IP address: %w", err)
		}
		if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			return err
		}
	}

	// 3. 信号上下文 + 后台任务组
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	group, groupCtx := errgroup.WithContext(sigCtx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	appCtx := &AppCtx{Mux: mux, Config: cfg, Ctx: groupCtx, group: group}
	if info.RegisterHandlers != nil {
		if err := info.RegisterHandlers(appCtx); err != nil {
			return fmt.Errorf("failed to register handlers: %w", err)
		}
	}

	// 4. HTTP Server
	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	group.Go(func() error {
		logger.L().Info().Str("service", info.ServiceName).Int("port", info.Port).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not listen on %s: %w", server.Addr, err)
		}
		return nil
	})

	// 5. 优雅关停：收到信号或任一后台任务失败
	group.Go(func() error {
		<-groupCtx.Done()
		logger.L().Info().Str("service", info.ServiceName).Msg("shutting down service")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if namingClient != nil {
			if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
				logger.L().Error().Err(err).Msg("error deregistering from nacos")
			}
			namingClient.Close()
		}
		if err := server.Shutdown(ctx); err != nil {
			logger.L().Error().Err(err).Msg("error shutting down http server")
		}
		appCtx.runShutdown(ctx)
		// 最后关闭 tracer，确保关停过程中的 span 也能发送出去
		if err := tp.Shutdown(ctx); err != nil {
			logger.L().Error().Err(err).Msg("error shutting down tracer provider")
		}
		return nil
	})

	err = group.Wait()
	logger.L().Info().Str("service", info.ServiceName).Msg("service gracefully shut down")
	return err
}

// GetOutboundIP 返回本机访问外网时使用的 IP，用于服务注册。
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}
	return addr.IP.String(), nil
}
