// cmd/notification-service/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"

	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/notification"
)

const (
	serviceName = "notification-service"
	defaultPort = 8088
)

func main() {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(serviceName, cfg.App.LogLevel)

	if err := bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      serviceName,
		Port:             port(),
		RegisterHandlers: registerHandlers,
	}); err != nil {
		logger.L().Fatal().Err(err).Msg("notification service exited with error")
	}
}

// port 与 order-service 共用一份配置，所以单独用 NOTIFICATION_PORT 指定端口
func port() int {
	if v, ok := os.LookupEnv("NOTIFICATION_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultPort
}

func registerHandlers(appCtx *bootstrap.AppCtx) error {
	kafkaCfg := appCtx.Config.Infra.Kafka
	hub := notification.NewHub()
	appCtx.Mux.HandleFunc("/ws", notification.ServeWS(hub))

	reader := mq.NewKafkaReader(kafkaCfg.Brokers, kafkaCfg.NotificationTopic, kafkaCfg.ConsumerGroup)
	deadLetter := mq.NewKafkaWriter(kafkaCfg.Brokers, mq.DeadLetterTopic(kafkaCfg.NotificationTopic))
	consumer := notification.NewConsumer(reader, deadLetter, hub, otel.Tracer(serviceName))

	dltReader := mq.NewKafkaReader(kafkaCfg.Brokers, mq.DeadLetterTopic(kafkaCfg.NotificationTopic), kafkaCfg.ConsumerGroup+"-dlt")

	appCtx.Go(consumer.Run)
	appCtx.Go(notification.NewDeadLetterLogger(dltReader).Run)
	appCtx.OnShutdown(func(context.Context) error {
		hub.Close()
		return errors.Join(reader.Close(), dltReader.Close(), deadLetter.Close())
	})
	return nil
}
