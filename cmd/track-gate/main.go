package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/TrackGate/config"
	"github.com/BearBump/TrackGate/internal/broker/kafka"
	"github.com/BearBump/TrackGate/internal/cache/rediscache"
	"github.com/BearBump/TrackGate/internal/carriers/fedex"
	"github.com/BearBump/TrackGate/internal/carriers/ups"
	"github.com/BearBump/TrackGate/internal/services/resolver"
	"github.com/BearBump/TrackGate/internal/storage/pgrecords"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.TrackGate.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.TrackGate.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "track-gate"
	}
	updatedTopic := cfg.Kafka.RecordUpdatedTopicName
	if updatedTopic == "" {
		updatedTopic = "record.updated"
	}
	resolvedTopic := cfg.Kafka.ResolutionCompletedTopicName
	if resolvedTopic == "" {
		resolvedTopic = "resolution.completed"
	}
	cacheTTL := time.Duration(cfg.TrackGate.ResultCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	ratePerMinute := int64(cfg.TrackGate.CarrierRateLimitPerMinute)
	if ratePerMinute <= 0 {
		ratePerMinute = 60
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st, err := pgrecords.New(connString)
	if err != nil {
		panic(err)
	}
	defer st.Close()

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)
	rl := rediscache.NewRateLimiter(redisAddr)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	consumer := kafka.NewConsumer(brokers, updatedTopic, consumerGroup)
	defer func() { _ = consumer.Close() }()

	upsClient := ups.New(cfg.Carriers.UPS.BaseURL, cfg.Carriers.UPS.ClientID, cfg.Carriers.UPS.ClientSecret, nil)
	fedexClient := fedex.New(cfg.Carriers.FedEx.BaseURL, cfg.Carriers.FedEx.ClientID, cfg.Carriers.FedEx.ClientSecret, nil)

	svc := resolver.New(st, upsClient, fedexClient).
		WithCache(rc, cacheTTL).
		WithRateLimiter(rl, ratePerMinute).
		WithProducer(producer, resolvedTopic)

	swaggerPath := os.Getenv("swaggerPath")
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := runTrackGate(ctx, trackGateOpts{
		httpAddr:      httpAddr,
		swaggerPath:   swaggerPath,
		topic:         updatedTopic,
		consumerGroup: consumerGroup,
	}, svc, consumer); err != nil && err != context.Canceled {
		panic(err)
	}
}
