package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	TrackGate TrackGateConfig `yaml:"trackgate"`
	Carriers  CarriersConfig  `yaml:"carriers"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                         string `yaml:"host"`
	Port                         int    `yaml:"port"`
	RecordUpdatedTopicName       string `yaml:"record_updated_topic_name"`
	ResolutionCompletedTopicName string `yaml:"resolution_completed_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type TrackGateConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	// Кэш нормализованных результатов трекинга (0 — кэш выключен).
	ResultCacheTTLSeconds int `yaml:"result_cache_ttl_seconds"`

	// Потолок обращений к API одного перевозчика в минуту (0 — без лимита).
	CarrierRateLimitPerMinute int `yaml:"carrier_rate_limit_per_minute"`
}

type CarriersConfig struct {
	UPS   CarrierAPIConfig `yaml:"ups"`
	FedEx CarrierAPIConfig `yaml:"fedex"`
}

// CarrierAPIConfig — креды и базовый URL одного перевозчика. base_url
// переопределяется в тестах/стейджинге, чтобы ходить в эмулятор.
type CarrierAPIConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	BaseURL      string `yaml:"base_url"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
