package main

import (
	"time"

	"thermowatch/internal/config"
)

// Config klientské strany: odběr živé hodnoty z brokera + pull limitu z API.
type Config struct {
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	Topic        string

	HandshakeTimeout time.Duration
	BackoffInitial   time.Duration
	BackoffMax       time.Duration

	// APIURL: adresa sensor-api, odkud se stahuje aktuální limit.
	APIURL string
	// ThresholdRefresh: jak často limit obnovujeme.
	ThresholdRefresh time.Duration

	LogLevel string
	HTTPPort string
}

func LoadConfig() (Config, error) {
	src, err := config.Load()
	if err != nil {
		return Config{}, err
	}
	return Config{
		MQTTBroker:   src.String("MQTT_BROKER", "tcp://mosquitto:1883"),
		MQTTClientID: src.String("MQTT_CLIENT_ID", "live-monitor"),
		MQTTUsername: src.String("MQTT_USERNAME", ""),
		MQTTPassword: src.String("MQTT_PASSWORD", ""),
		Topic:        src.String("MQTT_TOPIC", "sensors/temperature"),

		HandshakeTimeout: src.Duration("MQTT_HANDSHAKE_TIMEOUT", 10*time.Second),
		BackoffInitial:   src.Duration("MQTT_BACKOFF_INITIAL", time.Second),
		BackoffMax:       src.Duration("MQTT_BACKOFF_MAX", time.Minute),

		APIURL:           src.String("API_URL", "http://sensor-api:8080"),
		ThresholdRefresh: src.Duration("THRESHOLD_REFRESH", 30*time.Second),

		LogLevel: src.String("LOG_LEVEL", "info"),
		HTTPPort: src.String("HTTP_PORT", "3000"),
	}, nil
}
