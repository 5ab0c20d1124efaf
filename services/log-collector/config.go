package main

import (
	"thermowatch/internal/config"
)

// Config drží nastavení pro službu Log Collector.
type Config struct {
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string

	// LogTopic: kde posloucháme logy, které posílá logging.MqttLogWriter.
	LogTopic string

	// LogDir: adresář pro soubory <služba>.log. V Dockeru namapovaný volume.
	LogDir string

	LogLevel string
}

func LoadConfig() (Config, error) {
	src, err := config.Load()
	if err != nil {
		return Config{}, err
	}
	return Config{
		MQTTBroker:   src.String("MQTT_BROKER", "tcp://mosquitto:1883"),
		MQTTClientID: src.String("MQTT_CLIENT_ID", "log-collector"),
		MQTTUsername: src.String("MQTT_USERNAME", ""),
		MQTTPassword: src.String("MQTT_PASSWORD", ""),
		LogTopic:     src.String("LOG_TOPIC", "logs/#"),
		LogDir:       src.String("LOG_DIR", "/var/log/thermowatch"),
		LogLevel:     src.String("LOG_LEVEL", "info"),
	}, nil
}
