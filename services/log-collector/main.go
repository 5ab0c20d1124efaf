package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"thermowatch/internal/brokerlink"
	"thermowatch/internal/logging"
)

const serviceName = "log-collector"

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		slog.Error("Kritická chyba: Nelze načíst konfiguraci", "error", err)
		os.Exit(1)
	}

	// Vlastní logger jen na stdout; do MQTT by se logy zacyklily.
	logger := logging.New(serviceName, cfg.LogLevel)
	logger.Info("Startuji Log Collector", "dir", cfg.LogDir, "topic", cfg.LogTopic)

	collector, err := NewCollector(cfg.LogDir)
	if err != nil {
		logger.Error("Nelze vytvořit adresář pro logy", "error", err)
		os.Exit(1)
	}

	// Tato funkce se spustí pro každou přijatou logovací zprávu z jakékoliv služby.
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		service, err := collector.Append(msg.Topic(), msg.Payload())
		if err != nil {
			logger.Error("Chyba při zápisu logu", "topic", msg.Topic(), "service", service, "error", err)
		}
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(brokerlink.UniqueClientID(cfg.MQTTClientID)).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTPassword)
	}
	// Po každém (re)connectu se znovu přihlásíme k odběru, clean session odběry zahazuje.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if token := c.Subscribe(cfg.LogTopic, 0, handler); token.Wait() && token.Error() != nil {
			logger.Error("Subscribe selhal", "topic", cfg.LogTopic, "error", token.Error())
			return
		}
		logger.Info("Poslouchám logy", "topic", cfg.LogTopic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("Spojení s brokerem ztraceno", "error", err)
	})

	client := mqtt.NewClient(opts)
	client.Connect()
	defer client.Disconnect(250)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("Ukončuji službu...")
}
