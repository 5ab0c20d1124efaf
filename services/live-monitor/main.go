package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"thermowatch/internal/apiclient"
	"thermowatch/internal/brokerlink"
	"thermowatch/internal/health"
	"thermowatch/internal/livecache"
	"thermowatch/internal/logging"
	"thermowatch/internal/metrics"
)

const serviceName = "live-monitor"

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		slog.Error("Kritická chyba: Nelze načíst konfiguraci", "error", err)
		os.Exit(1)
	}

	logger := logging.New(serviceName, cfg.LogLevel)
	logger.Info("Startuji Live Monitor", "broker", cfg.MQTTBroker, "topic", cfg.Topic, "api", cfg.APIURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Klient API (pull limitu a historie). Monitor se k DB nepřipojuje přímo.
	client := apiclient.New(cfg.APIURL)

	cache := livecache.New()
	m := metrics.New(serviceName)

	link := brokerlink.New(&brokerlink.PahoDialer{
		Broker:   cfg.MQTTBroker,
		ClientID: brokerlink.UniqueClientID(cfg.MQTTClientID),
		Topic:    cfg.Topic,
		QoS:      0,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
	},
		brokerlink.WithHandshakeTimeout(cfg.HandshakeTimeout),
		brokerlink.WithBackoff(cfg.BackoffInitial, cfg.BackoffMax),
		brokerlink.WithLogger(logger),
	)
	link.AddObserver(cache)
	link.AddObserver(m)

	monitor := NewMonitor(cache, client, cfg.ThresholdRefresh, logger)
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		monitor.Run(ctx)
	}()
	link.Start(ctx)

	checker := health.NewChecker()
	checker.Add("broker_link", health.PingFunc(func(context.Context) error {
		if st := link.State(); st != brokerlink.Connected {
			return errors.New(st.String())
		}
		return nil
	}))

	mux := http.NewServeMux()
	mux.Handle("GET /live", monitor.Handler())
	NewHistoryHandler(client, logger).RegisterRoutes(mux)
	mux.Handle("GET /health", checker.Handler())
	mux.Handle("GET /metrics", m.Handler())
	server := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("HTTP server naslouchá", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server spadl", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Ukončuji službu...")

	// Stop počká na finální Disconnected, pak už observery nic nedostanou.
	link.Stop()
	<-monitorDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
}
