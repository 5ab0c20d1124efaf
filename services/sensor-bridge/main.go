package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/redis/go-redis/v9"

	"thermowatch/internal/brokerlink"
	"thermowatch/internal/health"
	"thermowatch/internal/hotcache"
	"thermowatch/internal/ingest"
	"thermowatch/internal/logging"
	"thermowatch/internal/metrics"
	"thermowatch/internal/storage"
)

const serviceName = "sensor-bridge"

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		slog.Error("Kritická chyba: Nelze načíst konfiguraci", "error", err)
		os.Exit(1)
	}

	// Publisher (výstupní topic + logy) musí vzniknout dřív než logger,
	// jinak bychom start nezalogovali do MQTT.
	publisher := newPublisher(cfg)
	defer publisher.Disconnect(250)

	var extra []io.Writer
	if cfg.ShipLogs {
		extra = append(extra, logging.NewMqttLogWriter(publisher, serviceName))
	}
	logger := logging.New(serviceName, cfg.LogLevel, extra...)
	logger.Info("Spouštím službu Sensor Bridge", "broker", cfg.MQTTBroker, "input", cfg.InputTopic, "output", cfg.OutputTopic)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Pokud se nelze připojit k DB při startu, nemá smysl pokračovat.
	// Docker kontejner se restartuje a zkusí to znovu.
	store, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("Kritická chyba: Nelze se připojit k DB", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		logger.Error("Kritická chyba: Migrace schématu selhala", "error", err)
		os.Exit(1)
	}

	checker := health.NewChecker()
	checker.Add("database", store)
	checker.Add("mqtt_publisher", health.PingFunc(func(context.Context) error {
		if !publisher.IsConnectionOpen() {
			return errors.New("not connected")
		}
		return nil
	}))

	var latestCache ingest.LatestCache
	if cfg.ValkeyAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.ValkeyAddr})
		defer rdb.Close()
		cache := hotcache.NewRedis(rdb)
		latestCache = cache
		checker.Add("valkey", cache)
	}

	m := metrics.New(serviceName)
	ingestSvc := ingest.NewService(store, latestCache, m, logger)
	bridge := NewBridge(ingestSvc, publisher, cfg.OutputTopic, cfg.QueueSize, logger)

	// Broker Link vlastní odběrové spojení a jeho reconnecty.
	link := brokerlink.New(&brokerlink.PahoDialer{
		Broker:   cfg.MQTTBroker,
		ClientID: brokerlink.UniqueClientID(cfg.MQTTClientID),
		Topic:    cfg.InputTopic,
		QoS:      byte(cfg.QoS),
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
	},
		brokerlink.WithHandshakeTimeout(cfg.HandshakeTimeout),
		brokerlink.WithBackoff(cfg.BackoffInitial, cfg.BackoffMax),
		brokerlink.WithLogger(logger),
	)
	link.AddObserver(bridge.Observer())
	link.AddObserver(m)
	checker.Add("broker_link", health.PingFunc(func(context.Context) error {
		if st := link.State(); st != brokerlink.Connected {
			return errors.New(st.String())
		}
		return nil
	}))

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		bridge.Run(ctx)
	}()
	link.Start(ctx)

	// Health + metriky pro Docker/K8s a Prometheus.
	mux := http.NewServeMux()
	mux.Handle("GET /health", checker.Handler())
	mux.Handle("GET /metrics", m.Handler())
	server := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("Health server běží", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health server spadl", "error", err)
		}
	}()

	// Graceful shutdown: blokujeme, dokud nepřijde SIGINT (Ctrl+C) nebo SIGTERM (Docker stop).
	<-ctx.Done()
	logger.Info("Ukončuji službu...")

	link.Stop()
	<-workerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
	// Zde proběhnou defery (disconnect MQTT, close DB, close Valkey)
}

// newPublisher vytvoří paho klienta jen pro publikaci. Na rozdíl od odběru
// tady necháváme paho reconnect zapnutý; zprávy jsou fire-and-forget.
func newPublisher(cfg Config) mqtt.Client {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(brokerlink.UniqueClientID(cfg.MQTTClientID + "-pub")).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTPassword)
	}

	client := mqtt.NewClient(opts)
	// S ConnectRetry se token dokončí až po úspěšném připojení, proto čekáme omezeně.
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		// Fallback: logujeme jen na stdout, paho to zkouší dál na pozadí.
		slog.Warn("MQTT publisher zatím nepřipojen", "broker", cfg.MQTTBroker, "error", token.Error())
	}
	return client
}
