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

	"github.com/redis/go-redis/v9"

	"thermowatch/internal/api"
	"thermowatch/internal/auth"
	"thermowatch/internal/health"
	"thermowatch/internal/history"
	"thermowatch/internal/hotcache"
	"thermowatch/internal/ingest"
	"thermowatch/internal/logging"
	"thermowatch/internal/metrics"
	"thermowatch/internal/storage"
	"thermowatch/internal/threshold"
)

const serviceName = "sensor-api"

func main() {
	// 1. Načtení konfigurace
	cfg, err := LoadConfig()
	if err != nil {
		slog.Error("Kritická chyba: Nelze načíst konfiguraci", "error", err)
		os.Exit(1)
	}

	// 2. Logování na JSON (standard pro kontejnery)
	logger := logging.New(serviceName, cfg.LogLevel)
	logger.Info("Startuji Sensor API", "port", cfg.HTTPPort)

	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET není nastaven, změna limitů nebude možná")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Připojení k databázi a migrace schématu
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

	// 4. Valkey (Redis) je volitelný, bez něj se poslední hodnota čte z DB.
	// Proměnné rozhraní necháváme nil, pokud cache vypnutá.
	var (
		latestCache  ingest.LatestCache
		latestSource history.LatestSource
	)
	if cfg.ValkeyAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.ValkeyAddr})
		defer rdb.Close()

		cache := hotcache.NewRedis(rdb)
		if err := cache.Ping(ctx); err != nil {
			// Nekončíme: cache je best-effort, health ukáže degraded.
			logger.Warn("Valkey nedostupný, pokračuji bez něj", "addr", cfg.ValkeyAddr, "error", err)
		}
		latestCache, latestSource = cache, cache
		checker.Add("valkey", cache)
	}

	// 5. Inicializace komponent (Wiring)
	m := metrics.New(serviceName)
	ingestSvc := ingest.NewService(store, latestCache, m, logger)
	historySvc := history.NewService(store, latestSource, cfg.HistoryQueryTimeout, logger)
	thresholdSvc := threshold.NewService(store, m, logger)
	authz := auth.NewJWTAuthorizer(cfg.JWTSecret, cfg.MutateRoles)

	handler := api.NewAPIHandler(ingestSvc, historySvc, thresholdSvc, authz, logger)

	// 6. Nastavení routeru
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("GET /health", checker.Handler())
	mux.Handle("GET /metrics", m.Handler())

	// 7. Spuštění HTTP serveru
	// Handler obalíme CorsMiddlewarem, aby fungovalo volání z frontendu.
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.CorsMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP server naslouchá", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server spadl", "error", err)
			stop()
		}
	}()

	// 8. Graceful shutdown: čekáme na SIGINT/SIGTERM, pak dobíhají rozpracované requesty.
	<-ctx.Done()
	logger.Info("Ukončuji službu...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server se neukončil korektně", "error", err)
	}
}
