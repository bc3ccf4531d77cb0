package main

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"snipvault/cfg"
	"snipvault/metrics"
	"snipvault/pkg/crypt"
	"snipvault/pkg/keysrc"
	"snipvault/svc/api"
	"snipvault/svc/cache"
	"snipvault/svc/db"
	"snipvault/svc/lim"
	"snipvault/svc/svc"
	"snipvault/svc/util"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "-health" {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		dbPath := os.Getenv("DATABASE_PATH")
		if dbPath == "" {
			dbPath = "snipvault.db"
		}
		sqlDB, err := db.NewSQLite(dbPath)
		if err != nil {
			os.Exit(1)
		}
		defer sqlDB.Close()
		pingCtx, pingCancel := context.WithTimeout(ctx, 1*time.Second)
		defer pingCancel()
		if err := sqlDB.Ping(pingCtx); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}

	c, err := cfg.Load()
	if err != nil {
		util.Fatal().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}
	if err := cfg.Validate(c); err != nil {
		util.Fatal().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	defer c.Wipe()
	util.InitLog(c.LogLevel, c.Environment == "development")
	util.Info().Msg("starting snipvault API")
	metrics.Init()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	key, err := keysrc.Load(ctx, keysrc.Config{
		Source:           c.KeySource,
		EnvKeyB64:        c.EncryptionKey.Value(),
		FilePath:         c.KeyFile,
		VaultMount:       c.VaultKeyMount,
		VaultPath:        c.VaultKeyPath,
		VaultField:       c.VaultKeyField,
		AWSSecretID:      c.AWSKeySecretID,
		KMSCiphertextB64: c.KMSKeyCiphertext,
	})
	if err != nil {
		util.Fatal().Err(err).Str("source", c.KeySource).Msg("failed to load encryption key")
		os.Exit(1)
	}
	cipher, err := crypt.New(c.CipherMode, key)
	util.Wipe(key)
	if err != nil {
		util.Fatal().Err(err).Str("mode", c.CipherMode).Msg("failed to initialize cipher")
		os.Exit(1)
	}
	util.Info().Str("mode", cipher.Mode()).Str("source", c.KeySource).Msg("cipher initialized")

	sqlDB, err := db.NewSQLiteWithConfig(c.DatabasePath, c.DBMaxOpenConns, c.DBMaxIdleConns, c.DBQueryTimeout)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to initialize database")
		os.Exit(1)
	}
	defer sqlDB.Close()
	util.Info().Str("path", c.DatabasePath).Msg("database initialized")

	var rdb *db.Redis
	if c.RedisURL != "" {
		rdb, err = db.NewRedis(c.RedisURL, c)
		if err != nil {
			if c.Environment == "production" {
				util.Fatal().Err(err).Msg("redis required in production")
				os.Exit(1)
			}
			util.Warn().Err(err).Msg("redis unavailable (dev mode)")
		} else {
			util.Info().Msg("redis connected")
		}
	}
	if rdb != nil {
		defer rdb.Close()
	}

	lruCache, err := cache.NewLRU(c.LRUCacheSize)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to create LRU cache")
		os.Exit(1)
	}
	util.Info().Int("size", c.LRUCacheSize).Msg("LRU cache initialized")

	snippets := svc.NewSnippets(sqlDB, lruCache, rdb, cipher, c)
	util.Info().Msg("snippet service initialized")

	limiter := lim.New(c.RateLimit.RPM, c.RateLimit.Burst, c.RateLimit.ConservativeLimit, rdb, c.TrustedProxies)
	defer limiter.Stop()
	util.Info().
		Int("rpm", c.RateLimit.RPM).
		Int("burst", c.RateLimit.Burst).
		Strs("trusted_proxies", c.TrustedProxies).
		Msg("rate limiter initialized")

	server := api.NewServer(c, snippets, limiter, sqlDB, rdb)

	quitWAL := make(chan struct{})
	go db.StartWALMaintenance(sqlDB.DB(), quitWAL)
	util.Info().Msg("WAL maintenance worker started")

	reclaimer := svc.NewReclaimer(sqlDB, c.ReclaimInterval)
	if err := reclaimer.Start(ctx); err != nil {
		util.Error().Err(err).Msg("failed to start reclaimer")
	} else {
		util.Info().Dur("interval", c.ReclaimInterval).Msg("expired snippet reclaimer started")
	}

	go func() {
		util.Info().Msg("starting pprof server on :6060")
		if err := http.ListenAndServe(":6060", nil); err != nil {
			util.Warn().Err(err).Msg("pprof server failed")
		}
	}()

	util.Info().Str("port", c.Port).Str("environment", c.Environment).Msg("server starting")
	go func() {
		if err := server.Start(); err != nil {
			util.Fatal().Err(err).Msg("server failed")
			os.Exit(1)
		}
	}()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	util.Info().Msg("shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		util.Error().Err(err).Msg("server shutdown error")
	}
	cancel()
	close(quitWAL)
	util.Info().Msg("shutdown complete")
}
