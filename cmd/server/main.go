// Command server runs the integrity verification server.
//
// On startup the server generates an ML-KEM key pair, publishes it at
// GET /public-key and verifies encrypted integrity payloads posted to
// POST /verify against a trust store.
//
// # Trust store
//
// With --postgres-host set, trust records live in PostgreSQL and the
// schema is migrated on start. Otherwise an in-memory store is used,
// seeded from the --trust-records JSON file:
//
//	[{"merkleRoot":"<64 hex>","signerFingerprint":"<64 hex>",
//	  "version":"1.0.0","variant":"release"}]
//
// # Usage
//
//	go run ./cmd/server --addr=:8080 --trust-records=records.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/anchorpq/anchorpq/api/httpserver"
	"github.com/anchorpq/anchorpq/cmd/common"
	"github.com/anchorpq/anchorpq/crypto"
	"github.com/anchorpq/anchorpq/protocol"
	"github.com/anchorpq/anchorpq/server"
	"github.com/anchorpq/anchorpq/services"
)

func main() {
	var (
		addr            = flag.String("addr", ":8080", "HTTP listen address")
		parameterSet    = flag.String("parameter-set", "ML-KEM-768", "ML-KEM parameter set (ML-KEM-512/768/1024 or level1/3/5)")
		replayWindow    = flag.Duration("replay-window", 5*time.Minute, "maximum accepted request age")
		clockSkew       = flag.Duration("clock-skew", 30*time.Second, "tolerated client clock drift into the future")
		trustTimeout    = flag.Duration("trust-timeout", 3*time.Second, "trust store lookup timeout")
		rotationOverlap = flag.Duration("rotation-overlap", 24*time.Hour, "how long a superseded key stays accepted")
		trustRecords    = flag.String("trust-records", "", "JSON file with trust records to seed")
		rateLimit       = flag.Int("rate-limit", 60, "verification requests per minute per client IP (0 disables)")
		drainDuration   = flag.Duration("drain-duration", 5*time.Second, "wait after /drain before shutdown readiness")
		enablePprof     = flag.Bool("pprof", false, "enable pprof debug endpoints")
		logJSON         = flag.Bool("log-json", false, "log in JSON")
		logDebug        = flag.Bool("log-debug", false, "log debug messages")

		pgHost     = flag.String("postgres-host", common.GetEnv("POSTGRES_HOST", ""), "PostgreSQL host (empty: in-memory trust store)")
		pgPort     = flag.String("postgres-port", common.GetEnv("POSTGRES_PORT", "5432"), "PostgreSQL port")
		pgUser     = flag.String("postgres-user", common.GetEnv("POSTGRES_USER", "anchorpq"), "PostgreSQL user")
		pgPassword = flag.String("postgres-password", common.GetEnv("POSTGRES_PASSWORD", ""), "PostgreSQL password")
		pgDatabase = flag.String("postgres-db", common.GetEnv("POSTGRES_DB", "anchorpq"), "PostgreSQL database")
		pgSSLMode  = flag.String("postgres-sslmode", common.GetEnv("POSTGRES_SSLMODE", ""), "PostgreSQL sslmode")
	)
	flag.Parse()

	log := common.NewLogger(*logJSON, *logDebug)

	set, err := crypto.ParseParameterSet(*parameterSet)
	if err != nil {
		log.Error("invalid parameter set", "err", err)
		os.Exit(1)
	}

	cfg := protocol.DefaultConfig()
	cfg.ParameterSet = set
	cfg.ReplayWindow = *replayWindow
	cfg.ClockSkew = *clockSkew
	cfg.TrustStoreTimeout = *trustTimeout
	cfg.KeyRotationOverlap = *rotationOverlap
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	exchange, err := crypto.NewKeyExchange(cfg.ParameterSet)
	if err != nil {
		log.Error("create key exchange", "err", err)
		os.Exit(1)
	}

	ring := server.NewKeyRing(exchange, cfg.KeyRotationOverlap)
	key, err := ring.Generate(time.Now())
	if err != nil {
		log.Error("generate server key", "err", err)
		os.Exit(1)
	}
	log.Info("generated verification key", "keyId", key.ID, "parameterSet", cfg.ParameterSet)

	trust, registrar, seed, closeStore, err := buildTrustStore(*pgHost, *pgPort, *pgUser, *pgPassword, *pgDatabase, *pgSSLMode)
	if err != nil {
		log.Error("trust store setup failed", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	if *trustRecords != "" {
		n, err := seedTrustRecords(*trustRecords, seed)
		if err != nil {
			log.Error("seeding trust records failed", "err", err)
			os.Exit(1)
		}
		log.Info("seeded trust records", "count", n, "file", *trustRecords)
	}

	svc := server.NewVerificationService(cfg, exchange, ring, trust, log)
	handler := server.NewHandler(svc, ring, server.NewRateLimiter(*rateLimit), registrar, log)

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               *addr,
		EnablePprof:              *enablePprof,
		Log:                      log,
		DrainDuration:            *drainDuration,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, handler)
	if err != nil {
		log.Error("create server", "err", err)
		os.Exit(1)
	}

	srv.RunInBackground()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	srv.Shutdown()
}

// buildTrustStore picks the backend. The registrar backs the admin
// endpoint; the seed function loads one trust entry at startup.
func buildTrustStore(host, port, user, password, database, sslMode string) (server.TrustStore, server.TrustRegistrar, func(services.TrustRecord) error, func(), error) {
	if host == "" {
		mem := server.NewInMemoryTrustStore()
		seed := func(r services.TrustRecord) error {
			return mem.RegisterRecord(context.Background(), r.MerkleRoot, r.SignerFingerprint, r.Version, r.Variant)
		}
		return mem, mem, seed, func() {}, nil
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	store, err := services.NewPostgresTrustStore(&services.PostgresConfig{
		Host:     host,
		Port:     portNum,
		User:     user,
		Password: password,
		Database: database,
		SSLMode:  sslMode,
	})
	if err != nil {
		return nil, nil, nil, nil, err
	}

	seed := func(r services.TrustRecord) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return store.Register(ctx, r)
	}
	return store, store, seed, func() { store.Close() }, nil
}

func seedTrustRecords(path string, seed func(services.TrustRecord) error) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var records []services.TrustRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, err
	}

	for _, record := range records {
		if err := seed(record); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}
