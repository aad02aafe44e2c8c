package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
	"golang.org/x/sync/errgroup"

	"github.com/terminal-bench/assetvault/internal/api"
	"github.com/terminal-bench/assetvault/internal/asset"
	"github.com/terminal-bench/assetvault/internal/auth"
	"github.com/terminal-bench/assetvault/internal/feed"
	"github.com/terminal-bench/assetvault/internal/journal"
	"github.com/terminal-bench/assetvault/internal/shares"
	"github.com/terminal-bench/assetvault/internal/telemetry"
	"github.com/terminal-bench/assetvault/internal/vault"
	"github.com/terminal-bench/assetvault/pkg/messaging"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8010"
	}

	natsURL := os.Getenv("NATS_URL")
	dbURL := os.Getenv("DATABASE_URL")
	redisURL := os.Getenv("REDIS_URL")
	etcdEndpoints := os.Getenv("ETCD_ENDPOINTS")
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	vaultAddr := asset.Address(os.Getenv("VAULT_ADDRESS"))
	if vaultAddr == asset.ZeroAddress {
		vaultAddr = "vault"
	}
	nativeCurrency := os.Getenv("NATIVE_CURRENCY")
	if nativeCurrency == "" {
		nativeCurrency = "ETH"
	}

	var natsClient *messaging.Client
	if natsURL != "" {
		var err error
		natsClient, err = messaging.NewClient(messaging.Config{
			URL:           natsURL,
			Name:          "vaultd",
			ReconnectWait: time.Second,
			MaxReconnects: 5,
		})
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer natsClient.Close()
	}

	bank := asset.NewBank()
	registry := asset.NewRegistry()
	if err := registry.Register(asset.NewBankCurrency(bank, nativeCurrency, 18, true, vaultAddr)); err != nil {
		log.Fatalf("Failed to register native currency: %v", err)
	}

	shareLedger := shares.NewLedger()
	v := vault.New(shareLedger, natsClient)

	var auditJournal *journal.Journal
	if dbURL != "" {
		db, err := sql.Open("postgres", dbURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		auditJournal = journal.New(db)
		if natsClient != nil {
			if err := auditJournal.Start(natsClient); err != nil {
				log.Fatalf("Failed to start journal: %v", err)
			}
		}
	}

	var redisClient *redis.Client
	if redisURL != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisURL})
		defer redisClient.Close()
	}

	if natsClient != nil {
		influxURL := os.Getenv("INFLUXDB_URL")
		if influxURL != "" {
			recorder := telemetry.NewRecorder(
				influxURL,
				os.Getenv("INFLUXDB_TOKEN"),
				os.Getenv("INFLUXDB_ORG"),
				os.Getenv("INFLUXDB_BUCKET"),
			)
			if err := recorder.Start(natsClient); err != nil {
				log.Fatalf("Failed to start telemetry: %v", err)
			}
			defer recorder.Close()
		}
	}

	var eventFeed *feed.Feed
	if natsClient != nil {
		eventFeed = feed.NewFeed(natsClient)
		if err := eventFeed.Start(); err != nil {
			log.Fatalf("Failed to start event feed: %v", err)
		}
		defer eventFeed.Stop()
	}

	server := api.NewServer(api.Config{
		RateLimitMax:    200,
		RateLimitWindow: time.Minute,
	}, api.Options{
		Vault:     v,
		Shares:    shareLedger,
		Registry:  registry,
		Bank:      bank,
		VaultAddr: vaultAddr,
		Auth:      auth.NewService(jwtSecret),
		Redis:     redisClient,
		Journal:   auditJournal,
		Feed:      eventFeed,
	})

	if etcdEndpoints != "" {
		if err := registerInstance(etcdEndpoints, port); err != nil {
			log.Fatalf("Failed to register in etcd: %v", err)
		}
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: server.Router(),
	}

	var g errgroup.Group
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// registerInstance announces this vaultd under a leased etcd key so
// peers can discover it; the lease lapses if the process dies.
func registerInstance(endpoints, port string) error {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   strings.Split(endpoints, ","),
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lease, err := cli.Grant(ctx, 10)
	if err != nil {
		return err
	}

	key := "/services/vaultd/" + uuid.New().String()
	if _, err := cli.Put(ctx, key, ":"+port, clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	keepAlive, err := cli.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range keepAlive {
		}
	}()
	return nil
}
