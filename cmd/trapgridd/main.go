package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/trapgrid/trapgrid-go/internal/api"
	"github.com/trapgrid/trapgrid-go/internal/config"
	"github.com/trapgrid/trapgrid-go/internal/game"
	"github.com/trapgrid/trapgrid-go/internal/profile"
	"github.com/trapgrid/trapgrid-go/internal/seeds"
	"github.com/trapgrid/trapgrid-go/internal/store"
	"github.com/trapgrid/trapgrid-go/internal/wallet"
)

const (
	gdataAppName      = "trapgrid"
	recorderFlushSize = 25
	shutdownTimeout   = 10 * time.Second
)

// kvStore is the common surface of the sqlite, gdata, and memory key-value
// stores; wallet, profile, and fairness state all go through it.
type kvStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

func main() {
	log.SetPrefix("[trapgridd] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("run: %v", err)
	}
	log.Println("goodbye")
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log.Printf("starting trapgridd %s (go %s)", api.EngineVersion, runtime.Version())

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	defer db.Close()

	kv, closeKV, err := openKV(cfg, db)
	if err != nil {
		return err
	}
	defer closeKV()

	w, err := wallet.Load(ctx, kv)
	if err != nil {
		return fmt.Errorf("load wallet: %w", err)
	}
	log.Printf("wallet loaded balance=%s", w.Balance())

	vault := seeds.NewVault(cfg.KeyringService, cfg.SecretsPath())
	seedMgr, err := seeds.Open(ctx, vault, kv)
	if err != nil {
		return fmt.Errorf("open seed manager: %w", err)
	}
	if cfg.ClientSeed != "" {
		// Pinned seeds win over whatever the store remembers.
		if err := seedMgr.SetClientSeed(cfg.ClientSeed); err != nil {
			return fmt.Errorf("pin client seed: %w", err)
		}
		log.Printf("client seed pinned from environment")
	}
	info := seedMgr.Info()
	log.Printf("fairness ready server_seed_hash=%s nonce=%d", info.ServerSeedHash[:16], info.Nonce)

	profiles := profile.NewManager(ctx, kv)
	recorder := store.NewRecorder(db, recorderFlushSize)

	engine := game.NewEngine(game.Config{
		Wallet:   w,
		Dealer:   seedMgr,
		Recorder: recorder,
	})

	srv := api.NewServer(api.Config{
		Engine:   engine,
		Seeds:    seedMgr,
		Profiles: profiles,
		DB:       db,
		Recorder: recorder,
		Origins:  cfg.CORSOrigins,
	})

	httpServer := &http.Server{
		Addr:         cfg.Listen,
		Handler:      srv.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(ln)
	}()
	log.Printf("listening on http://%s (db=%s kv=%s)", ln.Addr(), cfg.DBPath, cfg.KVBackend)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		log.Println("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}

	// Buffered rounds go to the ledger before the database closes.
	recorder.Flush()
	return nil
}

// openKV picks the key-value backend for wallet, profile, and fairness state.
// The rounds ledger stays in the SQLite database no matter what.
func openKV(cfg config.Config, db *store.DB) (kvStore, func() error, error) {
	switch cfg.KVBackend {
	case config.BackendSQLite:
		// Same database the ledger uses; closed by the caller.
		return db, func() error { return nil }, nil
	case config.BackendGdata:
		g, err := store.OpenGdataKV(gdataAppName)
		if err != nil {
			return nil, nil, fmt.Errorf("open gdata store: %w", err)
		}
		return g, g.Close, nil
	case config.BackendMemory:
		m := store.NewMemoryKV()
		return m, m.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown kv backend %q", cfg.KVBackend)
}
