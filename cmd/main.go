package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	redis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/alpenhaus/alpenhaus/internal/httpapi"
	"github.com/alpenhaus/alpenhaus/internal/lodge"
	"github.com/alpenhaus/alpenhaus/internal/notify"
	"github.com/alpenhaus/alpenhaus/internal/receipt"
	"github.com/alpenhaus/alpenhaus/internal/service/auth"
	"github.com/alpenhaus/alpenhaus/internal/service/expense"
	"github.com/alpenhaus/alpenhaus/internal/service/house"
	"github.com/alpenhaus/alpenhaus/internal/service/stay"
	"github.com/alpenhaus/alpenhaus/internal/storage/memory"
	pgstore "github.com/alpenhaus/alpenhaus/internal/storage/postgres"
	"github.com/alpenhaus/alpenhaus/internal/storage/rediscache"
	"github.com/alpenhaus/alpenhaus/pkg/logging"
)

// repo and writer unify the read and write interfaces the services need so
// one store value can be passed around without repeating interface lists.
type repo interface {
	expense.Repo
	stay.Repo
	house.Repo
	auth.Repo
}

type writer interface {
	expense.Writer
	stay.Writer
	house.Writer
	auth.Writer
}

type store interface {
	repo
	writer
}

func main() {
	// .env is optional; real deployments set variables directly.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.FromEnv()
	slog.SetDefault(logger)

	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		secret = "dev-secret-change-me"
		logger.Warn("JWT_SECRET not set, using insecure dev secret")
	}
	tokens := auth.NewJWTManager(secret, 24*time.Hour)

	var st store
	var ready []httpapi.ReadyChecker
	var closeFn func()

	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		pg, err := pgstore.Open(ctx, dsn)
		if err != nil {
			logger.Error("failed to connect to postgres", "err", err)
			os.Exit(1)
		}
		st = pg
		ready = append(ready, pg)
		closeFn = pg.Close
		logger.Info("storage backend: postgres")
	} else {
		mem := memory.New()
		if devSeedEnabled() {
			seedDev(mem, logger)
		}
		st = mem
		logger.Info("storage backend: memory")
	}

	var cache expense.BalanceCache
	if addr := strings.TrimSpace(os.Getenv("REDIS_URL")); addr != "" {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			logger.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rc := rediscache.New(redis.NewClient(opts), logger)
		cache = rc
		ready = append(ready, rc)
		logger.Info("balance cache: redis")
	}

	expenseOpts := []expense.Option{
		expense.WithNotifier(notify.New(nil, logger)),
	}
	if cache != nil {
		expenseOpts = append(expenseOpts, expense.WithBalanceCache(cache))
	}
	if dir := strings.TrimSpace(os.Getenv("RECEIPT_DIR")); dir != "" {
		fs, err := receipt.NewFSStore(dir)
		if err != nil {
			logger.Error("failed to init receipt storage", "dir", dir, "err", err)
			os.Exit(1)
		}
		expenseOpts = append(expenseOpts, expense.WithReceipts(fs))
		logger.Info("receipt storage enabled", "dir", dir)
	}

	srvHandler := httpapi.New(httpapi.Deps{
		Auth:    auth.New(st, st, tokens),
		Houses:  house.New(st, st),
		Expense: expense.New(st, st, logger, expenseOpts...),
		Stays:   stay.New(st, st, cache, logger),
		Tokens:  tokens,
		Ready:   ready,
	}, logger).Handler()

	addr := strings.TrimSpace(os.Getenv("ADDR"))
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           srvHandler,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("alpenhaus service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	case err := <-errCh:
		logger.Error("server error", "err", err)
	}
	if closeFn != nil {
		closeFn()
	}
}

func devSeedEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEV_SEED"))) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// seedDev loads a small fixture so the API is usable immediately in local dev.
func seedDev(mem *memory.Store, logger *slog.Logger) {
	now := time.Now().UTC()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("dev seed failed", "err", err)
		return
	}
	alice := lodge.User{ID: uuid.New(), Email: "alice@example.com", Name: "Alice", PasswordHash: string(hash), CreatedAt: now}
	bob := lodge.User{ID: uuid.New(), Email: "bob@example.com", Name: "Bob", PasswordHash: string(hash), CreatedAt: now}
	rate, _ := money.NewAmountFromMinorUnits("USD", 2500)
	chalet := lodge.House{ID: uuid.New(), Name: "Powder Chalet", Currency: "USD", GuestNightlyRate: rate, CreatedAt: now}
	mem.SeedUser(alice)
	mem.SeedUser(bob)
	mem.SeedHouse(chalet)
	mem.SeedMembership(lodge.Membership{HouseID: chalet.ID, UserID: alice.ID, Role: lodge.RoleAdmin, Status: lodge.StatusAccepted, JoinedAt: now})
	mem.SeedMembership(lodge.Membership{HouseID: chalet.ID, UserID: bob.ID, Role: lodge.RoleMember, Status: lodge.StatusAccepted, JoinedAt: now.Add(time.Minute)})

	logger.Info("DEV seed (memory)", "house_id", chalet.ID.String(), "admin_id", alice.ID.String(), "member_id", bob.ID.String())
	fmt.Println("==================== DEV SEED ====================")
	fmt.Printf("house_id: %s\n", chalet.ID)
	fmt.Printf("alice (admin): %s  login alice@example.com / password\n", alice.ID)
	fmt.Printf("bob (member):  %s  login bob@example.com / password\n", bob.ID)
	fmt.Println("==================================================")
}
