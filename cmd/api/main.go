package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/oakbooks/oakbooks/internal/account"
	accountStore "github.com/oakbooks/oakbooks/internal/account/store"
	"github.com/oakbooks/oakbooks/internal/config"
	"github.com/oakbooks/oakbooks/internal/database"
	oakbooksHttp "github.com/oakbooks/oakbooks/internal/http"
	accountHandler "github.com/oakbooks/oakbooks/internal/http/account"
	ledgerHandler "github.com/oakbooks/oakbooks/internal/http/ledger"
	"github.com/oakbooks/oakbooks/internal/ledger"
	ledgerStore "github.com/oakbooks/oakbooks/internal/ledger/store"
	"github.com/oakbooks/oakbooks/internal/sequence"
	sequenceStore "github.com/oakbooks/oakbooks/internal/sequence/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.ConnectionString(), database.Options{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var (
		accountService  = account.NewService(accountStore.New(db))
		sequenceService = sequence.NewService(sequenceStore.New(db))
		ledgerService   = ledger.NewService(ledgerStore.New(db), sequenceService, accountService)
	)

	var (
		transactionH = ledgerHandler.NewHandler(ledgerService)
		accountH     = accountHandler.NewHandler(accountService, ledgerService)
	)

	router := oakbooksHttp.New(transactionH, accountH, oakbooksHttp.Options{
		JWTSecret:      []byte(cfg.Auth.JWTSecret),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	port := fmt.Sprintf(":%d", cfg.App.Port)
	slog.Info("starting server", "port", port)

	if err := http.ListenAndServe(port, router); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
