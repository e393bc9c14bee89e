package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/garnizeh/uptime-monitor/internal/alert"
	"github.com/garnizeh/uptime-monitor/internal/config"
	"github.com/garnizeh/uptime-monitor/internal/database"
	"github.com/garnizeh/uptime-monitor/internal/probe"
	"github.com/garnizeh/uptime-monitor/internal/scheduler"
	"github.com/garnizeh/uptime-monitor/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("%s - failed to load config: %v", time.Now().UTC().Format(time.RFC3339), err)
	}

	db, err := database.InitDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("%s - failed to initialize database: %v", time.Now().UTC().Format(time.RFC3339), err)
	}
	defer func() {
		if err := database.CloseDB(db); err != nil {
			log.Printf("%s - warning: failed to close database: %v", time.Now().UTC().Format(time.RFC3339), err)
		}
	}()

	alerts := alert.NewRegistry(alert.LogSender{})
	if cfg.TelegramBotToken != "" {
		tg, err := alert.NewTelegramSender(database.NewQueries(db), cfg.TelegramBotToken, cfg.TelegramChatID, cfg.TelegramParseMode)
		if err != nil {
			log.Fatalf("%s - failed to configure telegram sender: %v", time.Now().UTC().Format(time.RFC3339), err)
		}
		alerts.Register(tg)
	}

	sched := scheduler.New(db, cfg.LeaseTimeout)
	w := worker.New(cfg, sched, probe.NewChecker(), alerts)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := w.Run(sigCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("%s - worker stopped: %v", time.Now().UTC().Format(time.RFC3339), err)
		os.Exit(1)
	}

	log.Printf("%s - worker exited cleanly", time.Now().UTC().Format(time.RFC3339))
}
