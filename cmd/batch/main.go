// One-shot batch trigger: runs a single pass for a date and exits.
// Intended for cron and for re-running a missed day.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"FundOrders/internal/batch"
	"FundOrders/internal/config"
	"FundOrders/internal/paymentgateway"
	"FundOrders/internal/services/nav"
	"FundOrders/internal/services/order"
	"FundOrders/internal/services/sip"
	"FundOrders/internal/storage/postgres"
)

func main() {
	var configPath, dateArg string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.StringVar(&dateArg, "date", "", "process as of this date (yyyy-mm-dd), default today")
	flag.Parse()

	cfg := config.MustLoadByPath(configPath)

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	asOf := time.Now()
	if dateArg != "" {
		parsed, err := time.Parse("2006-01-02", dateArg)
		if err != nil {
			log.Error("invalid date", "date", dateArg, "error", err)
			os.Exit(1)
		}
		asOf = parsed
	}

	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.PostgresCfg.Username,
		cfg.PostgresCfg.Password,
		cfg.PostgresCfg.Host,
		cfg.PostgresCfg.Port,
		cfg.PostgresCfg.Database)

	storage, err := postgres.New(connString)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	gateway := paymentgateway.New(cfg.RazorpayCfg, log)
	navService := nav.New(log, nil, storage)
	orderService := order.New(log, storage, gateway, navService, nil)
	sipService := sip.New(log, storage, orderService, gateway)
	processor := batch.New(log, storage, storage, orderService, sipService)

	if err := processor.ProcessAsOf(context.Background(), asOf); err != nil {
		log.Error("batch pass failed", "as_of", asOf, "error", err)
		os.Exit(1)
	}

	log.Info("batch pass done", "as_of", asOf)
}
