package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"FundOrders/internal/batch"
	natsbroker "FundOrders/internal/brokers/nats"
	"FundOrders/internal/config"
	"FundOrders/internal/navclient"
	"FundOrders/internal/paymentgateway"
	"FundOrders/internal/services/nav"
	"FundOrders/internal/services/order"
	"FundOrders/internal/services/sip"
	"FundOrders/internal/storage/postgres"
	"FundOrders/internal/storage/redis"
	handler "FundOrders/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("starting application",
		slog.String("env", cfg.Env),
	)

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

	redisClient := redis.New(cfg.RedisCfg)
	navFeed := navclient.New(cfg.NavFeedCfg, log)

	nc, err := nats.Connect(cfg.NatsCfg.URL)
	if err != nil {
		log.Error("failed to connect to nats", "error", err)
		os.Exit(1)
	}
	log.Info("connected to nats broker", "url", cfg.NatsCfg.URL)

	js, err := nc.JetStream()
	if err != nil {
		log.Error("failed to get jetstream context", "error", err)
		os.Exit(1)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     "ORDERS",
		Subjects: []string{"orders.*"},
	})
	if err != nil {
		log.Error("failed to add orders stream", "error", err)
		os.Exit(1)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     "NAVS",
		Subjects: []string{"navs.*"},
	})
	if err != nil {
		log.Error("failed to add navs stream", "error", err)
		os.Exit(1)
	}

	publisher, err := natsbroker.New(nc, log)
	if err != nil {
		log.Error("failed to create publisher", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// NAV poll loop: feed -> redis cache + nav history + NAVS stream.
	go func() {
		interval := time.Duration(cfg.NavFeedCfg.PollInterval) * time.Second
		for {
			quotes, err := navFeed.GetNavs()
			if err != nil {
				log.Error("nav poll failed", "error", err)
				time.Sleep(interval)
				continue
			}
			if err := redisClient.SaveNavs(ctx, quotes); err != nil {
				log.Error("failed to cache navs", "error", err)
			}
			if err := storage.SaveNavs(ctx, quotes); err != nil {
				log.Error("failed to store navs", "error", err)
			}
			for _, quote := range quotes {
				if err := publisher.Publish("navs."+quote.SchemeCode, quote); err != nil {
					log.Error("failed to publish nav", "scheme_code", quote.SchemeCode, "error", err)
				}
			}
			time.Sleep(interval)
		}
	}()

	gateway := paymentgateway.New(cfg.RazorpayCfg, log)
	navService := nav.New(log, redisClient, storage)
	orderService := order.New(log, storage, gateway, navService, publisher)
	sipService := sip.New(log, storage, orderService, gateway)
	processor := batch.New(log, storage, storage, orderService, sipService)

	// Daily pass at the configured hour; the admin endpoint can trigger
	// extra passes for any date, repeats are no-ops.
	go func() {
		for {
			time.Sleep(untilHour(cfg.BatchCfg.RunHour))
			if err := processor.ProcessAsOf(ctx, time.Now()); err != nil {
				log.Error("daily batch pass failed", "error", err)
			}
		}
	}()

	validate := validator.New()

	orderHandler := handler.NewOrderHandler(log, orderService, validate)
	sipHandler := handler.NewSipHandler(log, sipService, validate)
	adminHandler := handler.NewAdminHandler(log, processor, validate)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))
	r.Mount("/orders", orderHandler.Routes())
	r.Mount("/sips", sipHandler.Routes())
	r.Mount("/admin", adminHandler.Routes())

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	log.Info("Starting server on " + addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Error("Server failed", "error", err)
	}
}

func untilHour(hour int) time.Duration {
	now := time.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal, envDev:
		log = slog.New(
			slog.NewJSONHandler(
				os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(
				os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(
				os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
