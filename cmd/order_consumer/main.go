// Durable consumer of order events. Downstream jobs (portfolio
// refresh, notifications) hang off this stream instead of polling the
// ledger.
package main

import (
	"encoding/json"
	"log/slog"
	"os"

	"FundOrders/internal/services/order"

	"github.com/nats-io/nats.go"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}

	nc, err := nats.Connect(url)
	if err != nil {
		log.Error("failed to connect to nats", "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		log.Error("failed to get jetstream context", "error", err)
		os.Exit(1)
	}

	_, err = js.Subscribe("orders.*", func(msg *nats.Msg) {
		var event order.OrderEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Error("invalid order event", "error", err)
			return
		}

		log.Info("order event",
			"subject", msg.Subject,
			"order_id", event.OrderId,
			"user_id", event.UserId,
			"fund_code", event.FundCode,
			"units_allotted", event.UnitsAllotted)
		msg.Ack()
	}, nats.Durable("ORDER_PROCESSOR"))
	if err != nil {
		log.Error("failed to subscribe", "error", err)
		os.Exit(1)
	}

	select {}
}
