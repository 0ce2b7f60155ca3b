package nats

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

type Publisher struct {
	log *slog.Logger
	js  nats.JetStreamContext
}

func New(nc *nats.Conn, log *slog.Logger) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{log: log, js: js}, nil
}

func (p *Publisher) Publish(subject string, msg interface{}) error {
	const op = "nats.Publish"

	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Error("marshalling message", "op", op, "error", err)
		return fmt.Errorf("marshal %T: %w", msg, err)
	}

	if _, err := p.js.Publish(subject, data); err != nil {
		p.log.Error("publishing message", "op", op, "subject", subject, "error", err)
		return fmt.Errorf("publishing message: %w", err)
	}

	p.log.Debug("message published", "subject", subject)
	return nil
}
