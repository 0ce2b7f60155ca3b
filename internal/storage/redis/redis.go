package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"FundOrders/internal/config"
	"FundOrders/internal/domain/models"

	"github.com/go-redis/redis/v8"
)

const prefix = "fundorders:amfi:nav"

// Navs expire so a stale quote is never mistaken for the day's price.
const navTTL = 24 * time.Hour

type Redis struct {
	client *redis.Client
}

func New(redisConfig config.RedisConfig) *Redis {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisConfig.Host + ":" + strconv.Itoa(redisConfig.Port),
		Password: redisConfig.Password,
		DB:       redisConfig.Db,
	})

	return &Redis{
		client: redisClient,
	}
}

func (s *Redis) SaveNavs(ctx context.Context, quotes []models.NavQuote) error {
	log := slog.With("method", "SaveNavs")
	pipe := s.client.Pipeline()

	for _, quote := range quotes {
		key := fmt.Sprintf("%s:%s", prefix, quote.SchemeCode)
		value, _ := json.Marshal(quote)
		pipe.Set(ctx, key, value, navTTL)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		log.Error("failed to save navs", "err", err)
		return fmt.Errorf("failed to save navs: %w", err)
	}

	return nil
}

func (s *Redis) GetNav(ctx context.Context, schemeCode string) (models.NavQuote, error) {
	log := slog.With("method", "GetNav")

	data, err := s.client.Get(ctx, prefix+":"+schemeCode).Result()
	if err != nil {
		return models.NavQuote{}, fmt.Errorf("failed to get nav: %w", err)
	}

	var quote models.NavQuote
	if err := json.Unmarshal([]byte(data), &quote); err != nil {
		log.Error("failed to unmarshal nav", "data", data, "err", err)
		return models.NavQuote{}, fmt.Errorf("failed to unmarshal nav: %w", err)
	}

	log.Debug("got nav from redis", "scheme_code", schemeCode, "nav", quote.Nav)
	return quote, nil
}
