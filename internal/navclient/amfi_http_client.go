package navclient

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"FundOrders/internal/config"
	"FundOrders/internal/domain/models"
)

// AmfiHTTPClient pulls the latest published NAVs for the configured
// scheme codes from the fund data feed.
type AmfiHTTPClient struct {
	baseURL     string
	endpoint    string
	schemeCodes []string
	log         *slog.Logger
	client      *http.Client
}

func New(cfg config.NavFeedConfig, log *slog.Logger) *AmfiHTTPClient {
	return &AmfiHTTPClient{
		baseURL:     cfg.BaseURL,
		endpoint:    cfg.Endpoint,
		schemeCodes: cfg.SchemeCodes,
		log:         log,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (nc *AmfiHTTPClient) GetNavs() ([]models.NavQuote, error) {
	log := nc.log.With("method", "GetNavs")

	reqUrl := fmt.Sprintf("%s%s%s", nc.baseURL, nc.endpoint, nc.addParamsToUrl())

	req, err := http.NewRequest(http.MethodGet, reqUrl, nil)
	if err != nil {
		log.Error("failed to create request", "error", err)
		return nil, fmt.Errorf("could not create request: %w", err)
	}

	resp, err := nc.client.Do(req)
	if err != nil {
		log.Error("failed to make request", "error", err)
		return nil, fmt.Errorf("could not make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Error("unexpected status code",
			"status", resp.StatusCode,
			"response", string(body))
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	quotes := []models.NavQuote{}
	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		log.Error("failed to decode response", "error", err)
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return quotes, nil
}

func (nc *AmfiHTTPClient) addParamsToUrl() string {
	params := "?scheme_codes=["
	for i, code := range nc.schemeCodes {
		params = fmt.Sprintf("%s\"%s\"", params, code)
		if i != len(nc.schemeCodes)-1 {
			params = fmt.Sprintf("%s,", params)
		}
	}
	params = fmt.Sprintf("%s]", params)

	return params
}
