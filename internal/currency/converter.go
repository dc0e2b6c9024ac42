package currency

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Spolkip/AtlasCoreSite/internal/apperror"
	"github.com/Spolkip/AtlasCoreSite/internal/httpclient"
	"github.com/Spolkip/AtlasCoreSite/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrConversionUnavailable is returned when no rate can be obtained
var ErrConversionUnavailable = apperror.Upstream("currency conversion is currently unavailable", nil)

// RateCache stores rate tables per base currency
type RateCache interface {
	GetRates(ctx context.Context, base string) (map[string]decimal.Decimal, error)
	SetRates(ctx context.Context, base string, rates map[string]decimal.Decimal, ttl time.Duration) error
}

// Converter converts amounts using a latest-rates HTTP API
type Converter struct {
	http     *httpclient.Client
	ratesURL string
	cache    RateCache
	cacheTTL time.Duration
	group    singleflight.Group
	logger   *zap.Logger
}

// NewConverter creates a converter; cache may be nil
func NewConverter(hc *httpclient.Client, ratesURL string, cache RateCache, cacheTTL time.Duration) *Converter {
	return &Converter{
		http:     hc,
		ratesURL: strings.TrimRight(ratesURL, "/"),
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

type latestRatesResponse struct {
	Result   string                     `json:"result"`
	BaseCode string                     `json:"base_code"`
	Rates    map[string]decimal.Decimal `json:"rates"`
}

// Convert converts amount from one currency to another, rounded to cents
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	ctx, span := util.StartSpan(ctx, "Converter.Convert")
	defer span.End()

	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return amount, nil
	}

	rates, err := c.rates(ctx, from)
	if err != nil {
		util.CurrencyConversionsTotal.WithLabelValues("error").Inc()
		c.logger.Error("Failed to fetch exchange rates", zap.String("base", from), zap.Error(err))
		return decimal.Zero, apperror.Wrap(ErrConversionUnavailable, err)
	}

	rate, ok := rates[to]
	if !ok {
		util.CurrencyConversionsTotal.WithLabelValues("missing_rate").Inc()
		return decimal.Zero, apperror.Wrap(ErrConversionUnavailable, fmt.Errorf("no rate from %s to %s", from, to))
	}

	util.CurrencyConversionsTotal.WithLabelValues("ok").Inc()
	return amount.Mul(rate).Round(2), nil
}

func (c *Converter) rates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	if c.cache != nil {
		cached, err := c.cache.GetRates(ctx, base)
		if err != nil {
			c.logger.Warn("Rate cache read failed", zap.String("base", base), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	v, err, _ := c.group.Do(base, func() (interface{}, error) {
		return c.fetch(ctx, base)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]decimal.Decimal), nil
}

func (c *Converter) fetch(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	var resp latestRatesResponse
	err := c.http.Do(ctx, httpclient.Request{
		Method:  http.MethodGet,
		URL:     c.ratesURL + "/" + base,
		SpanTag: "ExchangeRates.Latest",
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Result != "" && resp.Result != "success" {
		return nil, fmt.Errorf("rates api returned result %q", resp.Result)
	}
	if len(resp.Rates) == 0 {
		return nil, fmt.Errorf("rates api returned no rates for %s", base)
	}

	if c.cache != nil {
		if err := c.cache.SetRates(ctx, base, resp.Rates, c.cacheTTL); err != nil {
			c.logger.Warn("Rate cache write failed", zap.String("base", base), zap.Error(err))
		}
	}
	return resp.Rates, nil
}
