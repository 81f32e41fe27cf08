// Package binance loads historical futures klines from Binance.
package binance

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/tradereplay/internal/logger"
	"github.com/rustyeddy/tradereplay/market"
)

// maxPageLimit is the largest page the klines endpoint serves.
const maxPageLimit = 1500

type Config struct {
	BaseURL     string
	HTTPTimeout time.Duration
	// RequestsPerSecond and Burst feed the client side rate limiter.
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	PageLimit         int
}

func (c Config) withDefaults() Config {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 10
	}
	if c.Burst <= 0 {
		c.Burst = 20
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.PageLimit <= 0 || c.PageLimit > maxPageLimit {
		c.PageLimit = maxPageLimit
	}
	return c
}

// pageFunc fetches one page of klines with open time in [start, end] (ms).
type pageFunc func(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]*futures.Kline, error)

// Source implements market.Source over the public futures REST API.
type Source struct {
	cfg     Config
	limiter *rate.Limiter
	page    pageFunc
	now     func() time.Time
}

func New(cfg Config) *Source {
	cfg = cfg.withDefaults()
	client := futures.NewClient("", "")
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		client.BaseURL = base
	}
	client.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}

	s := &Source{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		now:     time.Now,
	}
	s.page = func(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]*futures.Kline, error) {
		return client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(start).
			EndTime(end).
			Limit(limit).
			Do(ctx)
	}
	return s
}

func (s *Source) Name() string { return "binance" }

// Fetch pages through klines in [req.Start, req.End). The kline that is
// still open is dropped.
func (s *Source) Fetch(ctx context.Context, req market.FetchRequest) (market.Series, error) {
	symbol := Symbol(req.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	tf, err := market.ParseTimeframe(req.Timeframe)
	if err != nil {
		return nil, err
	}
	if !req.End.After(req.Start) {
		return nil, fmt.Errorf("end %s is not after start %s", req.End.Format(time.RFC3339), req.Start.Format(time.RFC3339))
	}

	start := req.Start.UnixMilli()
	end := req.End.UnixMilli() - 1
	nowMs := s.now().UnixMilli()

	var out market.Series
	for start <= end {
		kls, err := s.pageWithRetry(ctx, symbol, tf.Key, start, end)
		if err != nil {
			return nil, fmt.Errorf("klines %s %s: %w", symbol, tf.Key, err)
		}
		if len(kls) == 0 {
			break
		}

		last := start
		for _, kl := range kls {
			if kl == nil {
				continue
			}
			last = max(last, kl.OpenTime)
			if kl.OpenTime < start || kl.OpenTime > end || kl.CloseTime >= nowMs {
				continue
			}
			bar, err := ToBar(kl)
			if err != nil {
				return nil, err
			}
			out = append(out, bar)
		}

		if len(kls) < s.cfg.PageLimit {
			break
		}
		start = last + tf.Duration.Milliseconds()
	}

	logger.Debugf("[binance] %s %s: %d bars", symbol, tf.Key, len(out))
	return market.Normalize(out), nil
}

func (s *Source) pageWithRetry(ctx context.Context, symbol, interval string, start, end int64) ([]*futures.Kline, error) {
	backoff := 100 * time.Millisecond
	for attempt := 0; ; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		kls, err := s.page(ctx, symbol, interval, start, end, s.cfg.PageLimit)
		if err == nil {
			return kls, nil
		}
		if attempt >= s.cfg.MaxRetries {
			return nil, err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * backoff
		logger.Warnf("[binance] page %d failed (attempt %d), retrying in %s: %v", start, attempt+1, wait, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// ToBar converts a kline to a bar stamped with its open time.
func ToBar(kl *futures.Kline) (market.Bar, error) {
	var b market.Bar
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"open", kl.Open, &b.Open},
		{"high", kl.High, &b.High},
		{"low", kl.Low, &b.Low},
		{"close", kl.Close, &b.Close},
		{"volume", kl.Volume, &b.Volume},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return market.Bar{}, fmt.Errorf("kline %d: bad %s %q: %w", kl.OpenTime, f.name, f.raw, err)
		}
		*f.dst = v
	}
	b.Time = time.UnixMilli(kl.OpenTime).UTC()
	return b, nil
}

// Symbol converts "XRP/USDT" or "xrp-usdt" to "XRPUSDT".
func Symbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer("/", "", "-", "", "_", "").Replace(s)
}
