package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/solarafrica/solarplanner/internal/metrics"
	"github.com/solarafrica/solarplanner/pkg/solar"
)

const keyPrefix = "solarplanner:calc:"

// Calculator runs the engine through a Cache. Cache failures are logged and
// fall through to a direct calculation.
type Calculator struct {
	cache  Cache
	engine *solar.Engine
	ttl    time.Duration
}

func NewCalculator(c Cache, engine *solar.Engine, ttl time.Duration) *Calculator {
	return &Calculator{cache: c, engine: engine, ttl: ttl}
}

// Engine returns the engine results are computed with.
func (c *Calculator) Engine() *solar.Engine {
	return c.engine
}

// Key identifies the result for in under the current constants table.
// Location does not affect the result and is left out.
func (c *Calculator) Key(in solar.CalculationInput) (string, error) {
	in.Location = ""
	raw, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	d := xxhash.New()
	d.WriteString(c.engine.Fingerprint())
	d.Write(raw)
	return fmt.Sprintf("%s%016x", keyPrefix, d.Sum64()), nil
}

// Calculate returns the engine result for in and whether it was served from
// the cache. Callers validate in first.
func (c *Calculator) Calculate(ctx context.Context, in solar.CalculationInput) (solar.CalculationResult, bool, error) {
	logger := zerolog.Ctx(ctx)

	key, err := c.Key(in)
	if err != nil {
		return solar.CalculationResult{}, false, fmt.Errorf("cache key: %w", err)
	}

	raw, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var res solar.CalculationResult
		if jerr := json.Unmarshal(raw, &res); jerr == nil {
			metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
			return res, true, nil
		}
		logger.Warn().Str("key", key).Msg("discarding undecodable cache entry")
		metrics.CacheRequestsTotal.WithLabelValues("error").Inc()
	case errors.Is(err, ErrMiss):
		metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
	default:
		logger.Warn().Err(err).Msg("calculation cache read failed")
		metrics.CacheRequestsTotal.WithLabelValues("error").Inc()
	}

	started := time.Now()
	res := c.engine.Calculate(in)
	metrics.ObserveCalculation(string(in.Category), started)

	if encoded, err := json.Marshal(res); err == nil {
		if err := c.cache.Set(ctx, key, encoded, c.ttl); err != nil {
			logger.Warn().Err(err).Msg("calculation cache write failed")
		}
	}
	return res, false, nil
}
