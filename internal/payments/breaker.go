package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const gatewayBreakerName = "hosted_payment_gateway"

func newGatewayBreaker(cfg config.GatewayConfig, logg *logger.Logger, m *metrics.FulfillmentMetrics) *gobreaker.CircuitBreaker {
	maxRequests := cfg.BreakerMaxRequests
	if maxRequests == 0 {
		maxRequests = 3
	}
	interval := cfg.BreakerInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ratio := cfg.BreakerFailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	m.SetBreakerState(gatewayBreakerName, breakerStateValue(gobreaker.StateClosed))
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        gatewayBreakerName,
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 3 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.SetBreakerState(name, breakerStateValue(to))
			logg.Warn(context.Background(), fmt.Sprintf("circuit breaker %s moved %s -> %s", name, from, to))
		},
	})
}

func breakerStateValue(state gobreaker.State) int {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
