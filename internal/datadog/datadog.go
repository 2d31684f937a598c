package datadog

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/panel-provisioner/internal/env"
)

var dogstatsd statsd.ClientInterface

func InitMetrics() {
	if !env.Cfg.EnableDatadog {
		log.Debug().Msg("Datadog metrics disabled")
		return
	}

	client, err := statsd.New(env.Cfg.DDAgentAddr,
		statsd.WithNamespace(env.Cfg.DDNamespace),
		statsd.WithTags(env.Cfg.DDTags),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return
	}
	dogstatsd = client

	log.Info().
		Str("addr", env.Cfg.DDAgentAddr).
		Str("namespace", env.Cfg.DDNamespace).
		Strs("tags", env.Cfg.DDTags).
		Msg("Datadog metrics initialized")
}

func Gauge(name string, value float64, tags ...string) {
	if dogstatsd != nil {
		if err := dogstatsd.Gauge(name, value, tags, 1); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
		}
	}
}

func Incr(name string, tags ...string) {
	if dogstatsd != nil {
		if err := dogstatsd.Incr(name, tags, 1); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit count metric")
		}
	}
}

func Flush() {
	if dogstatsd != nil {
		dogstatsd.Flush()
	}
}
