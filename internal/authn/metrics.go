package authn

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// newLoginMeters returns the login outcome counters. Meter creation
// only fails on invalid instrument names; fall back to noop counters
// rather than making every constructor caller handle it.
func newLoginMeters() (success, failure metric.Int64Counter) {
	meter := otel.Meter("authward/authn")

	success, err := meter.Int64Counter(
		"auth.login_success",
		metric.WithDescription("Completed logins"),
		metric.WithUnit("login"),
	)
	if err != nil {
		success = noop.Int64Counter{}
	}

	failure, err = meter.Int64Counter(
		"auth.login_failure",
		metric.WithDescription("Rejected login callbacks"),
		metric.WithUnit("login"),
	)
	if err != nil {
		failure = noop.Int64Counter{}
	}

	return success, failure
}
