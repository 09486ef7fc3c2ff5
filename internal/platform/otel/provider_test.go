package otel_test

import (
	"context"
	"testing"

	"raffleledger/internal/platform/otel"
)

func TestSetupNoopWhenEndpointEmpty(t *testing.T) {
	tp, shutdown, err := otel.Setup(context.Background(), otel.Config{ServiceName: "raffleledger", Enabled: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp != nil {
		t.Fatalf("expected no provider without an endpoint")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}

func TestSetupNoopWhenDisabled(t *testing.T) {
	tp, shutdown, err := otel.Setup(context.Background(), otel.Config{ServiceName: "raffleledger", Endpoint: "http://localhost:4318"})
	if err != nil || tp != nil {
		t.Fatalf("expected disabled setup, got %v %v", tp, err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetupCreatesProviderWhenEndpointSet(t *testing.T) {
	// Non-routable address; nothing is exported before shutdown.
	tp, shutdown, err := otel.Setup(context.Background(), otel.Config{ServiceName: "raffleledger", Endpoint: "http://192.0.2.1:4318", Enabled: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp == nil {
		t.Fatalf("expected a tracer provider")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}
