package telemetry

import (
	"context"
	"strings"
	"testing"
)

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", " http://collector:4318 ")
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	settings := SettingsFromEnv("moviesearch")
	if settings.Endpoint != "http://collector:4318" || settings.ServiceName != "moviesearch" || settings.SampleRatio != 0.25 {
		t.Fatalf("unexpected settings %+v", settings)
	}

	t.Setenv("OTEL_SERVICE_NAME", "custom")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "7")
	settings = SettingsFromEnv("moviesearch")
	if settings.ServiceName != "custom" || settings.SampleRatio != 1 {
		t.Fatalf("unexpected override %+v", settings)
	}
}

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := InitWith(context.Background(), Settings{ServiceName: "moviesearch"})
	if err != nil {
		t.Fatalf("InitWith: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSamplerAndScheme(t *testing.T) {
	if got := sampler(1).Description(); !strings.Contains(got, "AlwaysOnSampler") {
		t.Fatalf("unexpected full sampler %q", got)
	}
	if got := sampler(0.5).Description(); !strings.Contains(got, "TraceIDRatioBased") {
		t.Fatalf("unexpected ratio sampler %q", got)
	}
	if got := trimScheme("https://collector:4318"); got != "collector:4318" {
		t.Fatalf("trimScheme = %q", got)
	}
}
