package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitWithoutExportersIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "credod"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, err = Init(context.Background(), Config{})
	require.Error(t, err)
}

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = abc ,broken, =skip,tenant=credo")
	require.Equal(t, map[string]string{"api-key": "abc", "tenant": "credo"}, got)
}

func TestResourceCarriesServiceIdentity(t *testing.T) {
	res, err := Config{ServiceName: "credod", ServiceVersion: "1.2.3", Environment: "prod"}.resource()
	require.NoError(t, err)
	got := map[string]string{}
	for _, kv := range res.Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	require.Equal(t, "credod", got["service.name"])
	require.Equal(t, "credo", got["service.namespace"])
	require.Equal(t, "1.2.3", got["service.version"])
	require.Equal(t, "prod", got["deployment.environment"])
}

func TestSampler(t *testing.T) {
	require.Contains(t, Config{}.sampler().Description(), "AlwaysOnSampler")
	require.Contains(t, Config{SampleRatio: 0.25}.sampler().Description(), "TraceIDRatioBased")
}
