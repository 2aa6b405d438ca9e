package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitWithoutSignals(t *testing.T) {
	p, err := Init(context.Background(), Config{ServiceName: "farmd"})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer())
	require.NoError(t, p.Shutdown(context.Background()))

	_, err = Init(context.Background(), Config{})
	require.Error(t, err)
}

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = abc ,broken, =x,tenant=farm")
	require.Equal(t, map[string]string{"api-key": "abc", "tenant": "farm"}, got)
}
