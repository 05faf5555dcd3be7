//go:build integration

package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"auditd/internal/platform/config"
	"auditd/pkg/testutil/containers"
)

func TestNewClient(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := NewClient(ctx, config.KafkaSink{Brokers: []string{rp.Broker}, Topic: "audit.events"})
	require.NoError(t, err)
	client.Close()
}
