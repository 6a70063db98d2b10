package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/config"
)

func TestInit_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TelemetryConfig{ServiceName: "identityapi"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestMetrics_RecordOnNoopProvider(t *testing.T) {
	ctx := context.Background()

	server, err := NewServerMetrics()
	require.NoError(t, err)
	server.RecordRequest(ctx, "GET", "/health", "200", 1.5)

	commands, err := NewCommandMetrics()
	require.NoError(t, err)
	commands.RecordCommand(ctx, "CreateRole", 2, errors.New("boom"))

	outbox, err := NewOutboxMetrics()
	require.NoError(t, err)
	outbox.RecordDelivery(ctx, "member.added", nil)

	var nilCommands *CommandMetrics
	var nilOutbox *OutboxMetrics
	assert.NotPanics(t, func() {
		nilCommands.RecordCommand(ctx, "CreateRole", 1, nil)
		nilOutbox.RecordDelivery(ctx, "member.added", nil)
	})
}
