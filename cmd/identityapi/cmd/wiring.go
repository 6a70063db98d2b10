package cmd

import (
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/authz"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/events"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/repository"
	orgsvc "github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/services/organization"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/telemetry"
)

// stack is the service graph shared by serve and the admin subcommands.
type stack struct {
	orgs       *orgsvc.Service
	users      *orgsvc.UserService
	outbox     *repository.BunOutboxRepository
	dispatcher *events.Dispatcher
}

func newStack(db *bun.DB, logger *slog.Logger) (*stack, error) {
	opts, err := cfg.AggregateOptions()
	if err != nil {
		return nil, fmt.Errorf("aggregate options: %w", err)
	}
	authorizer, err := authz.New(cfg.Authz.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create authorizer: %w", err)
	}
	metrics, err := telemetry.NewCommandMetrics()
	if err != nil {
		return nil, fmt.Errorf("create command metrics: %w", err)
	}

	dispatcher := events.NewDispatcher()
	dispatcher.Subscribe(events.AllEvents, events.LogSubscriber(logger))

	userRepo := repository.NewBunUserRepository(db)
	outbox := repository.NewBunOutboxRepository(db, cfg.Outbox.MaxAttempts)
	svc := orgsvc.NewService(repository.NewBunOrganizationRepository(db, opts...), userRepo, authorizer).
		WithPermissionRepository(repository.NewBunPermissionRepository(db)).
		WithOutbox(outbox).
		WithPublisher(dispatcher).
		WithMetrics(metrics).
		WithLogger(logger).
		WithAggregateOptions(opts...)

	return &stack{
		orgs:       svc,
		users:      orgsvc.NewUserService(userRepo).WithPublisher(dispatcher).WithLogger(logger),
		outbox:     outbox,
		dispatcher: dispatcher,
	}, nil
}
