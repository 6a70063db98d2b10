package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer names used across the service.
const (
	TracerOrganizationService = "identityapi/services/organization"
	TracerOutbox              = "identityapi/events/outbox"
)

// StartSpan creates a new span for a service operation.
//
//	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerOrganizationService, "organization.CreateRole",
//	    attribute.String(telemetry.AttrOrganizationID, orgID),
//	)
//	defer span.End()
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records err on the span and marks the span failed.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// Common attribute keys
const (
	AttrOrganizationID = "organization.id"
	AttrUserID         = "user.id"
	AttrRoleID         = "role.id"
	AttrInvitationID   = "invitation.id"
	AttrCommand        = "command.name"
	AttrEventType      = "event.type"
)
