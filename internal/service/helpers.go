package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/coursework-api/internal/models"
	appErrors "github.com/noah-isme/coursework-api/pkg/errors"
)

var tracer = otel.Tracer("coursework/service")

func blockValidationError(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
}

// lookupError maps a repository read failure for entity onto NotFound or Internal.
func lookupError(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to load %s", entity))
}

func requireStaff(actor models.Actor) error {
	if !actor.IsStaff() {
		return appErrors.Clone(appErrors.ErrForbidden, "instructor role required")
	}
	return nil
}

func cascadeOutcome(report models.CascadeReport) string {
	if report.Partial() {
		return OutcomePartial
	}
	return OutcomeOK
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func ensureClass(ctx context.Context, classes classChecker, classID string) error {
	exists, err := classes.Exists(ctx, classID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	return nil
}
