package api

import (
	"fmt"

	"flagkit/internal/apperrors"
	"flagkit/pkg/event"
)

func validateRequest(req *IngestRequest) error {
	if len(req.Events) == 0 {
		return apperrors.Validation("events", "at least one event is required")
	}
	if len(req.Events) > maxEventsPerRequest {
		return apperrors.TooLarge("events", maxEventsPerRequest)
	}
	for i := range req.Events {
		if err := validateEvent(i, &req.Events[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateEvent(i int, e *event.Event) error {
	field := func(name string) string {
		return fmt.Sprintf("events[%d].%s", i, name)
	}

	if e.Context.AccountID == "" {
		return apperrors.Validation(field("context.accountId"), "account ID is required")
	}
	if e.Context.ProjectID == "" {
		return apperrors.Validation(field("context.projectId"), "project ID is required")
	}
	if e.User.ID == "" {
		return apperrors.Validation(field("user.id"), "user ID is required")
	}

	switch e.Type {
	case event.TypeImpression:
		if e.Impression == nil || e.Conversion != nil {
			return apperrors.Validation(field("impression"), "impression events carry only impression metadata")
		}
	case event.TypeConversion:
		if e.Conversion == nil || e.Impression != nil {
			return apperrors.Validation(field("conversion"), "conversion events carry only conversion metadata")
		}
		if e.Conversion.EventKey == "" {
			return apperrors.Validation(field("conversion.eventKey"), "event key is required")
		}
	default:
		return apperrors.Validation(field("type"), fmt.Sprintf("unknown event type %q", e.Type))
	}
	return nil
}
