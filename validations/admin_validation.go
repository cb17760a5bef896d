package validations

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	domainAssignment "github.com/zapdesk/zapdesk/domains/assignment"
	domainChannel "github.com/zapdesk/zapdesk/domains/channel"
	domainIntegration "github.com/zapdesk/zapdesk/domains/integration"
	pkgError "github.com/zapdesk/zapdesk/pkg/apperror"
)

func ValidateCreateSector(ctx context.Context, request domainChannel.CreateSectorRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Name, validation.Required, validation.Length(1, 120)),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func ValidateCreateRule(ctx context.Context, request domainAssignment.CreateRuleRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.InstanceID, validation.Required, is.UUID),
		validation.Field(&request.SectorID, is.UUID),
		validation.Field(&request.Strategy, validation.Required, validation.In(
			domainAssignment.StrategyFixed,
			domainAssignment.StrategyRoundRobin,
		)),
		validation.Field(&request.AgentID, validation.When(
			request.Strategy == domainAssignment.StrategyFixed,
			validation.Required, is.UUID,
		)),
		validation.Field(&request.AgentIDs, validation.When(
			request.Strategy == domainAssignment.StrategyRoundRobin,
			validation.Required, validation.Length(1, 0),
		), validation.Each(is.UUID)),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func ValidateCreateSubscription(ctx context.Context, request domainIntegration.CreateSubscriptionRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.URL, validation.Required, is.URL),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}
