package usecase

import (
	"context"

	"github.com/sirupsen/logrus"

	domainContact "github.com/zapdesk/zapdesk/domains/contact"
	pkgError "github.com/zapdesk/zapdesk/pkg/apperror"
	"github.com/zapdesk/zapdesk/pkg/phonenum"
)

type serviceIdentity struct {
	contactRepo domainContact.IRepository
}

func NewIdentityService(contactRepo domainContact.IRepository) domainContact.IUsecase {
	return &serviceIdentity{contactRepo: contactRepo}
}

// Resolve finds or creates the contact behind a raw sender identifier.
// Lookup prefers the alternate identifier when supplied, since it survives
// number portability; phone variants cover the regional 12/13 digit split.
func (service *serviceIdentity) Resolve(ctx context.Context, in domainContact.ResolveInput) (*domainContact.Contact, error) {
	canonical := phonenum.Normalize(in.RawIdentifier)
	variants := phonenum.Variants(canonical)

	found, err := service.lookup(ctx, in, variants)
	if err != nil {
		return nil, err
	}

	if found != nil {
		service.heal(ctx, found, canonical, in)
		return found, nil
	}

	return service.create(ctx, in, canonical)
}

func (service *serviceIdentity) lookup(ctx context.Context, in domainContact.ResolveInput, variants []string) (*domainContact.Contact, error) {
	if in.AlternateID != "" {
		c, err := service.contactRepo.FindByLid(ctx, in.InstanceID, in.AlternateID)
		if err == nil {
			return c, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}

	c, err := service.contactRepo.FindByPhoneVariants(ctx, in.InstanceID, variants)
	if err == nil {
		return c, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	return nil, nil
}

// heal brings an existing record up to date: canonical phone, newly
// observed alternate id, and the display name while it is still
// unenriched.
func (service *serviceIdentity) heal(ctx context.Context, c *domainContact.Contact, canonical string, in domainContact.ResolveInput) {
	if canonical != "" && c.Phone != canonical {
		if err := service.contactRepo.UpdatePhone(ctx, c.ID, canonical); err != nil {
			logrus.Warnf("[IDENTITY] Failed updating phone for contact %s: %v", c.ID, err)
		} else {
			c.Phone = canonical
		}
	}

	if in.AlternateID != "" && c.Lid == "" {
		if err := service.contactRepo.UpdateLid(ctx, c.ID, in.AlternateID); err != nil {
			logrus.Warnf("[IDENTITY] Failed updating lid for contact %s: %v", c.ID, err)
		} else {
			c.Lid = in.AlternateID
		}
	}

	// The name is only taken from inbound traffic, and only while it still
	// equals the phone. Outbound events would carry the account owner's
	// own name.
	if !in.IsOutbound && in.DisplayName != "" && c.Name == c.Phone && in.DisplayName != c.Phone {
		if err := service.contactRepo.UpdateName(ctx, c.ID, in.DisplayName); err != nil {
			logrus.Warnf("[IDENTITY] Failed updating name for contact %s: %v", c.ID, err)
		} else {
			c.Name = in.DisplayName
		}
	}
}

func (service *serviceIdentity) create(ctx context.Context, in domainContact.ResolveInput, canonical string) (*domainContact.Contact, error) {
	name := canonical
	if !in.IsOutbound && in.DisplayName != "" {
		name = in.DisplayName
	}

	c := &domainContact.Contact{
		InstanceID: in.InstanceID,
		Phone:      canonical,
		Lid:        in.AlternateID,
		Name:       name,
		IsGroup:    in.IsGroup,
	}
	if err := service.contactRepo.Create(ctx, c); err != nil {
		// Concurrent deliveries for the same new contact race on insert;
		// the loser re-queries for the winner's row.
		existing, lookupErr := service.lookup(ctx, in, phonenum.Variants(canonical))
		if lookupErr == nil && existing != nil {
			logrus.Debugf("[IDENTITY] Create race for %s resolved by re-query", canonical)
			return existing, nil
		}
		return nil, err
	}
	return c, nil
}

func isNotFound(err error) bool {
	_, ok := err.(pkgError.NotFoundError)
	return ok
}
