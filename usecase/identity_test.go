package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainContact "github.com/zapdesk/zapdesk/domains/contact"
)

func TestResolveCreatesContactWithCanonicalPhone(t *testing.T) {
	env := newTestEnv(t)
	inst := env.seedInstance(t, nil)
	svc := NewIdentityService(env.contactRepo)
	ctx := context.Background()

	// 12-digit Brazilian number predating the mobile 9.
	c, err := svc.Resolve(ctx, domainContact.ResolveInput{
		InstanceID:    inst.ID,
		RawIdentifier: "554812345678@s.whatsapp.net",
		DisplayName:   "Alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "5548912345678", c.Phone)
	assert.Equal(t, "Alice", c.Name)

	again, err := svc.Resolve(ctx, domainContact.ResolveInput{
		InstanceID:    inst.ID,
		RawIdentifier: "554812345678@s.whatsapp.net",
	})
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)
}

func TestResolveMatchesLegacyTwelveDigitRow(t *testing.T) {
	env := newTestEnv(t)
	inst := env.seedInstance(t, nil)
	svc := NewIdentityService(env.contactRepo)
	ctx := context.Background()

	legacy := &domainContact.Contact{
		InstanceID: inst.ID,
		Phone:      "554812345678",
		Name:       "554812345678",
	}
	require.NoError(t, env.contactRepo.Create(ctx, legacy))

	c, err := svc.Resolve(ctx, domainContact.ResolveInput{
		InstanceID:    inst.ID,
		RawIdentifier: "5548912345678@s.whatsapp.net",
	})
	require.NoError(t, err)
	assert.Equal(t, legacy.ID, c.ID)
	assert.Equal(t, "5548912345678", c.Phone)

	stored, err := env.contactRepo.GetByID(ctx, legacy.ID)
	require.NoError(t, err)
	assert.Equal(t, "5548912345678", stored.Phone)
}

func TestResolveNameUpdateGuard(t *testing.T) {
	env := newTestEnv(t)
	inst := env.seedInstance(t, nil)
	svc := NewIdentityService(env.contactRepo)
	ctx := context.Background()

	seed := &domainContact.Contact{
		InstanceID: inst.ID,
		Phone:      "5548912345678",
		Name:       "5548912345678",
	}
	require.NoError(t, env.contactRepo.Create(ctx, seed))

	// Unenriched name (still equal to the phone) takes the pushed name.
	c, err := svc.Resolve(ctx, domainContact.ResolveInput{
		InstanceID:    inst.ID,
		RawIdentifier: "5548912345678@s.whatsapp.net",
		DisplayName:   "Alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", c.Name)

	// Once enriched, later pushed names must not overwrite it.
	c, err = svc.Resolve(ctx, domainContact.ResolveInput{
		InstanceID:    inst.ID,
		RawIdentifier: "5548912345678@s.whatsapp.net",
		DisplayName:   "Mallory",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", c.Name)
}

func TestResolveIgnoresOutboundDisplayName(t *testing.T) {
	env := newTestEnv(t)
	inst := env.seedInstance(t, nil)
	svc := NewIdentityService(env.contactRepo)
	ctx := context.Background()

	seed := &domainContact.Contact{
		InstanceID: inst.ID,
		Phone:      "5548912345678",
		Name:       "5548912345678",
	}
	require.NoError(t, env.contactRepo.Create(ctx, seed))

	// Outbound traffic carries the account owner's name, never the
	// contact's.
	c, err := svc.Resolve(ctx, domainContact.ResolveInput{
		InstanceID:    inst.ID,
		RawIdentifier: "5548912345678@s.whatsapp.net",
		DisplayName:   "Support Desk",
		IsOutbound:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "5548912345678", c.Name)
}

func TestResolveLidBackfillAndLookup(t *testing.T) {
	env := newTestEnv(t)
	inst := env.seedInstance(t, nil)
	svc := NewIdentityService(env.contactRepo)
	ctx := context.Background()

	seed := &domainContact.Contact{
		InstanceID: inst.ID,
		Phone:      "5548912345678",
		Name:       "Alice",
	}
	require.NoError(t, env.contactRepo.Create(ctx, seed))

	// First sighting of the alternate id lands on the phone row and
	// backfills it.
	c, err := svc.Resolve(ctx, domainContact.ResolveInput{
		InstanceID:    inst.ID,
		RawIdentifier: "5548912345678@s.whatsapp.net",
		AlternateID:   "204987654321",
	})
	require.NoError(t, err)
	assert.Equal(t, seed.ID, c.ID)
	assert.Equal(t, "204987654321", c.Lid)

	// A ported number keeps resolving to the same contact through the lid,
	// and the phone heals to the new canonical form.
	c, err = svc.Resolve(ctx, domainContact.ResolveInput{
		InstanceID:    inst.ID,
		RawIdentifier: "5511987654321@s.whatsapp.net",
		AlternateID:   "204987654321",
	})
	require.NoError(t, err)
	assert.Equal(t, seed.ID, c.ID)
	assert.Equal(t, "5511987654321", c.Phone)
}
