package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionMatches(t *testing.T) {
	all := Subscription{Active: true}
	assert.True(t, all.Matches(EventTicketOpened))
	assert.True(t, all.Matches(EventMessageReceived))

	scoped := Subscription{Active: true, Events: []string{EventTicketOpened, EventTicketClosed}}
	assert.True(t, scoped.Matches(EventTicketClosed))
	assert.False(t, scoped.Matches(EventMessageReceived))

	inactive := Subscription{Active: false, Events: []string{EventTicketOpened}}
	assert.False(t, inactive.Matches(EventTicketOpened))
}
