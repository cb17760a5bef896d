package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	domainChannel "github.com/zapdesk/zapdesk/domains/channel"
	domainConversation "github.com/zapdesk/zapdesk/domains/conversation"
	domainIntegration "github.com/zapdesk/zapdesk/domains/integration"
	domainTicket "github.com/zapdesk/zapdesk/domains/ticket"
)

const (
	defaultTicketPriority = "normal"
	defaultTicketCategory = "general"

	markerTicketOpened = "ticket_opened"
	markerTicketClosed = "ticket_closed"
)

type serviceTicket struct {
	ticketRepo       domainTicket.IRepository
	messageRepo      domainConversation.IMessageRepository
	conversationRepo domainConversation.IRepository
	channelRepo      domainChannel.IRepository
	events           *EventEmitter
}

func NewTicketService(
	ticketRepo domainTicket.IRepository,
	messageRepo domainConversation.IMessageRepository,
	conversationRepo domainConversation.IRepository,
	channelRepo domainChannel.IRepository,
	events *EventEmitter,
) domainTicket.IUsecase {
	return &serviceTicket{
		ticketRepo:       ticketRepo,
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		channelRepo:      channelRepo,
		events:           events,
	}
}

// EnsureTicket returns the conversation's live ticket, creating one when
// the conversation reopened (forceNew) or never had a ticket. A reopen
// always mints a fresh ticket id so SLA history stays per-episode.
func (service *serviceTicket) EnsureTicket(ctx context.Context, conversationID uuid.UUID, sectorID *uuid.UUID, forceNew bool) (*domainTicket.EnsureResult, error) {
	var sector *domainChannel.RoutingSector
	if sectorID != nil {
		var err error
		sector, err = service.channelRepo.GetSector(ctx, *sectorID)
		if err != nil && !isNotFound(err) {
			return nil, err
		}
	}
	if sector == nil || !sector.TicketsEnabled {
		return &domainTicket.EnsureResult{}, nil
	}

	open, err := service.ticketRepo.FindOpenByConversation(ctx, conversationID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if open != nil && !forceNew {
		return &domainTicket.EnsureResult{Ticket: open}, nil
	}

	if open == nil && !forceNew {
		hasAny, err := service.ticketRepo.HasAnyForConversation(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		if hasAny {
			// A previous ticket closed and the conversation never left
			// active. No new episode until a reopen forces one.
			return &domainTicket.EnsureResult{}, nil
		}
	}

	t := &domainTicket.Ticket{
		ConversationID: conversationID,
		SectorID:       &sector.ID,
		Status:         domainTicket.StatusOpen,
		Priority:       defaultTicketPriority,
		Category:       defaultTicketCategory,
	}
	if err := service.ticketRepo.Create(ctx, t); err != nil {
		return nil, err
	}

	if err := service.insertOpenedMarker(ctx, t); err != nil {
		logrus.Warnf("[TICKET] Failed inserting opened marker for %s: %v", t.ID, err)
	}

	conv, convErr := service.conversationRepo.GetByID(ctx, conversationID)
	if convErr == nil {
		service.events.Emit(domainIntegration.EventTicketOpened, conv.InstanceID, map[string]any{
			"ticket_id":       t.ID.String(),
			"conversation_id": conversationID.String(),
			"sequence":        t.Sequence,
		})
	}

	return &domainTicket.EnsureResult{
		Ticket:         t,
		WelcomeMessage: sector.WelcomeMessage,
		Created:        true,
	}, nil
}

// insertOpenedMarker records the ticket-opened system message. Its
// timestamp sorts one tick after the previous ticket-closed marker so the
// transcript reads closed-then-opened even when both land in the same
// wall-clock instant.
func (service *serviceTicket) insertOpenedMarker(ctx context.Context, t *domainTicket.Ticket) error {
	at := time.Now()
	prev, err := service.messageRepo.LastSystemMarker(ctx, t.ConversationID, markerTicketClosed)
	if err != nil && !isNotFound(err) {
		return err
	}
	if prev != nil && !prev.Timestamp.Before(at) {
		at = prev.Timestamp.Add(time.Millisecond)
	}

	marker := &domainConversation.Message{
		ConversationID: t.ConversationID,
		TicketID:       &t.ID,
		ProviderID:     "system-" + t.ID.String() + "-opened",
		Kind:           domainConversation.KindSystem,
		SystemEvent:    markerTicketOpened,
		Timestamp:      at,
	}
	_, err = service.messageRepo.Upsert(ctx, marker)
	return err
}

// RecordFirstResponse stamps first-response exactly once. The second and
// later calls are no-ops reported as changed=false.
func (service *serviceTicket) RecordFirstResponse(ctx context.Context, ticketID uuid.UUID) (bool, error) {
	changed, err := service.ticketRepo.SetFirstResponse(ctx, ticketID, time.Now())
	if err != nil {
		return false, err
	}
	if changed {
		logrus.WithFields(logrus.Fields{"ticket_id": ticketID}).Info("[TICKET] First response recorded")
	}
	return changed, nil
}

func (service *serviceTicket) TouchTicket(ctx context.Context, ticketID uuid.UUID) error {
	return service.messageRepo.TouchTicketActivity(ctx, ticketID, time.Now())
}

func (service *serviceTicket) CloseTicket(ctx context.Context, ticketID uuid.UUID, closedBy string) error {
	t, err := service.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return err
	}
	now := time.Now()
	if err := service.ticketRepo.Close(ctx, ticketID, closedBy, now); err != nil {
		return err
	}

	marker := &domainConversation.Message{
		ConversationID: t.ConversationID,
		TicketID:       &t.ID,
		ProviderID:     "system-" + t.ID.String() + "-closed",
		Kind:           domainConversation.KindSystem,
		SystemEvent:    markerTicketClosed,
		Timestamp:      now,
	}
	if _, err := service.messageRepo.Upsert(ctx, marker); err != nil {
		logrus.Warnf("[TICKET] Failed inserting closed marker for %s: %v", ticketID, err)
	}

	conv, convErr := service.conversationRepo.GetByID(ctx, t.ConversationID)
	if convErr == nil {
		service.events.Emit(domainIntegration.EventTicketClosed, conv.InstanceID, map[string]any{
			"ticket_id":       ticketID.String(),
			"conversation_id": t.ConversationID.String(),
			"closed_by":       closedBy,
		})
	}
	return nil
}
