package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	domainAssignment "github.com/zapdesk/zapdesk/domains/assignment"
	domainChannel "github.com/zapdesk/zapdesk/domains/channel"
	domainConversation "github.com/zapdesk/zapdesk/domains/conversation"
	domainIntegration "github.com/zapdesk/zapdesk/domains/integration"
)

type serviceConversation struct {
	conversationRepo domainConversation.IRepository
	channelRepo      domainChannel.IRepository
	assignService    domainAssignment.IUsecase
	events           *EventEmitter
}

func NewConversationService(
	conversationRepo domainConversation.IRepository,
	channelRepo domainChannel.IRepository,
	assignService domainAssignment.IUsecase,
	events *EventEmitter,
) domainConversation.IUsecase {
	return &serviceConversation{
		conversationRepo: conversationRepo,
		channelRepo:      channelRepo,
		assignService:    assignService,
		events:           events,
	}
}

// FindOrCreate returns the single conversation for the pair, reviving it
// when a message lands on a closed or archived thread. That system-driven
// reopen is what forces a fresh ticket; agents manually reopening keep the
// existing one and never come through here.
func (service *serviceConversation) FindOrCreate(ctx context.Context, instanceID, contactID uuid.UUID) (*domainConversation.TrackResult, error) {
	existing, err := service.conversationRepo.FindByInstanceAndContact(ctx, instanceID, contactID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}

	if existing != nil {
		result := &domainConversation.TrackResult{
			Conversation: existing,
			SectorID:     existing.SectorID,
		}
		if existing.Status == domainConversation.StatusClosed || existing.Status == domainConversation.StatusArchived {
			if err := service.conversationRepo.Reactivate(ctx, existing.ID); err != nil {
				return nil, err
			}
			existing.Status = domainConversation.StatusActive
			result.WasReopened = true
			result.ShouldOpenNewTicket = true
			logrus.WithFields(logrus.Fields{
				"conversation_id": existing.ID,
			}).Info("[CONVERSATION] Reopened by incoming message")
		}
		return result, nil
	}

	return service.createNew(ctx, instanceID, contactID)
}

func (service *serviceConversation) createNew(ctx context.Context, instanceID, contactID uuid.UUID) (*domainConversation.TrackResult, error) {
	sectorID := service.defaultSector(ctx, instanceID)

	conv := &domainConversation.Conversation{
		InstanceID: instanceID,
		ContactID:  contactID,
		Status:     domainConversation.StatusActive,
		SectorID:   sectorID,
	}
	if err := service.conversationRepo.Create(ctx, conv); err != nil {
		// Same race as contact creation: another delivery won the insert.
		existing, lookupErr := service.conversationRepo.FindByInstanceAndContact(ctx, instanceID, contactID)
		if lookupErr == nil && existing != nil {
			logrus.Debugf("[CONVERSATION] Create race for contact %s resolved by re-query", contactID)
			return &domainConversation.TrackResult{Conversation: existing, SectorID: existing.SectorID}, nil
		}
		return nil, err
	}

	if service.assignService != nil {
		agentID, err := service.assignService.Assign(ctx, instanceID, conv.ID, sectorID)
		if err != nil {
			logrus.Warnf("[CONVERSATION] Auto-assignment failed for %s: %v", conv.ID, err)
		} else if agentID != nil {
			conv.AgentID = agentID
			service.events.Emit(domainIntegration.EventTicketAssigned, instanceID, map[string]any{
				"conversation_id": conv.ID.String(),
				"agent_id":        agentID.String(),
			})
		}
	}

	service.events.Emit(domainIntegration.EventConversationCreated, instanceID, map[string]any{
		"conversation_id": conv.ID.String(),
		"contact_id":      contactID.String(),
	})

	return &domainConversation.TrackResult{
		Conversation:        conv,
		IsNew:               true,
		SectorID:            sectorID,
		ShouldOpenNewTicket: false,
	}, nil
}

// defaultSector returns the instance's default routing sector when it is
// configured and still active.
func (service *serviceConversation) defaultSector(ctx context.Context, instanceID uuid.UUID) *uuid.UUID {
	inst, err := service.channelRepo.GetInstance(ctx, instanceID)
	if err != nil || inst == nil || inst.DefaultSectorID == nil {
		return nil
	}
	sector, err := service.channelRepo.GetSector(ctx, *inst.DefaultSectorID)
	if err != nil || sector == nil || !sector.Active {
		return nil
	}
	id := sector.ID
	return &id
}
