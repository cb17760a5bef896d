package usecase

import (
	"context"

	"github.com/sirupsen/logrus"

	domainChannel "github.com/zapdesk/zapdesk/domains/channel"
	domainContact "github.com/zapdesk/zapdesk/domains/contact"
	domainConversation "github.com/zapdesk/zapdesk/domains/conversation"
	domainEngagement "github.com/zapdesk/zapdesk/domains/engagement"
	domainIntegration "github.com/zapdesk/zapdesk/domains/integration"
	domainTicket "github.com/zapdesk/zapdesk/domains/ticket"
	domainWebhook "github.com/zapdesk/zapdesk/domains/webhook"
	"github.com/zapdesk/zapdesk/infrastructure/cache"
	"github.com/zapdesk/zapdesk/pkg/phonenum"
)

// MediaDownloader fetches a provider attachment and returns its storage
// key. Failures are tolerated: the message persists without its media.
type MediaDownloader interface {
	Download(ctx context.Context, instanceName, messageID, url, mimeType string) (string, error)
}

type serviceWebhook struct {
	channelRepo      domainChannel.IRepository
	identityService  domainContact.IUsecase
	convService      domainConversation.IUsecase
	ticketService    domainTicket.IUsecase
	triggerService   domainEngagement.IUsecase
	messageRepo      domainConversation.IMessageRepository
	conversationRepo domainConversation.IRepository
	mediaStore       MediaDownloader
	previewCache     *cache.PreviewCache
	events           *EventEmitter
}

func NewWebhookService(
	channelRepo domainChannel.IRepository,
	identityService domainContact.IUsecase,
	convService domainConversation.IUsecase,
	ticketService domainTicket.IUsecase,
	triggerService domainEngagement.IUsecase,
	messageRepo domainConversation.IMessageRepository,
	conversationRepo domainConversation.IRepository,
	mediaStore MediaDownloader,
	previewCache *cache.PreviewCache,
	events *EventEmitter,
) domainWebhook.IUsecase {
	return &serviceWebhook{
		channelRepo:      channelRepo,
		identityService:  identityService,
		convService:      convService,
		ticketService:    ticketService,
		triggerService:   triggerService,
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		mediaStore:       mediaStore,
		previewCache:     previewCache,
		events:           events,
	}
}

// Process normalizes and applies one inbound envelope. It only returns an
// error for unexpected persistence failures; unresolvable sources and
// unknown kinds are acknowledged and dropped, since the upstream provider
// cannot meaningfully retry.
func (service *serviceWebhook) Process(ctx context.Context, env domainWebhook.Envelope) error {
	instance, err := service.channelRepo.FindInstanceBySource(ctx, env.Instance)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"event":    env.Event,
			"instance": env.Instance,
		}).Warn("[WEBHOOK] Unresolvable source instance; event dropped")
		return nil
	}

	event, err := domainWebhook.ParseEvent(env)
	if err != nil {
		logrus.Warnf("[WEBHOOK] Malformed %s payload for %s: %v", env.Event, env.Instance, err)
		return nil
	}

	switch event.Kind {
	case domainWebhook.KindMessageReceived:
		return service.handleMessage(ctx, instance, event.Message)
	case domainWebhook.KindStatusUpdate:
		return service.handleStatus(ctx, event.Status)
	case domainWebhook.KindConnectionState:
		return service.handleConnection(ctx, instance, event.Connection)
	case domainWebhook.KindReaction:
		return service.handleReaction(ctx, instance, event.Reaction)
	case domainWebhook.KindMessageEdited:
		if err := service.triggerService.ApplyEdit(ctx, event.Edit.TargetProviderID, event.Edit.NewContent, event.Edit.EditedAt); err != nil {
			return err
		}
		service.events.Emit(domainIntegration.EventMessageEdited, instance.ID, map[string]any{
			"provider_id": event.Edit.TargetProviderID,
		})
		return nil
	default:
		logrus.Debugf("[WEBHOOK] Ignoring event %s for %s", env.Event, env.Instance)
		return nil
	}
}

func (service *serviceWebhook) handleMessage(ctx context.Context, instance *domainChannel.Instance, msg *domainWebhook.MessageEvent) error {
	if msg.ProviderID == "" {
		logrus.Debug("[WEBHOOK] Message without provider id dropped")
		return nil
	}

	alternateID := ""
	if phonenum.IsLid(msg.SenderJID) {
		alternateID = phonenum.StripJID(msg.SenderJID)
	}

	cont, err := service.identityService.Resolve(ctx, domainContact.ResolveInput{
		InstanceID:    instance.ID,
		RawIdentifier: msg.RemoteJID,
		DisplayName:   msg.DisplayName,
		IsGroup:       phonenum.IsGroup(msg.RemoteJID),
		IsOutbound:    msg.FromMe,
		AlternateID:   alternateID,
	})
	if err != nil {
		return err
	}

	track, err := service.convService.FindOrCreate(ctx, instance.ID, cont.ID)
	if err != nil {
		return err
	}
	conv := track.Conversation

	ensure, err := service.ticketService.EnsureTicket(ctx, conv.ID, track.SectorID, track.ShouldOpenNewTicket)
	if err != nil {
		return err
	}

	mediaKey := msg.MediaKey
	if service.mediaStore != nil && msg.MediaURL != "" {
		key, err := service.mediaStore.Download(ctx, instance.Name, msg.ProviderID, msg.MediaURL, msg.MimeType)
		if err != nil {
			// Partial data beats lost data: keep the message, drop the
			// attachment reference.
			logrus.Warnf("[WEBHOOK] Media fetch failed for %s: %v", msg.ProviderID, err)
		} else {
			mediaKey = key
		}
	}

	record := &domainConversation.Message{
		ConversationID:   conv.ID,
		ProviderID:       msg.ProviderID,
		SenderJID:        msg.SenderJID,
		Content:          msg.Content,
		Kind:             msg.Kind,
		MediaKey:         mediaKey,
		MimeType:         msg.MimeType,
		FromAgent:        msg.FromMe,
		QuotedProviderID: msg.QuotedID,
		Timestamp:        msg.Timestamp,
	}
	if msg.FromMe {
		record.Status = domainConversation.StatusSent
	} else {
		record.Status = domainConversation.StatusReceived
	}
	if ensure.Ticket != nil {
		record.TicketID = &ensure.Ticket.ID
	}

	created, err := service.messageRepo.Upsert(ctx, record)
	if err != nil {
		return err
	}
	if !created {
		logrus.Debugf("[WEBHOOK] Redelivery of %s ignored", msg.ProviderID)
		return nil
	}

	incrementUnread := !msg.FromMe
	if err := service.conversationRepo.RegisterMessage(ctx, conv.ID, msg.Timestamp, preview(msg), incrementUnread); err != nil {
		return err
	}
	service.events.Emit(domainIntegration.EventMessageReceived, instance.ID, map[string]any{
		"conversation_id": conv.ID.String(),
		"provider_id":     msg.ProviderID,
		"from_agent":      msg.FromMe,
	})
	service.previewCache.SetPreview(ctx, conv.ID, preview(msg), msg.Timestamp)
	if incrementUnread {
		service.previewCache.IncrementUnread(ctx, conv.ID)
	}

	if ensure.Ticket != nil {
		if msg.FromMe {
			if _, err := service.ticketService.RecordFirstResponse(ctx, ensure.Ticket.ID); err != nil {
				logrus.Warnf("[WEBHOOK] First-response recording failed for %s: %v", ensure.Ticket.ID, err)
			}
		}
		if err := service.ticketService.TouchTicket(ctx, ensure.Ticket.ID); err != nil {
			logrus.Warnf("[WEBHOOK] Ticket activity touch failed for %s: %v", ensure.Ticket.ID, err)
		}
	}

	if !msg.FromMe {
		captured, err := service.triggerService.CaptureFeedback(ctx, conv.ID, msg.Content, msg.Timestamp)
		if err != nil {
			logrus.Warnf("[WEBHOOK] Feedback capture failed for %s: %v", conv.ID, err)
		} else if captured {
			service.events.Emit(domainIntegration.EventFeedbackReceived, instance.ID, map[string]any{
				"conversation_id": conv.ID.String(),
				"rating":          msg.Content,
			})
		}
		if err := service.triggerService.MaybeTriggerAnalysis(ctx, conv.ID); err != nil {
			logrus.Warnf("[WEBHOOK] Analysis trigger failed for %s: %v", conv.ID, err)
		}
		if err := service.triggerService.MaybeTriggerTranscription(ctx, record.ID, record.Kind, record.MediaKey); err != nil {
			logrus.Warnf("[WEBHOOK] Transcription trigger failed for %s: %v", record.ID, err)
		}
	}

	return nil
}

func (service *serviceWebhook) handleStatus(ctx context.Context, st *domainWebhook.StatusEvent) error {
	updated, err := service.messageRepo.AdvanceStatus(ctx, st.ProviderID, st.Status)
	if err != nil {
		return err
	}
	if !updated {
		logrus.Debugf("[WEBHOOK] Status %s for %s not applied", st.Status, st.ProviderID)
	}
	return nil
}

func (service *serviceWebhook) handleConnection(ctx context.Context, instance *domainChannel.Instance, conn *domainWebhook.ConnectionEvent) error {
	status := domainChannel.InstanceStatusDisconnected
	switch conn.State {
	case "open", "connected":
		status = domainChannel.InstanceStatusConnected
	case "connecting":
		status = domainChannel.InstanceStatusConnecting
	}
	logrus.WithFields(logrus.Fields{
		"instance": instance.Name,
		"state":    conn.State,
	}).Info("[WEBHOOK] Instance connection state changed")
	if err := service.channelRepo.UpdateInstanceStatus(ctx, instance.ID, status); err != nil {
		return err
	}
	service.events.Emit(domainIntegration.EventInstanceStatus, instance.ID, map[string]any{
		"status": status,
	})
	return nil
}

func (service *serviceWebhook) handleReaction(ctx context.Context, instance *domainChannel.Instance, re *domainWebhook.ReactionEvent) error {
	target, err := service.messageRepo.GetByProviderID(ctx, re.TargetProviderID)
	if err != nil {
		if isNotFound(err) {
			logrus.Debugf("[WEBHOOK] Reaction to unknown message %s ignored", re.TargetProviderID)
			return nil
		}
		return err
	}
	if err := service.triggerService.ApplyReaction(ctx, target.ConversationID, re.TargetProviderID, re.Reactor, re.Emoji); err != nil {
		return err
	}
	service.events.Emit(domainIntegration.EventReactionUpdated, instance.ID, map[string]any{
		"provider_id": re.TargetProviderID,
		"reactor":     re.Reactor,
		"emoji":       re.Emoji,
	})
	return nil
}

func preview(msg *domainWebhook.MessageEvent) string {
	if msg.Content != "" {
		return truncate(msg.Content, 120)
	}
	switch msg.Kind {
	case domainConversation.KindImage:
		return "[image]"
	case domainConversation.KindAudio:
		return "[audio]"
	case domainConversation.KindVideo:
		return "[video]"
	case domainConversation.KindDocument:
		return "[document]"
	case domainConversation.KindSticker:
		return "[sticker]"
	}
	return ""
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
