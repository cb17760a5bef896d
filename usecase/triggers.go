package usecase

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	domainConversation "github.com/zapdesk/zapdesk/domains/conversation"
	domainEngagement "github.com/zapdesk/zapdesk/domains/engagement"
	domainIntegration "github.com/zapdesk/zapdesk/domains/integration"
	domainTicket "github.com/zapdesk/zapdesk/domains/ticket"
	"github.com/zapdesk/zapdesk/pkg/tasks"
)

type serviceTriggers struct {
	engagementRepo domainEngagement.IRepository
	messageRepo    domainConversation.IMessageRepository
	ticketRepo     domainTicket.IRepository
	analysisClient domainIntegration.IAnalysisClient
	submitter      tasks.Submitter
	threshold      int
	feedbackWindow time.Duration
}

func NewTriggerService(
	engagementRepo domainEngagement.IRepository,
	messageRepo domainConversation.IMessageRepository,
	ticketRepo domainTicket.IRepository,
	analysisClient domainIntegration.IAnalysisClient,
	submitter tasks.Submitter,
	threshold int,
	feedbackWindow time.Duration,
) domainEngagement.IUsecase {
	if threshold <= 0 {
		threshold = 5
	}
	if feedbackWindow <= 0 {
		feedbackWindow = 24 * time.Hour
	}
	return &serviceTriggers{
		engagementRepo: engagementRepo,
		messageRepo:    messageRepo,
		ticketRepo:     ticketRepo,
		analysisClient: analysisClient,
		submitter:      submitter,
		threshold:      threshold,
		feedbackWindow: feedbackWindow,
	}
}

// MaybeTriggerAnalysis checks sentiment and categorization independently:
// each fires when enough inbound messages accumulated since its own last
// run. The actual calls go through the task pool, fire-and-forget.
func (service *serviceTriggers) MaybeTriggerAnalysis(ctx context.Context, conversationID uuid.UUID) error {
	for _, kind := range []string{domainEngagement.AnalysisSentiment, domainEngagement.AnalysisCategorization} {
		last, err := service.engagementRepo.LastAnalysisAt(ctx, conversationID, kind)
		if err != nil {
			return err
		}
		count, err := service.messageRepo.CountInboundSince(ctx, conversationID, last)
		if err != nil {
			return err
		}
		if count < int64(service.threshold) {
			continue
		}

		k := kind
		submitted := service.submitter.Submit(tasks.Task{
			Name: "analysis:" + k,
			Key:  conversationID.String(),
			Run: func(taskCtx context.Context) error {
				if err := service.analysisClient.RequestAnalysis(taskCtx, conversationID, k); err != nil {
					return err
				}
				return service.engagementRepo.RecordAnalysis(taskCtx, &domainEngagement.AnalysisResult{
					ConversationID: conversationID,
					Kind:           k,
				})
			},
		})
		if !submitted {
			logrus.Warnf("[TRIGGERS] %s analysis for %s not submitted", k, conversationID)
		}
	}
	return nil
}

// MaybeTriggerTranscription fires once per audio message carrying a media
// reference.
func (service *serviceTriggers) MaybeTriggerTranscription(ctx context.Context, messageID uuid.UUID, kind, mediaKey string) error {
	if kind != domainConversation.KindAudio || mediaKey == "" {
		return nil
	}
	submitted := service.submitter.Submit(tasks.Task{
		Name: "transcription",
		Key:  messageID.String(),
		Run: func(taskCtx context.Context) error {
			return service.analysisClient.RequestTranscription(taskCtx, messageID, mediaKey)
		},
	})
	if !submitted {
		logrus.Warnf("[TRIGGERS] Transcription for %s not submitted", messageID)
	}
	return nil
}

// ApplyReaction upserts the reactor's latest reaction on the target
// message; an empty emoji removes it.
func (service *serviceTriggers) ApplyReaction(ctx context.Context, conversationID uuid.UUID, targetProviderID, reactor, emoji string) error {
	if emoji == "" {
		return service.engagementRepo.RemoveReaction(ctx, conversationID, targetProviderID, reactor)
	}
	return service.engagementRepo.UpsertReaction(ctx, &domainEngagement.Reaction{
		ConversationID:   conversationID,
		TargetProviderID: targetProviderID,
		Reactor:          reactor,
		Emoji:            emoji,
	})
}

// ApplyEdit overwrites the message content while appending the prior
// content to the edit log. The very first edit also preserves the original
// content on both the message row and the log.
func (service *serviceTriggers) ApplyEdit(ctx context.Context, targetProviderID, newContent string, editedAt time.Time) error {
	msg, err := service.messageRepo.GetByProviderID(ctx, targetProviderID)
	if err != nil {
		if isNotFound(err) {
			logrus.Debugf("[TRIGGERS] Edit for unknown message %s ignored", targetProviderID)
			return nil
		}
		return err
	}

	// Redelivered edit events carry content the message already has.
	if msg.Content == newContent {
		logrus.Debugf("[TRIGGERS] Edit redelivery for %s ignored", targetProviderID)
		return nil
	}

	hasOriginal, err := service.engagementRepo.HasOriginalEdit(ctx, msg.ID)
	if err != nil {
		return err
	}

	if err := service.engagementRepo.AppendEditHistory(ctx, &domainEngagement.EditHistory{
		MessageID:       msg.ID,
		PreviousContent: msg.Content,
		IsOriginal:      !hasOriginal,
		EditedAt:        editedAt,
	}); err != nil {
		return err
	}

	original := ""
	if !hasOriginal {
		original = msg.Content
	}
	return service.messageRepo.ApplyEdit(ctx, msg.ID, newContent, editedAt, original)
}

// CaptureFeedback records a 1-5 rating when a ticket for the conversation
// closed inside the feedback window and has no rating yet.
func (service *serviceTriggers) CaptureFeedback(ctx context.Context, conversationID uuid.UUID, content string, at time.Time) (bool, error) {
	rating, ok := parseRating(content)
	if !ok {
		return false, nil
	}

	cutoff := at.Add(-service.feedbackWindow)
	closed, err := service.ticketRepo.FindClosedSince(ctx, conversationID, cutoff)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}

	has, err := service.engagementRepo.HasFeedback(ctx, closed.ID)
	if err != nil {
		return false, err
	}
	if has {
		return false, nil
	}

	if err := service.engagementRepo.CreateFeedback(ctx, &domainEngagement.Feedback{
		TicketID:       closed.ID,
		ConversationID: conversationID,
		Rating:         rating,
	}); err != nil {
		return false, err
	}

	logrus.WithFields(logrus.Fields{
		"ticket_id": closed.ID,
		"rating":    rating,
	}).Info("[TRIGGERS] Feedback captured")
	return true, nil
}

func parseRating(content string) (int, bool) {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) != 1 {
		return 0, false
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 1 || n > 5 {
		return 0, false
	}
	return n, true
}
