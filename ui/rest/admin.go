package rest

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	domainAssignment "github.com/zapdesk/zapdesk/domains/assignment"
	domainChannel "github.com/zapdesk/zapdesk/domains/channel"
	domainConversation "github.com/zapdesk/zapdesk/domains/conversation"
	domainIntegration "github.com/zapdesk/zapdesk/domains/integration"
	domainTicket "github.com/zapdesk/zapdesk/domains/ticket"
	"github.com/zapdesk/zapdesk/infrastructure/cache"
	pkgError "github.com/zapdesk/zapdesk/pkg/apperror"
	"github.com/zapdesk/zapdesk/pkg/utils"
	"github.com/zapdesk/zapdesk/validations"
)

// Admin exposes the configuration surface: routing sectors, assignment
// rules, webhook subscriptions, conversation reads, and manual ticket
// closure.
type Admin struct {
	ChannelRepo      domainChannel.IRepository
	AssignmentRepo   domainAssignment.IRepository
	SubscriptionRepo domainIntegration.ISubscriptionRepository
	ConversationRepo domainConversation.IRepository
	TicketService    domainTicket.IUsecase
	Previews         *cache.PreviewCache
}

func InitRestAdmin(
	app fiber.Router,
	channelRepo domainChannel.IRepository,
	assignmentRepo domainAssignment.IRepository,
	subscriptionRepo domainIntegration.ISubscriptionRepository,
	conversationRepo domainConversation.IRepository,
	ticketService domainTicket.IUsecase,
	previews *cache.PreviewCache,
) Admin {
	handler := Admin{
		ChannelRepo:      channelRepo,
		AssignmentRepo:   assignmentRepo,
		SubscriptionRepo: subscriptionRepo,
		ConversationRepo: conversationRepo,
		TicketService:    ticketService,
		Previews:         previews,
	}

	group := app.Group("/api/admin")
	group.Get("/sectors", handler.ListSectors)
	group.Post("/sectors", handler.CreateSector)
	group.Post("/sectors/:id/agents/:agentId", handler.AddSectorAgent)
	group.Get("/instances/:id/rules", handler.ListRules)
	group.Post("/rules", handler.CreateRule)
	group.Get("/subscriptions", handler.ListSubscriptions)
	group.Post("/subscriptions", handler.CreateSubscription)
	group.Delete("/subscriptions/:id", handler.DeleteSubscription)
	group.Get("/conversations/:id", handler.GetConversation)
	group.Post("/conversations/:id/read", handler.MarkConversationRead)
	group.Post("/tickets/:id/close", handler.CloseTicket)

	return handler
}

func (h *Admin) ListSectors(c *fiber.Ctx) error {
	sectors, err := h.ChannelRepo.ListSectors(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, "Sectors retrieved", sectors)
}

func (h *Admin) CreateSector(c *fiber.Ctx) error {
	var req domainChannel.CreateSectorRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, pkgError.ValidationError(err.Error()))
	}
	if err := validations.ValidateCreateSector(c.UserContext(), req); err != nil {
		return respondError(c, err)
	}

	sector := &domainChannel.RoutingSector{
		Name:           req.Name,
		Active:         true,
		TicketsEnabled: req.TicketsEnabled,
		WelcomeMessage: req.WelcomeMessage,
	}
	if err := h.ChannelRepo.CreateSector(c.UserContext(), sector); err != nil {
		return respondError(c, err)
	}
	return respondOK(c, "Sector created", sector)
}

func (h *Admin) AddSectorAgent(c *fiber.Ctx) error {
	sectorID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return respondError(c, pkgError.ValidationError("id: must be a valid UUID."))
	}
	agentID, err := uuid.Parse(c.Params("agentId"))
	if err != nil {
		return respondError(c, pkgError.ValidationError("agentId: must be a valid UUID."))
	}
	if err := h.ChannelRepo.AddSectorAgent(c.UserContext(), sectorID, agentID); err != nil {
		return respondError(c, err)
	}
	return respondOK(c, "Agent added to sector", nil)
}

func (h *Admin) ListRules(c *fiber.Ctx) error {
	instanceID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return respondError(c, pkgError.ValidationError("id: must be a valid UUID."))
	}
	rules, err := h.AssignmentRepo.ListRules(c.UserContext(), instanceID)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, "Rules retrieved", rules)
}

func (h *Admin) CreateRule(c *fiber.Ctx) error {
	var req domainAssignment.CreateRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, pkgError.ValidationError(err.Error()))
	}
	if err := validations.ValidateCreateRule(c.UserContext(), req); err != nil {
		return respondError(c, err)
	}

	rule := &domainAssignment.Rule{
		InstanceID: uuid.MustParse(req.InstanceID),
		Strategy:   req.Strategy,
		LastIndex:  -1,
		Active:     true,
	}
	if req.SectorID != "" {
		id := uuid.MustParse(req.SectorID)
		rule.SectorID = &id
	}
	if req.AgentID != "" {
		id := uuid.MustParse(req.AgentID)
		rule.AgentID = &id
	}
	for _, raw := range req.AgentIDs {
		rule.AgentIDs = append(rule.AgentIDs, uuid.MustParse(raw))
	}

	if err := h.AssignmentRepo.CreateRule(c.UserContext(), rule); err != nil {
		return respondError(c, err)
	}
	return respondOK(c, "Rule created", rule)
}

func (h *Admin) ListSubscriptions(c *fiber.Ctx) error {
	subs, err := h.SubscriptionRepo.List(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, "Subscriptions retrieved", subs)
}

func (h *Admin) CreateSubscription(c *fiber.Ctx) error {
	var req domainIntegration.CreateSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, pkgError.ValidationError(err.Error()))
	}
	if err := validations.ValidateCreateSubscription(c.UserContext(), req); err != nil {
		return respondError(c, err)
	}

	sub := &domainIntegration.Subscription{
		URL:    req.URL,
		Secret: req.Secret,
		Events: req.Events,
		Active: true,
	}
	if err := h.SubscriptionRepo.Create(c.UserContext(), sub); err != nil {
		return respondError(c, err)
	}
	return respondOK(c, "Subscription created", sub)
}

func (h *Admin) DeleteSubscription(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return respondError(c, pkgError.ValidationError("id: must be a valid UUID."))
	}
	if err := h.SubscriptionRepo.Delete(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return respondOK(c, "Subscription deleted", nil)
}

func (h *Admin) GetConversation(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return respondError(c, pkgError.ValidationError("id: must be a valid UUID."))
	}
	conv, err := h.ConversationRepo.GetByID(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	// The write-behind cache may hold a fresher preview than the row.
	if preview, ok := h.Previews.GetPreview(c.UserContext(), conv.ID); ok {
		conv.Preview = preview
	}
	return respondOK(c, "Conversation retrieved", conv)
}

func (h *Admin) MarkConversationRead(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return respondError(c, pkgError.ValidationError("id: must be a valid UUID."))
	}
	if err := h.ConversationRepo.MarkRead(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	h.Previews.ResetUnread(c.UserContext(), id)
	return respondOK(c, "Conversation marked read", nil)
}

func (h *Admin) CloseTicket(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return respondError(c, pkgError.ValidationError("id: must be a valid UUID."))
	}
	closedBy := c.Query("closed_by", "admin")
	if err := h.TicketService.CloseTicket(c.UserContext(), id, closedBy); err != nil {
		return respondError(c, err)
	}
	return respondOK(c, "Ticket closed", nil)
}

func respondOK(c *fiber.Ctx, message string, results any) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: message,
		Results: results,
	})
}

func respondError(c *fiber.Ctx, err error) error {
	if appErr, ok := err.(pkgError.GenericError); ok {
		return c.Status(appErr.StatusCode()).JSON(utils.ResponseData{
			Status:  appErr.StatusCode(),
			Code:    appErr.ErrCode(),
			Message: appErr.Error(),
		})
	}
	return c.Status(500).JSON(utils.ResponseData{
		Status:  500,
		Code:    "INTERNAL_SERVER_ERROR",
		Message: err.Error(),
	})
}
