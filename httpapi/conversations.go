package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-inbox/adapters/gocommand"
	inboxcommand "github.com/goliatone/go-inbox/command"
	"github.com/goliatone/go-inbox/core"
	inboxquery "github.com/goliatone/go-inbox/query"
	"github.com/labstack/echo/v4"
)

type ConversationHandler struct{}

func NewConversationHandler() *ConversationHandler {
	return &ConversationHandler{}
}

func (h *ConversationHandler) Register(e *echo.Echo) {
	e.GET("/conversations/:conversation_id", h.Get)
	e.GET("/conversations/:conversation_id/messages", h.ListMessages)
	e.POST("/conversations/:conversation_id/status", h.ChangeStatus)
	e.POST("/conversations/:conversation_id/resolve", h.Resolve)
}

type actorRequest struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (a actorRequest) actor() core.Actor {
	return core.Actor{
		Kind: core.ActorKind(strings.TrimSpace(a.Kind)),
		ID:   strings.TrimSpace(a.ID),
		Name: strings.TrimSpace(a.Name),
	}
}

type statusRequest struct {
	Status string       `json:"status"`
	Reason string       `json:"reason"`
	Actor  actorRequest `json:"actor"`
}

type resolveRequest struct {
	Reason string       `json:"reason"`
	Actor  actorRequest `json:"actor"`
}

type ConversationResponse struct {
	ID             string    `json:"id"`
	InboxID        string    `json:"inbox_id"`
	ContactID      string    `json:"contact_id"`
	ContactInboxID string    `json:"contact_inbox_id"`
	Status         string    `json:"status"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
}

type MessageResponse struct {
	ID                string         `json:"id"`
	MessageType       string         `json:"message_type"`
	Content           string         `json:"content"`
	SourceID          string         `json:"source_id,omitempty"`
	SenderContactID   string         `json:"sender_contact_id,omitempty"`
	ContentAttributes map[string]any `json:"content_attributes,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

type StatusChangeResponse struct {
	Conversation    ConversationResponse `json:"conversation"`
	Previous        string               `json:"previous_status"`
	AlreadyInStatus bool                 `json:"already_in_status"`
	Activity        *MessageResponse     `json:"activity,omitempty"`
}

func (h *ConversationHandler) Get(c echo.Context) error {
	conversation, err := gocommand.Query[inboxquery.GetConversationMessage, core.Conversation](
		c.Request().Context(),
		inboxquery.GetConversationMessage{ConversationID: c.Param("conversation_id")},
	)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toConversationResponse(conversation))
}

func (h *ConversationHandler) ListMessages(c echo.Context) error {
	limit := 0
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
		}
		limit = parsed
	}
	messages, err := gocommand.Query[inboxquery.ListMessagesMessage, []core.Message](
		c.Request().Context(),
		inboxquery.ListMessagesMessage{ConversationID: c.Param("conversation_id"), Limit: limit},
	)
	if err != nil {
		return err
	}
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, toMessageResponse(message))
	}
	return c.JSON(http.StatusOK, map[string]any{"items": out})
}

func (h *ConversationHandler) ChangeStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	result, err := gocommand.DispatchWithResult[inboxcommand.ChangeConversationStatusMessage, core.StatusChangeResult](
		c.Request().Context(),
		inboxcommand.ChangeConversationStatusMessage{
			Change: core.ConversationStatusChange{
				ConversationID: strings.TrimSpace(c.Param("conversation_id")),
				Status:         core.ConversationStatus(strings.TrimSpace(req.Status)),
				Reason:         strings.TrimSpace(req.Reason),
			},
			Actor: req.Actor.actor(),
		},
	)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toStatusChangeResponse(result))
}

func (h *ConversationHandler) Resolve(c echo.Context) error {
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	result, err := gocommand.DispatchWithResult[inboxcommand.ResolveConversationMessage, core.StatusChangeResult](
		c.Request().Context(),
		inboxcommand.ResolveConversationMessage{
			ConversationID: strings.TrimSpace(c.Param("conversation_id")),
			Reason:         strings.TrimSpace(req.Reason),
			Actor:          req.Actor.actor(),
		},
	)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toStatusChangeResponse(result))
}

func toConversationResponse(conversation core.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:             conversation.ID,
		InboxID:        conversation.InboxID,
		ContactID:      conversation.ContactID,
		ContactInboxID: conversation.ContactInboxID,
		Status:         string(conversation.Status),
		LastActivityAt: conversation.LastActivityAt,
		CreatedAt:      conversation.CreatedAt,
	}
}

func toMessageResponse(message core.Message) MessageResponse {
	return MessageResponse{
		ID:                message.ID,
		MessageType:       string(message.MessageType),
		Content:           message.Content,
		SourceID:          message.SourceID,
		SenderContactID:   message.SenderContactID,
		ContentAttributes: message.ContentAttributes,
		CreatedAt:         message.CreatedAt,
	}
}

func toStatusChangeResponse(result core.StatusChangeResult) StatusChangeResponse {
	out := StatusChangeResponse{
		Conversation:    toConversationResponse(result.Conversation),
		Previous:        string(result.Previous),
		AlreadyInStatus: result.AlreadyInStatus,
	}
	if result.Activity != nil {
		activity := toMessageResponse(*result.Activity)
		out.Activity = &activity
	}
	return out
}
