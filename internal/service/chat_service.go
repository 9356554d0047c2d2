package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/lumenchat/chatd/internal/audit"
	"github.com/lumenchat/chatd/internal/config"
	"github.com/lumenchat/chatd/internal/domain"
	"github.com/lumenchat/chatd/internal/history"
	"github.com/lumenchat/chatd/internal/log"
	"github.com/lumenchat/chatd/internal/presence"
	"github.com/lumenchat/chatd/internal/reaction"
	"github.com/lumenchat/chatd/internal/store"
	"github.com/lumenchat/chatd/internal/typing"
)

type chatService struct {
	dispatcher Dispatcher
	registry   *presence.Registry
	store      *store.Store
	reactions  *reaction.Aggregator
	typing     *typing.Coordinator
	history    *history.Service
	cfg        config.ChatConfig
}

// NewChatService wires the components together and subscribes to presence
// and typing changes so every state mutation triggers its fan-out.
func NewChatService(
	dispatcher Dispatcher,
	registry *presence.Registry,
	msgStore *store.Store,
	aggregator *reaction.Aggregator,
	typingCoord *typing.Coordinator,
	historySvc *history.Service,
	cfg config.ChatConfig,
) ChatService {
	s := &chatService{
		dispatcher: dispatcher,
		registry:   registry,
		store:      msgStore,
		reactions:  aggregator,
		typing:     typingCoord,
		history:    historySvc,
		cfg:        cfg,
	}

	registry.OnChange(s.onPresenceChange)
	typingCoord.OnChange(s.onTypingChange)
	return s
}

func (s *chatService) HandleConnect(ctx context.Context, connID string) error {
	s.registry.Register(connID)

	msgs := s.history.Initial()
	if err := s.dispatcher.SendTo(connID, &domain.HistoryEvent{
		Type:     domain.EvHistory,
		Messages: msgs,
	}); err != nil {
		return fmt.Errorf("send history to %s: %w", connID, err)
	}

	audit.Log(ctx, audit.ActionConnect, connID, "connection joined")
	return nil
}

func (s *chatService) HandleIdentify(ctx context.Context, connID, displayName string) error {
	s.registry.Identify(connID, displayName)
	audit.LogWithDetail(ctx, audit.ActionIdentify, connID, s.registry.Name(connID), "connection identified")
	return nil
}

func (s *chatService) HandleSendMessage(ctx context.Context, connID string, ev *domain.SendMessageEvent) error {
	if len(ev.Body) > s.cfg.MaxBodyLength {
		return s.ack(connID, domain.EvSendMessage, ev.ID,
			fmt.Errorf("%w: body exceeds %d characters", domain.ErrInvalidPayload, s.cfg.MaxBodyLength))
	}
	if len(ev.Attachments) > s.cfg.MaxAttachments {
		return s.ack(connID, domain.EvSendMessage, ev.ID,
			fmt.Errorf("%w: more than %d attachments", domain.ErrInvalidPayload, s.cfg.MaxAttachments))
	}

	msg := &domain.Message{
		ID:          ev.ID,
		Body:        ev.Body,
		ConnID:      connID,
		DisplayName: s.registry.Name(connID),
		Avatar:      ev.Avatar,
		ReplyTo:     s.resolveReply(ev.ReplyTo),
		Attachments: ev.Attachments,
	}

	stored, isNew, err := s.store.Ingest(ctx, msg)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldConnID, connID).Str(log.FieldMessageID, ev.ID).Msg("ingest rejected")
		return s.ack(connID, domain.EvSendMessage, ev.ID, err)
	}

	s.typing.Clear(connID)

	// Rebroadcast even on duplicate delivery: the original fan-out to this
	// sender may have been lost. Always the canonical stored record, so
	// clients cannot diverge on reaction or attachment state.
	if err := s.dispatcher.BroadcastAll(&domain.ReceiveMessageEvent{
		Type:    domain.EvReceiveMessage,
		Message: stored,
	}); err != nil {
		return err
	}

	if isNew {
		audit.Log(ctx, audit.ActionSendMessage, connID, "message stored")
	} else {
		log.Ctx(ctx).Debug().Str(log.FieldMessageID, ev.ID).Msg("duplicate delivery, canonical record rebroadcast")
	}
	return s.ack(connID, domain.EvSendMessage, ev.ID, nil)
}

func (s *chatService) HandleReaction(ctx context.Context, connID string, ev *domain.ReactionEvent) error {
	updated, err := s.reactions.Toggle(ctx, ev.MessageID, connID, ev.Emoji)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Nothing to update, nothing to broadcast.
			return s.ack(connID, domain.EvMessageReaction, ev.MessageID, err)
		}
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldMessageID, ev.MessageID).Msg("reaction toggle failed")
		return s.ack(connID, domain.EvMessageReaction, ev.MessageID, err)
	}

	if err := s.dispatcher.BroadcastAll(&domain.ReactionUpdatedEvent{
		Type:      domain.EvReactionUpdated,
		MessageID: ev.MessageID,
		Reactions: updated,
	}); err != nil {
		return err
	}

	audit.LogWithDetail(ctx, audit.ActionReaction, connID, ev.Emoji, "reaction toggled")
	return s.ack(connID, domain.EvMessageReaction, ev.MessageID, nil)
}

func (s *chatService) HandleTyping(ctx context.Context, connID string, isTyping bool) error {
	s.typing.Set(connID, s.registry.Name(connID), isTyping)
	return nil
}

func (s *chatService) HandleLoadMore(ctx context.Context, connID string, ev *domain.LoadMoreEvent) error {
	msgs, hasMore := s.history.Before(ev.Before, ev.Limit)

	audit.Log(ctx, audit.ActionLoadMore, connID, "history page served")
	return s.dispatcher.SendTo(connID, &domain.MoreMessagesEvent{
		Type:     domain.EvMoreMessages,
		Messages: msgs,
		HasMore:  hasMore,
	})
}

func (s *chatService) HandleDisconnect(ctx context.Context, connID string) error {
	s.typing.Clear(connID)
	s.registry.Unregister(connID)
	audit.Log(ctx, audit.ActionDisconnect, connID, "connection left")
	return nil
}

// resolveReply fills an incomplete reply snapshot from the stored original.
// The snapshot stays frozen afterwards; this only helps clients that send
// just the referenced id.
func (s *chatService) resolveReply(ref *domain.ReplyRef) *domain.ReplyRef {
	if ref == nil || ref.MessageID == "" {
		return nil
	}
	if ref.DisplayName != "" || ref.Body != "" {
		return ref
	}
	orig, err := s.store.FindByID(ref.MessageID)
	if err != nil {
		return ref
	}
	return &domain.ReplyRef{
		MessageID:   orig.ID,
		DisplayName: orig.DisplayName,
		Body:        orig.Body,
	}
}

func (s *chatService) onPresenceChange(ch presence.Change) {
	switch ch.Kind {
	case presence.ChangeJoin:
		s.dispatcher.BroadcastExcept(ch.ConnID, &domain.UserJoinedEvent{
			Type:        domain.EvUserJoined,
			ConnID:      ch.ConnID,
			DisplayName: ch.DisplayName,
		})
	case presence.ChangeLeave:
		s.dispatcher.BroadcastExcept(ch.ConnID, &domain.UserLeftEvent{
			Type:        domain.EvUserLeft,
			ConnID:      ch.ConnID,
			DisplayName: ch.DisplayName,
		})
	}

	s.dispatcher.BroadcastAll(&domain.UsersCountEvent{Type: domain.EvUsersCount, Total: ch.Total})
	s.dispatcher.BroadcastAll(&domain.OnlineUsersEvent{Type: domain.EvOnlineUsers, Users: ch.Users})
}

func (s *chatService) onTypingChange(ev typing.Event) {
	s.dispatcher.BroadcastExcept(ev.ConnID, &domain.UserTypingEvent{
		Type:        domain.EvUserTyping,
		ConnID:      ev.ConnID,
		DisplayName: ev.DisplayName,
		Typing:      ev.Typing,
	})
}

func (s *chatService) ack(connID, op, id string, err error) error {
	ack := &domain.AckEvent{Type: domain.EvAck, Op: op, ID: id, OK: err == nil}
	if err != nil {
		ack.Code = codeFor(err)
		ack.Detail = err.Error()
	}
	return s.dispatcher.SendTo(connID, ack)
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidPayload):
		return domain.CodeBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return domain.CodeNotFound
	case errors.Is(err, domain.ErrStorage):
		return domain.CodeStorage
	default:
		return domain.CodeInternal
	}
}
