package service

import (
	"context"

	"github.com/lumenchat/chatd/internal/domain"
)

// Dispatcher fans events out to live connections. The hub implements it
// locally; the redis bridge wraps it for multi-instance deployments.
type Dispatcher interface {
	BroadcastAll(event interface{}) error
	BroadcastExcept(origin string, event interface{}) error
	SendTo(connID string, event interface{}) error
}

// ChatService is the per-connection lifecycle coordinator: it validates
// inbound events, mutates the owning component and triggers the resulting
// fan-out.
type ChatService interface {
	HandleConnect(ctx context.Context, connID string) error
	HandleIdentify(ctx context.Context, connID, displayName string) error
	HandleSendMessage(ctx context.Context, connID string, ev *domain.SendMessageEvent) error
	HandleReaction(ctx context.Context, connID string, ev *domain.ReactionEvent) error
	HandleTyping(ctx context.Context, connID string, typing bool) error
	HandleLoadMore(ctx context.Context, connID string, ev *domain.LoadMoreEvent) error
	HandleDisconnect(ctx context.Context, connID string) error
}
