package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/lumenchat/chatd/internal/config"
	"github.com/lumenchat/chatd/internal/domain"
	"github.com/lumenchat/chatd/internal/hub"
	"github.com/lumenchat/chatd/internal/log"
	"github.com/lumenchat/chatd/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades HTTP requests and translates inbound frames into the
// closed set of chat events. Anything that does not decode into a known
// variant is answered with an error event and never reaches core logic.
type WSHandler struct {
	hub     *hub.Hub
	service service.ChatService
	wsCfg   config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		wsCfg:   wsCfg,
	}
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.L().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)
	h.hub.Register(client)

	go client.WritePump()
	go func() {
		if err := h.service.HandleConnect(context.Background(), client.ID); err != nil {
			log.L().Warn().Err(err).Str(log.FieldConnID, client.ID).Msg("connect handling failed")
		}
		client.ReadPump(h.handleEvent)
		if err := h.service.HandleDisconnect(context.Background(), client.ID); err != nil {
			log.L().Warn().Err(err).Str(log.FieldConnID, client.ID).Msg("disconnect handling failed")
		}
	}()
}

func (h *WSHandler) handleEvent(client *hub.Client, message []byte) {
	var base domain.BaseEvent
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(domain.NewErrorEvent(domain.CodeBadRequest, "Invalid event format"))
		return
	}

	ctx := context.Background()

	switch base.Type {
	case domain.EvIdentify:
		var ev domain.IdentifyEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			client.SendMessage(domain.NewErrorEvent(domain.CodeBadRequest, "Invalid identify event"))
			return
		}
		if err := h.service.HandleIdentify(ctx, client.ID, ev.DisplayName); err != nil {
			log.L().Warn().Err(err).Str(log.FieldConnID, client.ID).Msg("identify failed")
		}

	case domain.EvSendMessage:
		var ev domain.SendMessageEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			client.SendMessage(domain.NewErrorEvent(domain.CodeBadRequest, "Invalid send_message event"))
			return
		}
		if err := h.service.HandleSendMessage(ctx, client.ID, &ev); err != nil {
			log.L().Warn().Err(err).Str(log.FieldConnID, client.ID).Msg("send_message failed")
		}

	case domain.EvMessageReaction:
		var ev domain.ReactionEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			client.SendMessage(domain.NewErrorEvent(domain.CodeBadRequest, "Invalid message_reaction event"))
			return
		}
		if err := h.service.HandleReaction(ctx, client.ID, &ev); err != nil {
			log.L().Warn().Err(err).Str(log.FieldConnID, client.ID).Msg("message_reaction failed")
		}

	case domain.EvTyping:
		var ev domain.TypingEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			client.SendMessage(domain.NewErrorEvent(domain.CodeBadRequest, "Invalid typing event"))
			return
		}
		if err := h.service.HandleTyping(ctx, client.ID, ev.Typing); err != nil {
			log.L().Warn().Err(err).Str(log.FieldConnID, client.ID).Msg("typing failed")
		}

	case domain.EvLoadMore:
		var ev domain.LoadMoreEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			client.SendMessage(domain.NewErrorEvent(domain.CodeBadRequest, "Invalid load_more_messages event"))
			return
		}
		if err := h.service.HandleLoadMore(ctx, client.ID, &ev); err != nil {
			log.L().Warn().Err(err).Str(log.FieldConnID, client.ID).Msg("load_more_messages failed")
		}

	case domain.EvPing:
		client.SendMessage(map[string]string{"type": domain.EvPong})

	default:
		client.SendMessage(domain.NewErrorEvent(domain.CodeBadRequest, "Unknown event type"))
	}
}

func (h *WSHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws", h.HandleWebSocket)
}
