package domain

// WebSocket event types from client.
const (
	EvIdentify        = "identify"
	EvSendMessage     = "send_message"
	EvMessageReaction = "message_reaction"
	EvTyping          = "typing"
	EvLoadMore        = "load_more_messages"
	EvPing            = "ping"
)

// WebSocket event types to client.
const (
	EvHistory         = "history"
	EvMoreMessages    = "more_messages_loaded"
	EvReceiveMessage  = "receive_message"
	EvReactionUpdated = "reaction_updated"
	EvUserTyping      = "user_typing"
	EvUsersCount      = "users_count"
	EvOnlineUsers     = "online_users"
	EvUserJoined      = "user_joined"
	EvUserLeft        = "user_left"
	EvAck             = "ack"
	EvError           = "error"
	EvPong            = "pong"
)

// BaseEvent is the envelope every inbound event is first decoded into.
type BaseEvent struct {
	Type string `json:"type"`
}

// Client -> Server events

type IdentifyEvent struct {
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
}

type SendMessageEvent struct {
	Type        string       `json:"type"`
	ID          string       `json:"id"`
	Body        string       `json:"body,omitempty"`
	ReplyTo     *ReplyRef    `json:"reply_to,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Avatar      string       `json:"avatar,omitempty"`
}

type ReactionEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type TypingEvent struct {
	Type   string `json:"type"`
	Typing bool   `json:"typing"`
}

type LoadMoreEvent struct {
	Type   string `json:"type"`
	Before int64  `json:"before"`
	Limit  int    `json:"limit,omitempty"`
}

// Server -> Client events

type HistoryEvent struct {
	Type     string     `json:"type"`
	Messages []*Message `json:"messages"`
}

type MoreMessagesEvent struct {
	Type     string     `json:"type"`
	Messages []*Message `json:"messages"`
	HasMore  bool       `json:"has_more"`
}

type ReceiveMessageEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message"`
}

type ReactionUpdatedEvent struct {
	Type      string      `json:"type"`
	MessageID string      `json:"message_id"`
	Reactions ReactionMap `json:"reactions"`
}

type UserTypingEvent struct {
	Type        string `json:"type"`
	ConnID      string `json:"conn_id"`
	DisplayName string `json:"display_name"`
	Typing      bool   `json:"typing"`
}

type UsersCountEvent struct {
	Type  string `json:"type"`
	Total int    `json:"total"`
}

type OnlineUsersEvent struct {
	Type  string `json:"type"`
	Users []User `json:"users"`
}

type UserJoinedEvent struct {
	Type        string `json:"type"`
	ConnID      string `json:"conn_id"`
	DisplayName string `json:"display_name"`
}

type UserLeftEvent struct {
	Type        string `json:"type"`
	ConnID      string `json:"conn_id"`
	DisplayName string `json:"display_name"`
}

// AckEvent reports the outcome of one inbound operation to its origin.
type AckEvent struct {
	Type   string `json:"type"`
	Op     string `json:"op"`
	ID     string `json:"id,omitempty"`
	OK     bool   `json:"ok"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorEvent(code, message string) *ErrorEvent {
	return &ErrorEvent{
		Type:    EvError,
		Code:    code,
		Message: message,
	}
}
