package model

// CommandType tags a command variant so it can be routed without decoding the
// payload.
type CommandType string

// Server-bound tags.
const (
	TagLogin       CommandType = "Login"
	TagSendMessage CommandType = "SendMessage"
)

// Client-bound (pushed) tags.
const (
	TagUserOnline      CommandType = "UserOnline"
	TagUserOffline     CommandType = "UserOffline"
	TagChatUserList    CommandType = "ChatUserList"
	TagNewMessage      CommandType = "NewMessage"
	TagChatMessageList CommandType = "ChatMessageList"
)

// Login asks the server to authenticate and join a room.
type Login struct {
	UserName string `json:"user_name"`
	Password string `json:"password"`
	RoomID   int64  `json:"room_id"`
}

// SendTextMessage carries one chat message from a logged-in client.
type SendTextMessage struct {
	Text   string `json:"text"`
	RoomID int64  `json:"room_id"`
}

// PresenceEvent announces a user going online or offline.
type PresenceEvent struct {
	Time int64 `json:"time"`
	User User  `json:"user"`
}

// ChatUserList carries the full room roster, sorted ascending by login time.
type ChatUserList struct {
	Users []User `json:"users"`
}

// ChatMessageList replays a room's message history to one recipient.
type ChatMessageList struct {
	Messages []Message `json:"messages"`
}

// Command is a one-of envelope: exactly one field is non-nil. The populated
// variant determines the command tag, so tag and payload cannot disagree.
type Command struct {
	Login           *Login           `json:"login,omitempty"`
	SendTextMessage *SendTextMessage `json:"send_text_message,omitempty"`
	UserOnline      *PresenceEvent   `json:"user_online,omitempty"`
	UserOffline     *PresenceEvent   `json:"user_offline,omitempty"`
	ChatUserList    *ChatUserList    `json:"chat_user_list,omitempty"`
	NewMessage      *Message         `json:"new_message,omitempty"`
	ChatMessageList *ChatMessageList `json:"chat_message_list,omitempty"`
}

// Type returns the tag of the populated variant, or "" for an empty envelope.
func (c Command) Type() CommandType {
	switch {
	case c.Login != nil:
		return TagLogin
	case c.SendTextMessage != nil:
		return TagSendMessage
	case c.UserOnline != nil:
		return TagUserOnline
	case c.UserOffline != nil:
		return TagUserOffline
	case c.ChatUserList != nil:
		return TagChatUserList
	case c.NewMessage != nil:
		return TagNewMessage
	case c.ChatMessageList != nil:
		return TagChatMessageList
	}
	return ""
}
