// Package model defines the chat-room data model and the request/response
// envelope exchanged between client and server.
package model

// Response codes carried in Response.Code.
const (
	CodeSuccess           = 0
	CodeLoginFailed       = 1000 // bad user name or password
	CodeSessionInvalid    = 1001 // unknown session id or address mismatch
	CodeRoomInvalid       = 1002 // room id does not match the session's room
	CodeUserNameDuplicate = 1003 // user name already taken in the room
	CodeInternalError     = 5000 // handler failure surfaced at the transport boundary
)

// User is a lightweight snapshot of a participant, derived from UserSession.
// It is a value type and is freely copied onto the wire.
type User struct {
	UserName  string `json:"user_name"`
	Address   string `json:"address"`
	RoomID    int64  `json:"room_id"`
	LoginTime int64  `json:"login_time"` // Unix nanoseconds
}

// UserSession is the authoritative per-login record. It is created once per
// successful login and never mutated afterwards, only deleted. The session
// store owns it; the room store holds an independent copy keyed by address.
type UserSession struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	SessionID string `json:"session_id"`
	RoomID    int64  `json:"room_id"`
	LoginTime int64  `json:"login_time"` // Unix nanoseconds, doubles as join order
}

// User returns the participant snapshot for this session.
func (s UserSession) User() User {
	return User{
		UserName:  s.Name,
		Address:   s.Address,
		RoomID:    s.RoomID,
		LoginTime: s.LoginTime,
	}
}

// Message is one chat message, immutable once created.
type Message struct {
	User    User   `json:"user"`
	Time    int64  `json:"time"` // Unix nanoseconds
	Content string `json:"content"`
}

// Base carries the per-request session context. RemoteAddr is stamped by the
// server from the connection; a value supplied by the client is ignored.
type Base struct {
	SessionID   string       `json:"session_id"`
	RemoteAddr  string       `json:"remote_address"`
	UserSession *UserSession `json:"user_session,omitempty"`
}

// Request is the outbound envelope. CommandTag is redundant with the populated
// Command variant so routing never needs to inspect the payload; NewRequest
// derives it, keeping the two in agreement by construction.
type Request struct {
	Base       Base        `json:"base"`
	Command    Command     `json:"command"`
	CommandTag CommandType `json:"command_tag"`
}

// NewRequest builds a Request for cmd with the tag derived from its variant.
func NewRequest(cmd Command) *Request {
	return &Request{
		Base:       Base{},
		Command:    cmd,
		CommandTag: cmd.Type(),
	}
}

// Response is the inbound reply envelope.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// NewResponse builds a Response with the given code and message.
func NewResponse(code int, message string) *Response {
	return &Response{Code: code, Message: message}
}

// Success builds a code-zero Response.
func Success(message string) *Response {
	return &Response{Code: CodeSuccess, Message: message}
}

// SuccessData builds a code-zero Response carrying data.
func SuccessData(message, data string) *Response {
	return &Response{Code: CodeSuccess, Message: message, Data: data}
}

// OK reports whether the response carries a success code.
func (r *Response) OK() bool {
	return r.Code == CodeSuccess
}
