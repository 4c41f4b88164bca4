package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fanlv/chat-room/pkg/auth"
	"github.com/fanlv/chat-room/pkg/model"
)

// registerHandlers installs the server-bound command handlers.
func (s *Server) registerHandlers() {
	s.dispatcher.Register(model.TagLogin, s.handleLogin)
	s.dispatcher.Register(model.TagSendMessage, s.handleSendMessage)
}

// handleLogin validates credentials, creates the session, announces the new
// member, and replays room history to them. Every business failure is a coded
// response, never an error to the caller.
func (s *Server) handleLogin(_ context.Context, req *model.Request) (*model.Response, error) {
	login := req.Command.Login
	if login == nil {
		return nil, fmt.Errorf("login: payload missing")
	}
	remote := req.Base.RemoteAddr

	if login.UserName == "" {
		s.metrics.LoginFailed.Add(1)
		return model.NewResponse(model.CodeLoginFailed, "user name invalid"), nil
	}

	if s.rooms.HasName(login.RoomID, login.UserName) {
		s.metrics.LoginFailed.Add(1)
		msg := fmt.Sprintf("username %s already exists, please choose a different username and try signing in again",
			login.UserName)
		return model.NewResponse(model.CodeUserNameDuplicate, msg), nil
	}

	if !s.checker.Check(login.Password) {
		s.metrics.LoginFailed.Add(1)
		return model.NewResponse(model.CodeLoginFailed, "password invalid"), nil
	}

	sessionID, err := auth.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	sess := model.UserSession{
		Name:      login.UserName,
		Address:   remote,
		SessionID: sessionID,
		RoomID:    login.RoomID,
		LoginTime: time.Now().UnixNano(),
	}

	// Paired update: the session store's two indices and the room store's
	// membership copy are always written together.
	s.sessions.Save(sess)
	s.rooms.Save(login.RoomID, sess)

	s.broadcaster.UserOnline(sess)
	s.broadcaster.History(sess, s.messages.History(login.RoomID))

	s.metrics.LoginSuccess.Add(1)
	slog.Info("client authenticated", "user", sess.Name, "room", sess.RoomID, "remote", remote)

	return model.SuccessData("", sessionID), nil
}

// handleSendMessage appends the message to its room's history and fans it out
// to every member, sender included.
func (s *Server) handleSendMessage(_ context.Context, req *model.Request) (*model.Response, error) {
	send := req.Command.SendTextMessage
	if send == nil {
		return nil, fmt.Errorf("send message: payload missing")
	}

	sess, ok := s.sessions.Get(req.Base.SessionID)
	if !ok {
		return nil, fmt.Errorf("send message: session %q not found", req.Base.SessionID)
	}

	if send.RoomID != sess.RoomID {
		return model.NewResponse(model.CodeRoomInvalid, "room id invalid"), nil
	}

	msg := model.Message{
		User:    sess.User(),
		Time:    time.Now().UnixNano(),
		Content: send.Text,
	}
	s.messages.Append(msg)
	s.archiveMessage(msg)

	s.broadcaster.NewMessage(msg)
	s.metrics.MessagesRelayed.Add(1)

	return model.Success(""), nil
}

// archiveMessage appends msg to the SQLite archive when one is configured.
// Archival is best-effort and never affects the request.
func (s *Server) archiveMessage(msg model.Message) {
	if s.archive == nil {
		return
	}
	go func() {
		if err := s.archive.Append(msg); err != nil {
			slog.Error("archive: append failed", "room", msg.User.RoomID, "err", err)
		}
	}()
}
