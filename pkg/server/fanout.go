package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/fanlv/chat-room/pkg/model"
	"github.com/fanlv/chat-room/pkg/store"
)

// pushTimeout bounds one push delivery. A peer that cannot acknowledge within
// this window is treated as a failed delivery and logged.
const pushTimeout = 10 * time.Second

// Broadcaster fans an event out to a room's members. Every delivery is
// dispatched on its own goroutine and never waited on by the caller: Broadcast
// returns once deliveries are initiated, so a slow or dead peer cannot block
// the request that triggered the event. Members without a registered
// connection are logged and skipped; there is no retry and no queuing.
type Broadcaster struct {
	rooms   *store.RoomStore
	conns   *store.ConnRegistry
	metrics *Metrics
}

// NewBroadcaster creates a broadcaster over the given room membership and
// connection registry.
func NewBroadcaster(rooms *store.RoomStore, conns *store.ConnRegistry, metrics *Metrics) *Broadcaster {
	return &Broadcaster{rooms: rooms, conns: conns, metrics: metrics}
}

// Broadcast pushes req to every member of roomID except excludeAddr. Pass an
// empty excludeAddr to reach the whole room. Recipients are walked in roster
// order so dispatch order stays predictable, though delivery order across
// recipients is never guaranteed.
func (b *Broadcaster) Broadcast(req *model.Request, roomID int64, excludeAddr string) {
	members := b.rooms.Members(roomID)
	recipients := make([]model.UserSession, 0, len(members))
	for _, member := range members {
		if member.Address == excludeAddr {
			continue
		}
		recipients = append(recipients, member)
	}
	b.deliver(req, recipients)
}

// SendTo pushes req to a single recipient, bypassing room resolution. Used
// for point-to-point pushes such as history replay on login.
func (b *Broadcaster) SendTo(req *model.Request, recipient model.UserSession) {
	b.deliver(req, []model.UserSession{recipient})
}

func (b *Broadcaster) deliver(req *model.Request, recipients []model.UserSession) {
	for _, recipient := range recipients {
		conn, ok := b.conns.Get(recipient.Address)
		if !ok {
			// A disconnected-but-not-yet-cleaned-up member silently
			// misses the event.
			slog.Error("push: no connection registered",
				"remote", recipient.Address, "tag", req.CommandTag)
			b.metrics.PushesDropped.Add(1)
			continue
		}

		remote := recipient.Address
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
			defer cancel()
			resp, err := conn.Call(ctx, req)
			if err != nil {
				slog.Error("push: delivery failed",
					"remote", remote, "tag", req.CommandTag, "err", err)
				b.metrics.PushesDropped.Add(1)
				return
			}
			if !resp.OK() {
				slog.Error("push: peer rejected",
					"remote", remote, "tag", req.CommandTag,
					"code", resp.Code, "msg", resp.Message)
				b.metrics.PushesDropped.Add(1)
				return
			}
			b.metrics.PushesSent.Add(1)
		}()
	}
}

// UserOnline announces sess joining its room: the online event goes to every
// member with no exclusion, followed by a full-roster push with the same
// (empty) exclusion.
func (b *Broadcaster) UserOnline(sess model.UserSession) {
	req := model.NewRequest(model.Command{UserOnline: &model.PresenceEvent{
		Time: time.Now().UnixNano(),
		User: sess.User(),
	}})
	b.Broadcast(req, sess.RoomID, "")
	b.pushRoster(sess.RoomID, "")
}

// UserOffline announces sess leaving its room. The departing address is
// excluded from both the event and the accompanying roster push; no
// connection exists there anymore.
func (b *Broadcaster) UserOffline(sess model.UserSession) {
	req := model.NewRequest(model.Command{UserOffline: &model.PresenceEvent{
		Time: time.Now().UnixNano(),
		User: sess.User(),
	}})
	b.Broadcast(req, sess.RoomID, sess.Address)
	b.pushRoster(sess.RoomID, sess.Address)
}

// NewMessage pushes msg to every member of its room, the sender included:
// the sender receives the server's echo of its own message, distinct from any
// local echo the client may render.
func (b *Broadcaster) NewMessage(msg model.Message) {
	req := model.NewRequest(model.Command{NewMessage: &msg})
	b.Broadcast(req, msg.User.RoomID, "")
}

// pushRoster sends the full current membership of roomID, already sorted by
// join order, to every member except excludeAddr. Always a complete list,
// never a delta.
func (b *Broadcaster) pushRoster(roomID int64, excludeAddr string) {
	members := b.rooms.Members(roomID)
	users := make([]model.User, len(members))
	for i, member := range members {
		users[i] = member.User()
	}
	req := model.NewRequest(model.Command{ChatUserList: &model.ChatUserList{Users: users}})
	b.Broadcast(req, roomID, excludeAddr)
}

// History replays the given messages to sess alone.
func (b *Broadcaster) History(sess model.UserSession, messages []model.Message) {
	req := model.NewRequest(model.Command{ChatMessageList: &model.ChatMessageList{Messages: messages}})
	b.SendTo(req, sess)
}
