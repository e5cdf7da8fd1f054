package realtime

import (
	"context"
	"errors"
	"time"

	"taskhub/internal/pkg/logger"
	"taskhub/internal/presence"

	"github.com/google/uuid"
)

var ErrHubClosed = errors.New("hub is closed")

const publishBuffer = 256

// Outbound is one message produced by an inbound handler. Exactly one of Room
// or Target is set.
type Outbound struct {
	Room    string
	Target  *Session
	Event   string
	Data    interface{}
	Exclude uuid.UUID
}

type inbound struct {
	session  *Session
	envelope Envelope
}

type delivery struct {
	room    string
	message []byte
	exclude uuid.UUID
}

type recomputeReq struct {
	room  string
	token uint64
}

// Hub owns presence, room membership and delivery. Everything that reads or
// mutates that state runs on the Run goroutine, so none of it is locked.
type Hub struct {
	presence *presence.Registry
	mirror   presence.Mirror
	rooms    *Rooms
	sessions map[uuid.UUID]*Session

	// Pending online-member recomputes per room. Only the latest token for a
	// room is honoured when its timer fires.
	debounce time.Duration
	seq      uint64
	pending  map[string]uint64
	timers   map[string]*time.Timer

	register   chan *Session
	unregister chan *Session
	inbound    chan inbound
	publish    chan delivery
	recompute  chan recomputeReq
	queries    chan func()
	done       chan struct{}

	logger logger.ILogger
}

func NewHub(registry *presence.Registry, mirror presence.Mirror, debounce time.Duration, log logger.ILogger) *Hub {
	if mirror == nil {
		mirror = presence.NopMirror{}
	}
	return &Hub{
		presence:   registry,
		mirror:     mirror,
		rooms:      NewRooms(),
		sessions:   make(map[uuid.UUID]*Session),
		debounce:   debounce,
		pending:    make(map[string]uint64),
		timers:     make(map[string]*time.Timer),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		inbound:    make(chan inbound, publishBuffer),
		publish:    make(chan delivery, publishBuffer),
		recompute:  make(chan recomputeReq),
		queries:    make(chan func()),
		done:       make(chan struct{}),
		logger:     log,
	}
}

// Run processes hub commands until ctx is cancelled, then closes every session.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("Hub", "Realtime hub started", nil)
	defer h.logger.Info("Hub", "Realtime hub stopped", nil)
	defer close(h.done)
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case s := <-h.register:
			h.handleRegister(s)

		case s := <-h.unregister:
			h.disconnect(s, "closed")

		case in := <-h.inbound:
			// The session may have been dropped while the message was queued.
			if _, ok := h.sessions[in.session.ID]; !ok {
				continue
			}
			h.apply(h.dispatch(in.session, in.envelope))

		case d := <-h.publish:
			h.deliver(d.room, d.message, d.exclude)

		case r := <-h.recompute:
			if h.pending[r.room] != r.token {
				continue // superseded
			}
			delete(h.pending, r.room)
			delete(h.timers, r.room)
			h.broadcastOnlineMembers(r.room)

		case fn := <-h.queries:
			fn()
		}
	}
}

// Done is closed once Run has returned and every session has been closed.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Register hands an authenticated session to the hub. The hub records
// presence, joins the personal room and queues the connected acknowledgment.
func (h *Hub) Register(ctx context.Context, s *Session) error {
	select {
	case h.register <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *Hub) Unregister(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// Dispatch queues an inbound client message for the session.
func (h *Hub) Dispatch(s *Session, env Envelope) {
	select {
	case h.inbound <- inbound{session: s, envelope: env}:
	case <-h.done:
	}
}

// Publish delivers payload to every session in room except exclude. It does
// not wait for delivery. Publishes from one goroutine reach each subscriber in
// call order.
func (h *Hub) Publish(room, event string, payload interface{}, exclude uuid.UUID) {
	msg, err := encode(event, payload)
	if err != nil {
		h.logger.Error("Hub", "Could not encode event", map[string]interface{}{"error": err, "event": event, "room": room})
		return
	}
	select {
	case h.publish <- delivery{room: room, message: msg, exclude: exclude}:
	case <-h.done:
	}
}

func (h *Hub) PublishToProject(projectID uuid.UUID, event string, payload interface{}) {
	h.Publish(ProjectRoom(projectID), event, payload, uuid.Nil)
}

func (h *Hub) PublishToUser(userID uuid.UUID, event string, payload interface{}) {
	h.Publish(PersonalRoom(userID), event, payload, uuid.Nil)
}

func (h *Hub) OnlineCount(ctx context.Context) (int, error) {
	var n int
	err := h.query(ctx, func() { n = h.presence.Size() })
	return n, err
}

func (h *Hub) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	var online bool
	err := h.query(ctx, func() { online = h.presence.IsOnline(userID) })
	return online, err
}

func (h *Hub) OnlineMembers(ctx context.Context, projectID uuid.UUID) ([]MemberView, error) {
	var members []MemberView
	err := h.query(ctx, func() { members = h.rooms.OnlineMembers(ProjectRoom(projectID)) })
	return members, err
}

// query runs fn on the loop. Once the loop has accepted fn it runs at once,
// so the caller waits for it regardless of ctx.
func (h *Hub) query(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case h.queries <- func() { fn(); close(finished) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubClosed
	}
	<-finished
	return nil
}

func (h *Hub) handleRegister(s *Session) {
	h.sessions[s.ID] = s

	entry := presence.Entry{
		UserID:    s.Identity.ID,
		Username:  s.Identity.Username,
		SessionID: s.ID,
		JoinedAt:  s.ConnectedAt,
	}
	if prev, replaced := h.presence.Register(entry); replaced {
		h.logger.Info("Hub", "Presence superseded by newer session", map[string]interface{}{
			"user_id":          s.Identity.ID,
			"previous_session": prev.SessionID,
			"session":          s.ID,
		})
	}
	h.mirror.Online(entry)

	h.rooms.Join(PersonalRoom(s.Identity.ID), s)
	h.logger.Info("Hub", "Session registered", map[string]interface{}{"user_id": s.Identity.ID, "session": s.ID, "online": h.presence.Size()})

	h.apply([]Outbound{{
		Target: s,
		Event:  EventConnected,
		Data: connectedPayload{
			Message:  "Successfully connected to server",
			UserID:   s.Identity.ID,
			Username: s.Identity.Username,
		},
	}})
}

// disconnect removes every trace of s and schedules a recompute for each
// project room it held. Calling it for an unknown session is a no-op.
func (h *Hub) disconnect(s *Session, reason string) {
	if _, ok := h.sessions[s.ID]; !ok {
		return
	}
	delete(h.sessions, s.ID)

	held := h.rooms.Drop(s)

	// A newer session of the same identity keeps its presence entry.
	if e, ok := h.presence.Lookup(s.Identity.ID); ok && e.SessionID == s.ID {
		h.presence.Unregister(s.Identity.ID)
		h.mirror.Offline(s.Identity.ID)
	}

	for _, room := range held {
		if isProjectRoom(room) {
			h.scheduleRecompute(room)
		}
	}
	s.close()

	h.logger.Info("Hub", "Session disconnected", map[string]interface{}{"user_id": s.Identity.ID, "session": s.ID, "reason": reason})
}

func (h *Hub) scheduleRecompute(room string) {
	h.seq++
	token := h.seq
	if t, ok := h.timers[room]; ok {
		t.Stop()
	}
	h.pending[room] = token
	h.timers[room] = time.AfterFunc(h.debounce, func() {
		select {
		case h.recompute <- recomputeReq{room: room, token: token}:
		case <-h.done:
		}
	})
}

func (h *Hub) cancelRecompute(room string) {
	if t, ok := h.timers[room]; ok {
		t.Stop()
		delete(h.timers, room)
	}
	delete(h.pending, room)
}

func (h *Hub) broadcastOnlineMembers(room string) {
	h.apply([]Outbound{{Room: room, Event: EventOnlineMembers, Data: h.rooms.OnlineMembers(room)}})
}

func (h *Hub) apply(out []Outbound) {
	for _, o := range out {
		msg, err := encode(o.Event, o.Data)
		if err != nil {
			h.logger.Error("Hub", "Could not encode event", map[string]interface{}{"error": err, "event": o.Event})
			continue
		}
		if o.Target != nil {
			h.send(o.Target, msg)
			continue
		}
		h.deliver(o.Room, msg, o.Exclude)
	}
}

func (h *Hub) deliver(room string, msg []byte, exclude uuid.UUID) {
	for _, s := range h.rooms.Members(room) {
		if s.ID == exclude {
			continue
		}
		h.send(s, msg)
	}
}

// send never blocks the loop. A session whose buffer is full is dropped.
func (h *Hub) send(s *Session, msg []byte) {
	if s.closed {
		return
	}
	select {
	case s.send <- msg:
	default:
		h.logger.Warn("Hub", "Send buffer full, dropping session", map[string]interface{}{"user_id": s.Identity.ID, "session": s.ID})
		h.disconnect(s, "slow consumer")
	}
}

func (h *Hub) shutdown() {
	for room, t := range h.timers {
		t.Stop()
		delete(h.timers, room)
	}
	for _, s := range h.sessions {
		h.rooms.Drop(s)
		h.presence.Unregister(s.Identity.ID)
		h.mirror.Offline(s.Identity.ID)
		s.close()
	}
	h.sessions = make(map[uuid.UUID]*Session)
}
