package realtime

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

const (
	personalPrefix = "user_"
	projectPrefix  = "project_"
)

func PersonalRoom(userID uuid.UUID) string {
	return personalPrefix + userID.String()
}

func ProjectRoom(projectID uuid.UUID) string {
	return projectPrefix + projectID.String()
}

func isProjectRoom(room string) bool {
	return strings.HasPrefix(room, projectPrefix)
}

// Rooms maps room keys to subscribed sessions in arrival order. A room with no
// sessions does not exist. Like the presence registry it is owned by the hub
// loop and is not safe for concurrent use.
type Rooms struct {
	members   map[string][]*Session
	bySession map[*Session]map[string]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		members:   make(map[string][]*Session),
		bySession: make(map[*Session]map[string]struct{}),
	}
}

// Join subscribes s to room. It reports false if s was already subscribed.
func (r *Rooms) Join(room string, s *Session) bool {
	held, ok := r.bySession[s]
	if !ok {
		held = make(map[string]struct{})
		r.bySession[s] = held
	}
	if _, ok := held[room]; ok {
		return false
	}
	held[room] = struct{}{}
	r.members[room] = append(r.members[room], s)
	return true
}

// Leave unsubscribes s from room. It reports false if s was not subscribed.
func (r *Rooms) Leave(room string, s *Session) bool {
	held, ok := r.bySession[s]
	if !ok {
		return false
	}
	if _, ok := held[room]; !ok {
		return false
	}
	delete(held, room)
	if len(held) == 0 {
		delete(r.bySession, s)
	}

	list := r.members[room]
	for i, m := range list {
		if m == s {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.members, room)
	} else {
		r.members[room] = list
	}
	return true
}

// Drop removes s from every room and returns the rooms it held, sorted.
func (r *Rooms) Drop(s *Session) []string {
	held := r.RoomsOf(s)
	for _, room := range held {
		r.Leave(room, s)
	}
	return held
}

func (r *Rooms) RoomsOf(s *Session) []string {
	held := make([]string, 0, len(r.bySession[s]))
	for room := range r.bySession[s] {
		held = append(held, room)
	}
	sort.Strings(held)
	return held
}

// Members returns a copy of the room's sessions in arrival order.
func (r *Rooms) Members(room string) []*Session {
	list := r.members[room]
	out := make([]*Session, len(list))
	copy(out, list)
	return out
}

func (r *Rooms) Len(room string) int {
	return len(r.members[room])
}

// OnlineMembers lists one entry per subscribed session. Two sessions of the
// same identity are two entries.
func (r *Rooms) OnlineMembers(room string) []MemberView {
	list := r.members[room]
	out := make([]MemberView, 0, len(list))
	for _, s := range list {
		out = append(out, MemberView{
			ID:       s.Identity.ID,
			Username: s.Identity.Username,
			SocketID: s.ID,
		})
	}
	return out
}
