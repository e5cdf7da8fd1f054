package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// handlerFunc maps one inbound client message to the messages it causes. It
// runs on the hub loop and may mutate room membership.
type handlerFunc func(h *Hub, s *Session, data json.RawMessage) ([]Outbound, error)

var handlers = map[string]handlerFunc{
	EventJoinProject:      handleJoinProject,
	EventLeaveProject:     handleLeaveProject,
	EventUserActivity:     handleUserActivity,
	EventTaskCreated:      handleTaskChanged(EventTaskCreated),
	EventTaskUpdated:      handleTaskChanged(EventTaskUpdated),
	EventTaskDeleted:      handleTaskDeleted,
	EventTestNotification: handleTestNotification,
}

func (h *Hub) dispatch(s *Session, env Envelope) []Outbound {
	handler, ok := handlers[env.Event]
	if !ok {
		h.logger.Warn("Hub", "Unknown event", map[string]interface{}{"event": env.Event, "session": s.ID})
		return nil
	}
	out, err := handler(h, s, env.Data)
	if err != nil {
		h.logger.Warn("Hub", "Dropping malformed message", map[string]interface{}{"event": env.Event, "session": s.ID, "error": err.Error()})
		return nil
	}
	return out
}

// handleJoinProject broadcasts the new snapshot right away and cancels any
// pending recompute for the room, which it supersedes.
func handleJoinProject(h *Hub, s *Session, data json.RawMessage) ([]Outbound, error) {
	projectID, err := parseProjectID(data)
	if err != nil {
		return nil, err
	}
	room := ProjectRoom(projectID)
	h.rooms.Join(room, s)
	h.cancelRecompute(room)

	h.logger.Debug("Hub", "Joined project", map[string]interface{}{"user_id": s.Identity.ID, "room": room, "online": h.rooms.Len(room)})
	return []Outbound{{Room: room, Event: EventOnlineMembers, Data: h.rooms.OnlineMembers(room)}}, nil
}

// handleLeaveProject defers the snapshot so a quick leave and rejoin produces
// one broadcast instead of two.
func handleLeaveProject(h *Hub, s *Session, data json.RawMessage) ([]Outbound, error) {
	projectID, err := parseProjectID(data)
	if err != nil {
		return nil, err
	}
	room := ProjectRoom(projectID)
	if h.rooms.Leave(room, s) {
		h.scheduleRecompute(room)
		h.logger.Debug("Hub", "Left project", map[string]interface{}{"user_id": s.Identity.ID, "room": room})
	}
	return nil, nil
}

func handleUserActivity(h *Hub, s *Session, data json.RawMessage) ([]Outbound, error) {
	var in activityIn
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	return []Outbound{{
		Room:    ProjectRoom(in.ProjectID),
		Event:   EventUserActivity,
		Data:    activityOut{User: userRef{ID: s.Identity.ID, Username: s.Identity.Username}, Activity: in.Activity},
		Exclude: s.ID,
	}}, nil
}

func handleTaskChanged(event string) handlerFunc {
	return func(h *Hub, s *Session, data json.RawMessage) ([]Outbound, error) {
		var in taskEventIn
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, err
		}
		if len(in.Task) == 0 {
			return nil, fmt.Errorf("%s without task", event)
		}
		return []Outbound{{Room: ProjectRoom(in.ProjectID), Event: event, Data: in.Task, Exclude: s.ID}}, nil
	}
}

func handleTaskDeleted(h *Hub, s *Session, data json.RawMessage) ([]Outbound, error) {
	var in taskEventIn
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	return []Outbound{{
		Room:    ProjectRoom(in.ProjectID),
		Event:   EventTaskDeleted,
		Data:    taskDeletedOut{TaskID: in.TaskID, TaskTitle: in.TaskTitle, DeletedBy: s.Identity.ID},
		Exclude: s.ID,
	}}, nil
}

func handleTestNotification(h *Hub, s *Session, data json.RawMessage) ([]Outbound, error) {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return []Outbound{{
		Target: s,
		Event:  EventTestNotificationResponse,
		Data: testNotificationOut{
			Message:   "Test notification received successfully",
			Timestamp: time.Now(),
			Data:      data,
		},
	}}, nil
}
