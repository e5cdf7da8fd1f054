package realtime

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Client -> server events.
const (
	EventJoinProject      = "joinProject"
	EventLeaveProject     = "leaveProject"
	EventUserActivity     = "userActivity"
	EventTaskCreated      = "taskCreated"
	EventTaskUpdated      = "taskUpdated"
	EventTaskDeleted      = "taskDeleted"
	EventTestNotification = "testNotification"
)

// Server -> client events.
const (
	EventConnected                = "connected"
	EventOnlineMembers            = "onlineMembers"
	EventNewNotification          = "newNotification"
	EventTestNotificationResponse = "testNotificationResponse"
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encode(event string, data interface{}) ([]byte, error) {
	return json.Marshal(struct {
		Event string      `json:"event"`
		Data  interface{} `json:"data"`
	}{Event: event, Data: data})
}

type MemberView struct {
	ID       uuid.UUID `json:"_id"`
	Username string    `json:"username"`
	SocketID uuid.UUID `json:"socketId"`
}

type userRef struct {
	ID       uuid.UUID `json:"_id"`
	Username string    `json:"username"`
}

type connectedPayload struct {
	Message  string    `json:"message"`
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
}

type activityIn struct {
	ProjectID uuid.UUID       `json:"projectId"`
	Activity  json.RawMessage `json:"activity"`
}

type activityOut struct {
	User     userRef         `json:"user"`
	Activity json.RawMessage `json:"activity"`
}

type taskEventIn struct {
	ProjectID uuid.UUID       `json:"projectId"`
	Task      json.RawMessage `json:"task"`
	TaskID    string          `json:"taskId"`
	TaskTitle string          `json:"taskTitle"`
}

type taskDeletedOut struct {
	TaskID    string    `json:"taskId"`
	TaskTitle string    `json:"taskTitle"`
	DeletedBy uuid.UUID `json:"deletedBy"`
}

type testNotificationOut struct {
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

var errMissingProject = errors.New("missing projectId")

// parseProjectID accepts either a bare id ("<uuid>") or {"projectId": "<uuid>"}.
func parseProjectID(data json.RawMessage) (uuid.UUID, error) {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		var obj struct {
			ProjectID string `json:"projectId"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return uuid.Nil, err
		}
		raw = obj.ProjectID
	}
	if raw == "" {
		return uuid.Nil, errMissingProject
	}
	return uuid.Parse(raw)
}
