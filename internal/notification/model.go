package notification

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeTaskAssigned  Type = "task_assigned"
	TypeTaskUpdated   Type = "task_updated"
	TypeTaskCompleted Type = "task_completed"
	TypeTaskCommented Type = "task_commented"
	TypeProjectJoined Type = "project_joined"
)

// EventNewNotification is the socket event a recipient's personal room gets.
const EventNewNotification = "newNotification"

// Data references the entities a notification is about.
type Data struct {
	ProjectID *uuid.UUID             `json:"projectId,omitempty"`
	TaskID    *uuid.UUID             `json:"taskId,omitempty"`
	CommentID *uuid.UUID             `json:"commentId,omitempty"`
	Changes   map[string]interface{} `json:"changes,omitempty"`
}

type SenderRef struct {
	ID       uuid.UUID `json:"_id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

type ProjectRef struct {
	ID   uuid.UUID `json:"_id"`
	Name string    `json:"name"`
}

type TaskRef struct {
	ID    uuid.UUID `json:"_id"`
	Title string    `json:"title"`
}

type Notification struct {
	ID          uuid.UUID   `json:"_id"`
	RecipientID uuid.UUID   `json:"recipient"`
	SenderID    uuid.UUID   `json:"senderId"`
	Sender      *SenderRef  `json:"sender,omitempty"`
	Type        Type        `json:"type"`
	Title       string      `json:"title"`
	Message     string      `json:"message"`
	Data        Data        `json:"data"`
	Project     *ProjectRef `json:"project,omitempty"`
	Task        *TaskRef    `json:"task,omitempty"`
	Read        bool        `json:"read"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Params is the input of Notify.
type Params struct {
	RecipientID uuid.UUID
	SenderID    uuid.UUID
	Type        Type
	Title       string
	Message     string
	Data        Data
}
