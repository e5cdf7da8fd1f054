// Package workspace holds the project and task shapes that the CRUD side hands
// to the realtime core when something changes.
package workspace

import "github.com/google/uuid"

type Project struct {
	ID      uuid.UUID
	Name    string
	OwnerID uuid.UUID
	Members []uuid.UUID
}

type Task struct {
	ID         uuid.UUID
	Title      string
	ProjectID  uuid.UUID
	CreatorID  uuid.UUID
	AssigneeID *uuid.UUID
	// Project is set when the caller loaded it; completion fan-out needs its
	// members.
	Project *Project
}

type Comment struct {
	ID       uuid.UUID
	TaskID   uuid.UUID
	AuthorID uuid.UUID
	Body     string
}

type Member struct {
	ID       uuid.UUID
	Username string
}
