package notification

import (
	"context"
	"fmt"
	"time"

	"taskhub/internal/pkg/logger"
	"taskhub/internal/workspace"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const storeTimeout = 5 * time.Second

// Publisher pushes a live event to every session of a user. It is the
// realtime hub in production.
type Publisher interface {
	PublishToUser(userID uuid.UUID, event string, payload interface{})
}

type Service struct {
	store       Store
	publisher   Publisher
	logger      logger.ILogger
	concurrency int
}

func NewService(store Store, publisher Publisher, concurrency int, log logger.ILogger) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		store:       store,
		publisher:   publisher,
		logger:      log,
		concurrency: concurrency,
	}
}

// Notify persists one notification and pushes it to the recipient's personal
// room. It returns nil when the recipient is the sender or when persistence
// fails; failures are logged and never returned, so the caller's own operation
// is unaffected.
func (s *Service) Notify(ctx context.Context, p Params) *Notification {
	if p.RecipientID == p.SenderID {
		return nil
	}

	// The caller's request may finish before we do.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	n := &Notification{
		RecipientID: p.RecipientID,
		SenderID:    p.SenderID,
		Type:        p.Type,
		Title:       p.Title,
		Message:     p.Message,
		Data:        p.Data,
	}
	if err := s.store.Create(ctx, n); err != nil {
		s.logger.Error("NotificationService", "Failed to persist notification", map[string]interface{}{
			"error":     err,
			"recipient": p.RecipientID,
			"type":      p.Type,
		})
		return nil
	}

	if err := s.store.Populate(ctx, n); err != nil {
		s.logger.Warn("NotificationService", "Could not populate notification references", map[string]interface{}{
			"error":        err.Error(),
			"notification": n.ID,
		})
	}

	s.publisher.PublishToUser(n.RecipientID, EventNewNotification, n)
	s.logger.Info("NotificationService", "Notification sent", map[string]interface{}{"recipient": n.RecipientID, "type": n.Type, "id": n.ID})
	return n
}

func (s *Service) NotifyTaskAssigned(ctx context.Context, task workspace.Task, assignedBy uuid.UUID) []*Notification {
	if task.AssigneeID == nil {
		return nil
	}
	return s.fanOut(ctx, []uuid.UUID{*task.AssigneeID}, func(recipient uuid.UUID) Params {
		return Params{
			RecipientID: recipient,
			SenderID:    assignedBy,
			Type:        TypeTaskAssigned,
			Title:       "New Task Assigned",
			Message:     fmt.Sprintf("You have been assigned to task: \"%s\"", task.Title),
			Data:        taskData(task),
		}
	})
}

func (s *Service) NotifyTaskUpdated(ctx context.Context, task workspace.Task, updatedBy uuid.UUID, changes map[string]interface{}) []*Notification {
	var recipients recipientSet
	if task.AssigneeID != nil {
		recipients.add(*task.AssigneeID)
	}
	recipients.add(task.CreatorID)
	recipients.remove(updatedBy)

	return s.fanOut(ctx, recipients.ids, func(recipient uuid.UUID) Params {
		data := taskData(task)
		data.Changes = changes
		return Params{
			RecipientID: recipient,
			SenderID:    updatedBy,
			Type:        TypeTaskUpdated,
			Title:       "Task Updated",
			Message:     fmt.Sprintf("Task \"%s\" has been updated", task.Title),
			Data:        data,
		}
	})
}

func (s *Service) NotifyTaskCompleted(ctx context.Context, task workspace.Task, completedBy uuid.UUID) []*Notification {
	var recipients recipientSet
	recipients.add(task.CreatorID)
	if task.Project != nil {
		for _, member := range task.Project.Members {
			recipients.add(member)
		}
	}
	recipients.remove(completedBy)

	return s.fanOut(ctx, recipients.ids, func(recipient uuid.UUID) Params {
		return Params{
			RecipientID: recipient,
			SenderID:    completedBy,
			Type:        TypeTaskCompleted,
			Title:       "Task Completed",
			Message:     fmt.Sprintf("Task \"%s\" has been completed", task.Title),
			Data:        taskData(task),
		}
	})
}

// NotifyComment does not remove the commenter from the set; Notify's
// self-check skips them.
func (s *Service) NotifyComment(ctx context.Context, task workspace.Task, comment workspace.Comment, commentedBy uuid.UUID) []*Notification {
	var recipients recipientSet
	if task.AssigneeID != nil {
		recipients.add(*task.AssigneeID)
	}
	recipients.add(task.CreatorID)

	return s.fanOut(ctx, recipients.ids, func(recipient uuid.UUID) Params {
		data := taskData(task)
		commentID := comment.ID
		data.CommentID = &commentID
		return Params{
			RecipientID: recipient,
			SenderID:    commentedBy,
			Type:        TypeTaskCommented,
			Title:       "New Comment",
			Message:     fmt.Sprintf("New comment on task: \"%s\"", task.Title),
			Data:        data,
		}
	})
}

func (s *Service) NotifyProjectJoined(ctx context.Context, project workspace.Project, newMember workspace.Member) []*Notification {
	projectID := project.ID
	return s.fanOut(ctx, []uuid.UUID{project.OwnerID}, func(recipient uuid.UUID) Params {
		return Params{
			RecipientID: recipient,
			SenderID:    newMember.ID,
			Type:        TypeProjectJoined,
			Title:       "New Team Member",
			Message:     fmt.Sprintf("%s joined your project: \"%s\"", newMember.Username, project.Name),
			Data:        Data{ProjectID: &projectID},
		}
	})
}

// fanOut runs one Notify per recipient concurrently. Each recipient succeeds
// or fails on its own; the result holds the ones that were created, in
// recipient order.
func (s *Service) fanOut(ctx context.Context, recipients []uuid.UUID, build func(uuid.UUID) Params) []*Notification {
	if len(recipients) == 0 {
		return nil
	}
	results := make([]*Notification, len(recipients))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, recipient := range recipients {
		g.Go(func() error {
			results[i] = s.Notify(ctx, build(recipient))
			return nil
		})
	}
	g.Wait()

	created := results[:0]
	for _, n := range results {
		if n != nil {
			created = append(created, n)
		}
	}
	return created
}

func (s *Service) List(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]Notification, error) {
	return s.store.ListForRecipient(ctx, recipientID, limit, offset)
}

func (s *Service) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int, error) {
	return s.store.UnreadCount(ctx, recipientID)
}

// MarkRead returns ErrNotFound when the notification does not belong to the
// recipient.
func (s *Service) MarkRead(ctx context.Context, id, recipientID uuid.UUID) error {
	return s.store.MarkRead(ctx, id, recipientID)
}

func (s *Service) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	return s.store.MarkAllRead(ctx, recipientID)
}

func taskData(task workspace.Task) Data {
	projectID, taskID := task.ProjectID, task.ID
	return Data{ProjectID: &projectID, TaskID: &taskID}
}

// recipientSet keeps insertion order and ignores nil and repeated ids.
type recipientSet struct {
	ids []uuid.UUID
}

func (r *recipientSet) add(id uuid.UUID) {
	if id == uuid.Nil {
		return
	}
	for _, existing := range r.ids {
		if existing == id {
			return
		}
	}
	r.ids = append(r.ids, id)
}

func (r *recipientSet) remove(id uuid.UUID) {
	for i, existing := range r.ids {
		if existing == id {
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
			return
		}
	}
}
