package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"taskhub/internal/pkg/logger"
	"taskhub/internal/workspace"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu           sync.Mutex
	created      []Notification
	failFor      map[uuid.UUID]bool
	failPopulate bool
}

func newMemStore() *memStore {
	return &memStore{failFor: make(map[uuid.UUID]bool)}
}

func (m *memStore) Create(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[n.RecipientID] {
		return errors.New("write conflict")
	}
	n.ID = uuid.New()
	n.CreatedAt = time.Now()
	m.created = append(m.created, *n)
	return nil
}

func (m *memStore) Populate(_ context.Context, n *Notification) error {
	if m.failPopulate {
		return errors.New("lookup failed")
	}
	n.Sender = &SenderRef{ID: n.SenderID, Username: "sender"}
	return nil
}

func (m *memStore) ListForRecipient(_ context.Context, recipientID uuid.UUID, limit, offset int) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, n := range m.created {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memStore) UnreadCount(_ context.Context, recipientID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.created {
		if n.RecipientID == recipientID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (m *memStore) MarkRead(_ context.Context, id, recipientID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.created {
		if m.created[i].ID == id && m.created[i].RecipientID == recipientID {
			m.created[i].Read = true
			return nil
		}
	}
	return ErrNotFound
}

func (m *memStore) MarkAllRead(_ context.Context, recipientID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var updated int64
	for i := range m.created {
		if m.created[i].RecipientID == recipientID && !m.created[i].Read {
			m.created[i].Read = true
			updated++
		}
	}
	return updated, nil
}

func (m *memStore) recipients() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(m.created))
	for _, n := range m.created {
		ids = append(ids, n.RecipientID)
	}
	return ids
}

type published struct {
	userID uuid.UUID
	event  string
	n      *Notification
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []published
}

func (p *recordingPublisher) PublishToUser(userID uuid.UUID, event string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, _ := payload.(*Notification)
	p.sent = append(p.sent, published{userID: userID, event: event, n: n})
}

func (p *recordingPublisher) users() []uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(p.sent))
	for _, s := range p.sent {
		ids = append(ids, s.userID)
	}
	return ids
}

func newTestService(store Store) (*Service, *recordingPublisher) {
	pub := &recordingPublisher{}
	return NewService(store, pub, 4, logger.NewNop()), pub
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

func TestNotifySuppressesSelf(t *testing.T) {
	store := newMemStore()
	svc, pub := newTestService(store)
	u := uuid.New()

	assert.Nil(t, svc.Notify(context.Background(), Params{RecipientID: u, SenderID: u, Type: TypeTaskAssigned}))
	assert.Empty(t, store.recipients())
	assert.Empty(t, pub.users())
}

func TestNotifyPersistsThenPublishes(t *testing.T) {
	store := newMemStore()
	svc, pub := newTestService(store)
	u1, u2 := uuid.New(), uuid.New()

	n := svc.Notify(context.Background(), Params{RecipientID: u2, SenderID: u1, Type: TypeTaskAssigned, Title: "t"})

	require.NotNil(t, n)
	assert.NotEqual(t, uuid.Nil, n.ID)
	assert.Equal(t, "sender", n.Sender.Username)
	require.Len(t, pub.sent, 1)
	assert.Equal(t, u2, pub.sent[0].userID)
	assert.Equal(t, EventNewNotification, pub.sent[0].event)
	assert.Equal(t, n.ID, pub.sent[0].n.ID)
}

func TestNotifySwallowsPersistenceFailure(t *testing.T) {
	store := newMemStore()
	svc, pub := newTestService(store)
	u1, u2 := uuid.New(), uuid.New()
	store.failFor[u2] = true

	assert.NotPanics(t, func() {
		assert.Nil(t, svc.Notify(context.Background(), Params{RecipientID: u2, SenderID: u1}))
	})
	assert.Empty(t, pub.users(), "nothing is pushed for a record that was not saved")
}

func TestNotifyDeliversUnpopulatedRecord(t *testing.T) {
	store := newMemStore()
	store.failPopulate = true
	svc, pub := newTestService(store)

	n := svc.Notify(context.Background(), Params{RecipientID: uuid.New(), SenderID: uuid.New()})

	require.NotNil(t, n)
	assert.Nil(t, n.Sender)
	assert.Len(t, pub.users(), 1)
}

func TestNotifyIgnoresCallerCancellation(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NotNil(t, svc.Notify(ctx, Params{RecipientID: uuid.New(), SenderID: uuid.New()}))
}

func TestNotifyTaskAssigned(t *testing.T) {
	u1, u2 := uuid.New(), uuid.New()
	project := uuid.New()

	t.Run("assignee", func(t *testing.T) {
		store := newMemStore()
		svc, pub := newTestService(store)
		task := workspace.Task{ID: uuid.New(), Title: "Ship v1", ProjectID: project, CreatorID: u1, AssigneeID: ptr(u2)}

		created := svc.NotifyTaskAssigned(context.Background(), task, u1)

		require.Len(t, created, 1)
		n := created[0]
		assert.Equal(t, u2, n.RecipientID)
		assert.Equal(t, u1, n.SenderID)
		assert.Equal(t, TypeTaskAssigned, n.Type)
		assert.Equal(t, `You have been assigned to task: "Ship v1"`, n.Message)
		assert.Equal(t, project, *n.Data.ProjectID)
		assert.Equal(t, task.ID, *n.Data.TaskID)
		assert.Equal(t, []uuid.UUID{u2}, pub.users())
	})

	t.Run("no assignee", func(t *testing.T) {
		store := newMemStore()
		svc, pub := newTestService(store)

		assert.Empty(t, svc.NotifyTaskAssigned(context.Background(), workspace.Task{ID: uuid.New(), CreatorID: u1}, u1))
		assert.Empty(t, store.recipients())
		assert.Empty(t, pub.users())
	})

	t.Run("self assignment", func(t *testing.T) {
		store := newMemStore()
		svc, _ := newTestService(store)

		assert.Empty(t, svc.NotifyTaskAssigned(context.Background(), workspace.Task{ID: uuid.New(), AssigneeID: ptr(u1)}, u1))
		assert.Empty(t, store.recipients())
	})
}

func TestNotifyTaskUpdated(t *testing.T) {
	creator, assignee, updater := uuid.New(), uuid.New(), uuid.New()

	tests := []struct {
		name      string
		task      workspace.Task
		updatedBy uuid.UUID
		want      []uuid.UUID
	}{
		{
			name:      "creator is assignee",
			task:      workspace.Task{ID: uuid.New(), CreatorID: creator, AssigneeID: ptr(creator)},
			updatedBy: updater,
			want:      []uuid.UUID{creator},
		},
		{
			name:      "distinct creator and assignee",
			task:      workspace.Task{ID: uuid.New(), CreatorID: creator, AssigneeID: ptr(assignee)},
			updatedBy: updater,
			want:      []uuid.UUID{assignee, creator},
		},
		{
			name:      "assignee updates",
			task:      workspace.Task{ID: uuid.New(), CreatorID: creator, AssigneeID: ptr(assignee)},
			updatedBy: assignee,
			want:      []uuid.UUID{creator},
		},
		{
			name:      "creator updates unassigned task",
			task:      workspace.Task{ID: uuid.New(), CreatorID: creator},
			updatedBy: creator,
			want:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			svc, _ := newTestService(store)
			changes := map[string]interface{}{"status": "in-progress"}

			created := svc.NotifyTaskUpdated(context.Background(), tt.task, tt.updatedBy, changes)

			got := make([]uuid.UUID, 0, len(created))
			for _, n := range created {
				got = append(got, n.RecipientID)
				assert.Equal(t, changes, n.Data.Changes)
				assert.Equal(t, TypeTaskUpdated, n.Type)
			}
			assert.ElementsMatch(t, tt.want, got)
			assert.ElementsMatch(t, tt.want, store.recipients())
		})
	}
}

func TestNotifyTaskCompleted(t *testing.T) {
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()
	project := &workspace.Project{ID: uuid.New(), Members: []uuid.UUID{u1, u2, u3}}
	task := workspace.Task{ID: uuid.New(), Title: "Ship v1", ProjectID: project.ID, CreatorID: u1, Project: project}
	store := newMemStore()
	svc, pub := newTestService(store)

	created := svc.NotifyTaskCompleted(context.Background(), task, u2)

	require.Len(t, created, 2)
	assert.Equal(t, []uuid.UUID{u1, u3}, []uuid.UUID{created[0].RecipientID, created[1].RecipientID})
	assert.ElementsMatch(t, []uuid.UUID{u1, u3}, store.recipients())
	assert.ElementsMatch(t, []uuid.UUID{u1, u3}, pub.users())
}

func TestNotifyTaskCompletedPartialFailure(t *testing.T) {
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()
	project := &workspace.Project{ID: uuid.New(), Members: []uuid.UUID{u1, u2, u3}}
	task := workspace.Task{ID: uuid.New(), ProjectID: project.ID, CreatorID: u1, Project: project}
	store := newMemStore()
	store.failFor[u1] = true
	svc, pub := newTestService(store)

	created := svc.NotifyTaskCompleted(context.Background(), task, u2)

	require.Len(t, created, 1)
	assert.Equal(t, u3, created[0].RecipientID)
	assert.Equal(t, []uuid.UUID{u3}, pub.users())
}

func TestNotifyComment(t *testing.T) {
	creator, assignee := uuid.New(), uuid.New()
	task := workspace.Task{ID: uuid.New(), Title: "Ship v1", ProjectID: uuid.New(), CreatorID: creator, AssigneeID: ptr(assignee)}
	comment := workspace.Comment{ID: uuid.New(), TaskID: task.ID, AuthorID: assignee, Body: "done?"}
	store := newMemStore()
	svc, _ := newTestService(store)

	// The commenter is the assignee and is skipped by the self check.
	created := svc.NotifyComment(context.Background(), task, comment, assignee)

	require.Len(t, created, 1)
	assert.Equal(t, creator, created[0].RecipientID)
	assert.Equal(t, comment.ID, *created[0].Data.CommentID)
	assert.Equal(t, TypeTaskCommented, created[0].Type)
}

func TestNotifyProjectJoined(t *testing.T) {
	owner := uuid.New()
	project := workspace.Project{ID: uuid.New(), Name: "Apollo", OwnerID: owner}
	member := workspace.Member{ID: uuid.New(), Username: "bob"}
	store := newMemStore()
	svc, _ := newTestService(store)

	created := svc.NotifyProjectJoined(context.Background(), project, member)

	require.Len(t, created, 1)
	n := created[0]
	assert.Equal(t, owner, n.RecipientID)
	assert.Equal(t, member.ID, n.SenderID)
	assert.Equal(t, `bob joined your project: "Apollo"`, n.Message)
	assert.Nil(t, n.Data.TaskID)

	// The owner joining their own project notifies nobody.
	assert.Empty(t, svc.NotifyProjectJoined(context.Background(), project, workspace.Member{ID: owner}))
}

func TestDerivedOperationsNeverNotifySelf(t *testing.T) {
	u := uuid.New()
	project := &workspace.Project{ID: uuid.New(), OwnerID: u, Members: []uuid.UUID{u}}
	task := workspace.Task{ID: uuid.New(), ProjectID: project.ID, CreatorID: u, AssigneeID: ptr(u), Project: project}
	store := newMemStore()
	svc, pub := newTestService(store)
	ctx := context.Background()

	svc.NotifyTaskAssigned(ctx, task, u)
	svc.NotifyTaskUpdated(ctx, task, u, nil)
	svc.NotifyTaskCompleted(ctx, task, u)
	svc.NotifyComment(ctx, task, workspace.Comment{ID: uuid.New()}, u)
	svc.NotifyProjectJoined(ctx, *project, workspace.Member{ID: u})

	assert.Empty(t, store.recipients())
	assert.Empty(t, pub.users())
}

func TestRecipientSet(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	var r recipientSet
	r.add(a)
	r.add(uuid.Nil)
	r.add(b)
	r.add(a)
	assert.Equal(t, []uuid.UUID{a, b}, r.ids)

	r.remove(a)
	r.remove(uuid.New())
	assert.Equal(t, []uuid.UUID{b}, r.ids)
}
