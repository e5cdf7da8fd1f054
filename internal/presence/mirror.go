package presence

import (
	"context"
	"encoding/json"
	"time"

	"taskhub/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	mirrorKey        = "presence:online"
	mirrorBufferSize = 1024
	mirrorTimeout    = 2 * time.Second
)

// Mirror receives a copy of every registry change. Implementations must not
// block the caller.
type Mirror interface {
	Online(e Entry)
	Offline(userID uuid.UUID)
}

type NopMirror struct{}

func (NopMirror) Online(Entry)       {}
func (NopMirror) Offline(uuid.UUID) {}

type mirrorUpdate struct {
	online bool
	entry  Entry
}

// RedisMirror copies presence into a Redis hash so tooling outside the process
// can see who is online. Updates are applied in order by a single writer.
// The hash is a read-only copy; nothing reads presence back from it.
type RedisMirror struct {
	rdb     *redis.Client
	updates chan mirrorUpdate
	logger  logger.ILogger
}

func NewRedisMirror(rdb *redis.Client, log logger.ILogger) *RedisMirror {
	return &RedisMirror{
		rdb:     rdb,
		updates: make(chan mirrorUpdate, mirrorBufferSize),
		logger:  log,
	}
}

func (m *RedisMirror) Online(e Entry) {
	m.enqueue(mirrorUpdate{online: true, entry: e})
}

func (m *RedisMirror) Offline(userID uuid.UUID) {
	m.enqueue(mirrorUpdate{entry: Entry{UserID: userID}})
}

func (m *RedisMirror) enqueue(u mirrorUpdate) {
	select {
	case m.updates <- u:
	default:
		m.logger.Warn("PresenceMirror", "Update buffer full, dropping presence update", map[string]interface{}{"user_id": u.entry.UserID})
	}
}

// Run applies updates until ctx is cancelled. The hash is cleared on start and
// on exit, since presence does not outlive the process.
func (m *RedisMirror) Run(ctx context.Context) {
	m.clear()
	defer m.clear()

	for {
		select {
		case <-ctx.Done():
			return
		case u := <-m.updates:
			if err := m.apply(ctx, u); err != nil {
				m.logger.Error("PresenceMirror", "Redis write failed", map[string]interface{}{"error": err, "user_id": u.entry.UserID})
			}
		}
	}
}

func (m *RedisMirror) apply(ctx context.Context, u mirrorUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()

	field := u.entry.UserID.String()
	if !u.online {
		return m.rdb.HDel(ctx, mirrorKey, field).Err()
	}
	payload, err := json.Marshal(u.entry)
	if err != nil {
		return err
	}
	return m.rdb.HSet(ctx, mirrorKey, field, payload).Err()
}

func (m *RedisMirror) clear() {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := m.rdb.Del(ctx, mirrorKey).Err(); err != nil {
		m.logger.Warn("PresenceMirror", "Could not clear presence hash", map[string]interface{}{"error": err.Error()})
	}
}
