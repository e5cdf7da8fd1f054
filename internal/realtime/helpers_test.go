package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"taskhub/internal/identity"
	"taskhub/internal/pkg/logger"
	"taskhub/internal/presence"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const recvTimeout = 2 * time.Second

func newTestHub(debounce time.Duration) *Hub {
	return NewHub(presence.NewRegistry(), nil, debounce, logger.NewNop())
}

// newIdleHub is for driving handlers directly, without the run loop.
func newIdleHub(t *testing.T) *Hub {
	t.Helper()
	h := newTestHub(time.Hour)
	t.Cleanup(h.shutdown)
	return h
}

func runHub(t *testing.T, h *Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
}

func testSession(name string) *Session {
	return newSession(nil, identity.Identity{ID: uuid.New(), Username: name})
}

func envelope(t *testing.T, event string, data interface{}) Envelope {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return Envelope{Event: event, Data: raw}
}

func recv(t *testing.T, s *Session) Envelope {
	t.Helper()
	select {
	case msg, ok := <-s.send:
		require.True(t, ok, "session %s was closed", s.Identity.Username)
		var env Envelope
		require.NoError(t, json.Unmarshal(msg, &env))
		return env
	case <-time.After(recvTimeout):
		t.Fatalf("%s received nothing", s.Identity.Username)
		return Envelope{}
	}
}

func recvEvent(t *testing.T, s *Session, event string) Envelope {
	t.Helper()
	env := recv(t, s)
	require.Equal(t, event, env.Event)
	return env
}

func expectNone(t *testing.T, s *Session, wait time.Duration) {
	t.Helper()
	select {
	case msg, ok := <-s.send:
		if ok {
			t.Fatalf("%s received unexpected %s", s.Identity.Username, msg)
		}
	case <-time.After(wait):
	}
}

func expectClosed(t *testing.T, s *Session) {
	t.Helper()
	deadline := time.After(recvTimeout)
	for {
		select {
		case _, ok := <-s.send:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("%s was not closed", s.Identity.Username)
		}
	}
}

func decodeMembers(t *testing.T, env Envelope) []MemberView {
	t.Helper()
	var members []MemberView
	require.NoError(t, json.Unmarshal(env.Data, &members))
	return members
}

func sessionIDs(members []MemberView) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.SocketID)
	}
	return ids
}

// connect registers s on a running hub and consumes its ack.
func connect(t *testing.T, h *Hub, s *Session) {
	t.Helper()
	require.NoError(t, h.Register(context.Background(), s))
	recvEvent(t, s, EventConnected)
}

// join sends joinProject and waits until every session in expect has seen
// the resulting snapshot.
func join(t *testing.T, h *Hub, s *Session, projectID uuid.UUID, expect ...*Session) {
	t.Helper()
	h.Dispatch(s, envelope(t, EventJoinProject, projectID.String()))
	for _, e := range expect {
		recvEvent(t, e, EventOnlineMembers)
	}
}
