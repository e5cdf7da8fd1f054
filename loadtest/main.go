package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	baseURL     = flag.String("base", "http://localhost:5000", "API base URL")
	wsURL       = flag.String("ws", "ws://localhost:5000/ws", "WebSocket URL")
	projects    = flag.Int("projects", 50, "number of project rooms")
	perProject  = flag.Int("users", 10, "users per project")
	activityCnt = flag.Int("activity", 20, "userActivity events per user")
)

type loginResponse struct {
	Token string `json:"access_token"`
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type counters struct {
	connected     atomic.Int64
	failed        atomic.Int64
	snapshots     atomic.Int64
	activities    atomic.Int64
	notifications atomic.Int64
}

func main() {
	flag.Parse()
	log.Printf("🔥 STARTING LOAD TEST: %d projects x %d users, %d activity events each", *projects, *perProject, *activityCnt)

	var c counters
	var wg sync.WaitGroup
	start := time.Now()

	for p := 0; p < *projects; p++ {
		projectID := uuid.New()
		for u := 0; u < *perProject; u++ {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				runUser(name, projectID, &c)
			}(fmt.Sprintf("lt_%d_%d", p, u))
		}
	}

	wg.Wait()
	log.Printf("✅ LOAD TEST COMPLETE in %s: connected=%d failed=%d onlineMembers=%d userActivity=%d testNotificationResponse=%d",
		time.Since(start).Round(time.Millisecond), c.connected.Load(), c.failed.Load(),
		c.snapshots.Load(), c.activities.Load(), c.notifications.Load())
}

func runUser(username string, projectID uuid.UUID, c *counters) {
	token := authenticate(username, "password123")
	if token == "" {
		c.failed.Add(1)
		return
	}

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", *wsURL, token), nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", username, err)
		c.failed.Add(1)
		return
	}
	defer conn.Close()
	c.connected.Add(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			switch env.Event {
			case "onlineMembers":
				c.snapshots.Add(1)
			case "userActivity":
				c.activities.Add(1)
			case "testNotificationResponse":
				c.notifications.Add(1)
			}
		}
	}()

	send := func(event string, data interface{}) error {
		return conn.WriteJSON(map[string]interface{}{"event": event, "data": data})
	}

	if err := send("joinProject", projectID.String()); err != nil {
		log.Printf("❌ Join Fail [%s]: %v", username, err)
		return
	}
	for i := 0; i < *activityCnt; i++ {
		activity := map[string]interface{}{"type": "typing", "seq": i}
		if err := send("userActivity", map[string]interface{}{"projectId": projectID, "activity": activity}); err != nil {
			log.Printf("❌ Send Fail [%s]: %v", username, err)
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	send("testNotification", map[string]string{"from": username})
	send("leaveProject", projectID.String())

	// Let the tail of the fan-out arrive before closing.
	time.Sleep(500 * time.Millisecond)
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

// authenticate registers (ignoring a conflict) and logs in.
func authenticate(username, password string) string {
	if resp, err := postJSON("/api/auth/register", map[string]string{
		"username": username,
		"email":    username + "@loadtest.local",
		"password": password,
	}); err == nil {
		resp.Body.Close()
	}

	resp, err := postJSON("/api/auth/login", map[string]string{"username": username, "password": password})
	if err != nil {
		log.Printf("❌ Login Failed [%s]: %v", username, err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ Login Failed [%s]: status %d", username, resp.StatusCode)
		return ""
	}

	var data loginResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.Token
}

func postJSON(endpoint string, data interface{}) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(*baseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
