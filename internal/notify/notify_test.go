package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"altivio-backend/internal/models"
	"altivio-backend/internal/store"
	"altivio-backend/internal/store/memory"
)

func queryIdentity(r *http.Request) (string, error) {
	if u := r.URL.Query().Get("user"); u != "" {
		return u, nil
	}
	return "", errors.New("no identity")
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestNotifierPushesToLiveConnection(t *testing.T) {
	hub := NewHub(queryIdentity, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	conn := dial(t, srv, "user=u1")
	require.Eventually(t, func() bool { return hub.Connections("u1") == 1 }, time.Second, 10*time.Millisecond)

	st := memory.New()
	n := NewNotifier(st, hub, nil)

	doc, err := n.Notify(context.Background(), Message{
		UserID:    "u1",
		Type:      models.NotificationDeadlineSoon,
		Title:     "Deadline approaching",
		Message:   `"Ship it" is due soon`,
		ActionURL: "/tasks/t1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var got struct {
		Event string `json:"event"`
		Data  struct {
			ID        string `json:"id"`
			Type      string `json:"type"`
			Title     string `json:"title"`
			ActionURL string `json:"actionUrl"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, EventNotificationNew, got.Event)
	assert.Equal(t, doc.ID, got.Data.ID)
	assert.Equal(t, "deadline_soon", got.Data.Type)
	assert.Equal(t, "/tasks/t1", got.Data.ActionURL)

	stored, err := st.ListNotifications(context.Background(), store.NotificationFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "normal", stored[0].Priority)
}

func TestServeWSRejectsAnonymous(t *testing.T) {
	hub := NewHub(queryIdentity, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEmitDropsSlowClient(t *testing.T) {
	hub := NewHub(queryIdentity, nil, nil)
	c := &client{userID: "u1", send: make(chan []byte)}
	hub.join(c)
	require.Equal(t, 1, hub.Connections("u1"))

	hub.Emit("u1", Event{Event: "ping"})

	assert.Equal(t, 0, hub.Connections("u1"))
	_, open := <-c.send
	assert.False(t, open)
}

func TestCheckOrigin(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://app.example.com")

	assert.True(t, checkOrigin(r, nil))
	assert.True(t, checkOrigin(r, []string{"*"}))
	assert.True(t, checkOrigin(r, []string{"https://app.example.com"}))
	assert.False(t, checkOrigin(r, []string{"https://other.example.com"}))
}

type recorder struct {
	mu     sync.Mutex
	events map[string][]Event
}

func (r *recorder) Emit(userID string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = map[string][]Event{}
	}
	r.events[userID] = append(r.events[userID], ev)
}

type brokenStore struct{}

func (brokenStore) CreateNotification(context.Context, *models.Notification) error {
	return errors.New("disk full")
}

func TestNotifyDoesNotPushWhenPersistFails(t *testing.T) {
	rec := &recorder{}
	n := NewNotifier(brokenStore{}, rec, nil)

	_, err := n.Notify(context.Background(), Message{UserID: "u1", Title: "x", Message: "y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, rec.events)
}

func TestNotifyDefaultsToGeneric(t *testing.T) {
	rec := &recorder{}
	n := NewNotifier(memory.New(), rec, nil)

	doc, err := n.Notify(context.Background(), Message{UserID: "u1", Title: "Hi", Message: "there"})
	require.NoError(t, err)
	assert.Equal(t, models.NotificationGeneric, doc.Type)
	require.Len(t, rec.events["u1"], 1)
	assert.Equal(t, EventNotificationNew, rec.events["u1"][0].Event)
}
