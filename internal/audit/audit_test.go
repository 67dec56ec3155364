package audit

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Schera-ole/hostagent/internal/config"
	models "github.com/Schera-ole/hostagent/internal/model"
)

func testEvent() models.AuditEvent {
	return models.AuditEvent{
		TS:        time.Now().Format(time.RFC3339),
		Hostname:  "web-1",
		IPAddress: "127.0.0.1",
	}
}

func TestBroadcaster(t *testing.T) {
	source := make(chan models.AuditEvent)
	sub1 := make(chan models.AuditEvent, 1)
	sub2 := make(chan models.AuditEvent, 1)

	go Broadcaster(source, zap.NewNop().Sugar(), sub1, sub2)

	event := testEvent()
	source <- event
	close(source)

	assert.Equal(t, event, <-sub1)
	assert.Equal(t, event, <-sub2)

	// subscribers are closed once the source is drained
	_, ok := <-sub1
	assert.False(t, ok)
}

func TestBroadcasterDropsForBlockedSubscriber(t *testing.T) {
	source := make(chan models.AuditEvent)
	blocked := make(chan models.AuditEvent)
	ready := make(chan models.AuditEvent, 2)

	done := make(chan struct{})
	go func() {
		Broadcaster(source, zap.NewNop().Sugar(), blocked, ready)
		close(done)
	}()

	source <- testEvent()
	source <- testEvent()
	close(source)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcaster blocked on a subscriber")
	}
	assert.Len(t, ready, 2)
}

func TestAuditLoggerNeverBlocks(t *testing.T) {
	ch := make(chan models.AuditEvent, 1)
	logger := NewAuditLogger(ch, zap.NewNop().Sugar())

	logger.Log("web-1", "10.0.0.1")
	logger.Log("web-2", "10.0.0.2")

	require.Len(t, ch, 1)
	evt := <-ch
	assert.Equal(t, "web-1", evt.Hostname)
	assert.Equal(t, "10.0.0.1", evt.IPAddress)
}

func TestFileSubscriber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	events := make(chan models.AuditEvent)
	done := make(chan struct{})
	go func() {
		FileSubscriber(events, path, zap.NewNop().Sugar())
		close(done)
	}()

	event := testEvent()
	events <- event
	events <- event
	close(events)
	<-done

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 2)

	var written models.AuditEvent
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &written))
	assert.Equal(t, event, written)
}

func TestFileSubscriberUnwritablePath(t *testing.T) {
	events := make(chan models.AuditEvent, 1)
	events <- testEvent()
	close(events)

	// a missing parent directory is logged, not fatal
	FileSubscriber(events, filepath.Join(t.TempDir(), "missing", "audit.log"), zap.NewNop().Sugar())
}

func TestURLSubscriber(t *testing.T) {
	var mu sync.Mutex
	var received []models.AuditEvent

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		if assert.NoError(t, err) {
			var evt models.AuditEvent
			if assert.NoError(t, json.Unmarshal(body, &evt)) {
				mu.Lock()
				received = append(received, evt)
				mu.Unlock()
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	events := make(chan models.AuditEvent)
	done := make(chan struct{})
	go func() {
		URLSubscriber(events, server.URL, server.Client(), zap.NewNop().Sugar())
		close(done)
	}()

	event := testEvent()
	events <- event
	close(events)
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, event, received[0])
}

func TestURLSubscriberServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := post(server.Client(), server.URL, []byte(`{}`))
	assert.ErrorContains(t, err, "500")
}

func TestSetup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	logger, stop := Setup(config.ServerConfig{AuditFile: path}, zap.NewNop().Sugar())

	logger.Log("web-1", "192.0.2.1")
	stop()
	stop()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"hostname":"web-1"`)
	assert.Contains(t, string(content), `"ip_address":"192.0.2.1"`)
}

func TestSetupWithoutDestinations(t *testing.T) {
	logger, stop := Setup(config.ServerConfig{}, zap.NewNop().Sugar())
	logger.Log("web-1", "192.0.2.1")
	stop()
	assert.IsType(t, nopLogger{}, logger)
}
