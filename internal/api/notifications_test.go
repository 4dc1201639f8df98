package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nwehbe/waterops/internal/storage"
)

func TestNotificationStreamReplaysAndFilters(t *testing.T) {
	st := storage.NewMemory()
	srv := newTestServer(st, &fakeHardware{})
	mux := srv.NewMux()

	// Published before the client connects: replayed from the hub buffer,
	// filtered to the stream's user.
	srv.notify.Notify(context.Background(), "backlog for rima", "u1")
	srv.notify.Notify(context.Background(), "backlog for other", "u2")

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/stream?user_id=u1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		mux.ServeHTTP(rec, req)
		close(done)
	}()

	// Let the handler subscribe, then push live events for both users.
	time.Sleep(50 * time.Millisecond)
	srv.notify.Notify(context.Background(), "live for rima", "u1")
	srv.notify.Notify(context.Background(), "live for other", "u2")
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q, want text/event-stream", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"event: new_notification", "backlog for rima", "live for rima"} {
		if !strings.Contains(body, want) {
			t.Errorf("stream missing %q:\n%s", want, body)
		}
	}
	for _, leak := range []string{"backlog for other", "live for other"} {
		if strings.Contains(body, leak) {
			t.Errorf("stream leaked another user's event %q", leak)
		}
	}
}

func TestNotificationStreamRequiresUser(t *testing.T) {
	mux := newTestServer(storage.NewMemory(), &fakeHardware{}).NewMux()
	rec := doJSON(t, mux, http.MethodGet, "/api/v1/notifications/stream", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
