package resultclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

func TestSubscribe_ReceivesSingleVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		defer conn.Close()
		payload := `{"is_ai":true,"confidence":0.92,"severity":"HIGH","reasons":["synthetic texture"]}`
		_ = conn.WriteMessage(websocket.TextMessage, []byte(payload))
	}))
	defer srv.Close()

	c := New(srv.URL)

	sub, err := c.Subscribe(context.Background(), "post_1")
	if err != nil {
		t.Fatalf("Subscribe: unexpected error: %v", err)
	}
	defer sub.Close()

	select {
	case v := <-sub.Results():
		if v.Label != "Likely AI" {
			t.Errorf("label = %q, want Likely AI", v.Label)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for verdict")
	}
}

func TestSubscribe_CloseWithoutMessageYieldsNoVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		conn.Close() // close immediately, no message
	}))
	defer srv.Close()

	c := New(srv.URL)
	sub, err := c.Subscribe(context.Background(), "post_2")
	if err != nil {
		t.Fatalf("Subscribe: unexpected error: %v", err)
	}
	defer sub.Close()

	select {
	case v, ok := <-sub.Results():
		if ok {
			t.Fatalf("expected channel to close without a verdict, got %+v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}
