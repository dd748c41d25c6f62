package websocket

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/edgeviewer/edgeviewer/pkg/logger"
)

const timeout = 2 * time.Second

func server(t *testing.T, conns chan *Connection) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := DefaultUpgrader.Upgrade(w, r, Options{}, logger.Nop())
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *Connection {
	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	c, err := NewClient(*u, Options{}, logger.Nop())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return c
}

func TestEcho(t *testing.T) {
	conns := make(chan *Connection, 1)
	srv := server(t, conns)
	client := dial(t, srv)

	got := make(chan string, 1)
	client.OnMessage = func(m []byte, _ error) { got <- string(m) }
	client.Listen()
	defer client.Close()

	var peer *Connection
	select {
	case peer = <-conns:
	case <-time.After(timeout):
		t.Fatal("no server connection")
	}
	peer.OnMessage = func(m []byte, _ error) { _ = peer.Send([]byte(strings.ToUpper(string(m)))) }
	peer.Listen()

	if err := client.Send([]byte("hello")); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case m := <-got:
		if m != "HELLO" {
			t.Errorf("expected HELLO, got %v", m)
		}
	case <-time.After(timeout):
		t.Fatal("no echo")
	}

	client.Close()
	select {
	case <-peer.Done():
	case <-time.After(timeout):
		t.Fatal("server side wasn't closed")
	}
	peer.Wait()
	if err := peer.Send([]byte("late")); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestTrySendBusy(t *testing.T) {
	conns := make(chan *Connection, 1)
	srv := server(t, conns)
	client := dial(t, srv)
	defer client.Close()

	// pumps are not started, the queue fills up
	for i := 0; i < sendQueue; i++ {
		if err := client.TrySend([]byte("x")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := client.TrySend([]byte("x")); err != ErrBusy {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	client.Close()
	if err := client.TrySend([]byte("x")); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
