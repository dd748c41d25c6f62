package httpx

import (
	"net"
	"strings"
	"testing"
)

func TestListenerCreation(t *testing.T) {
	tests := []struct {
		addr   string
		port   string
		random bool
		error  bool
	}{
		{addr: ":", random: true},
		{addr: ":0", random: true},
		{addr: "", random: true},
		{addr: "https://garbage.com:99a9a", error: true},
		{addr: "localhost:abc1", error: true},
	}

	for _, test := range tests {
		ls, err := NewListener(test.addr, false)

		if test.error {
			if err == nil {
				t.Errorf("expected error, but got none")
			}
			continue
		}

		if !test.error && err != nil {
			t.Errorf("unexpected error %v", err)
			continue
		}

		addr := ls.Addr().(*net.TCPAddr)
		port := ls.GetPort()
		_ = ls.Close()

		hasPort := port > 0
		isPortSame := strings.HasSuffix(addr.String(), ":"+test.port)

		if test.random {
			if !hasPort {
				t.Errorf("expected a random port, got %v", port)
			}
			continue
		}

		if !isPortSame {
			t.Errorf("expected the same port %v != %v", test.port, port)
		}
	}
}

func TestListenerPortRoll(t *testing.T) {
	busy, err := NewListener("127.0.0.1:0", false)
	if err != nil {
		t.Fatalf("no listener: %v", err)
	}
	defer func() { _ = busy.Close() }()
	addr := busy.Addr().String()

	if _, err = NewListener(addr, false); err == nil {
		t.Fatalf("expected busy port error")
	}
	next, err := NewListener(addr, true)
	if err != nil {
		t.Fatalf("no rolled listener: %v", err)
	}
	defer func() { _ = next.Close() }()
	if next.GetPort() == busy.GetPort() {
		t.Errorf("expected a different port")
	}
}
