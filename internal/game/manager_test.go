package game

import (
	"strings"
	"testing"
	"time"
)

func TestRoomCodeAlphabet(t *testing.T) {
	if strings.ContainsAny(roomCodeAlphabet, "IO01") {
		t.Fatalf("alphabet contains ambiguous characters: %q", roomCodeAlphabet)
	}
	if len(roomCodeAlphabet) != 32 {
		t.Fatalf("alphabet length = %d, want 32", len(roomCodeAlphabet))
	}
}

func TestCreateRoomCodes(t *testing.T) {
	m := NewManager(Deps{Store: newFakeStore()}, 0, 0)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		room := m.CreateRoom(DefaultSettings())
		code := room.Code()

		if len(code) != roomCodeLength {
			t.Fatalf("code %q has length %d, want %d", code, len(code), roomCodeLength)
		}
		for _, c := range code {
			if !strings.ContainsRune(roomCodeAlphabet, c) {
				t.Fatalf("code %q contains %q outside the alphabet", code, c)
			}
		}
		if seen[code] {
			t.Fatalf("duplicate live room code %q", code)
		}
		seen[code] = true

		if m.Get(code) != room {
			t.Fatalf("lookup of %q returned a different room", code)
		}
	}
	if m.Count() != 50 {
		t.Fatalf("room count = %d, want 50", m.Count())
	}
}

func TestCloseNotifiesStore(t *testing.T) {
	done := make(chan string, 1)
	room := newRoom("ZZZZ", DefaultSettings(), Deps{Store: newFakeStore()}, func(code string) {
		done <- code
	})

	room.Close()

	select {
	case code := <-done:
		if code != "ZZZZ" {
			t.Fatalf("onClose called with %q, want ZZZZ", code)
		}
	case <-time.After(time.Second):
		t.Fatal("onClose not called")
	}

	// Closing twice must not notify twice.
	room.Close()
	select {
	case <-done:
		t.Fatal("onClose called again on second Close")
	default:
	}
}

func TestLastPlayerLeavingClosesRoom(t *testing.T) {
	rg := newRig(t, DefaultSettings(), "Anna")

	rg.send(0, ClientMessage{Type: EventTypeLeaveRoom})

	if !rg.room.closed {
		t.Fatal("room should close when the last player leaves")
	}
}

func TestPlayerIDShape(t *testing.T) {
	for i := 0; i < 20; i++ {
		id := newPlayerID()
		if !strings.HasPrefix(id, "p_") {
			t.Fatalf("player id %q missing p_ prefix", id)
		}
		if len(id) != 11 {
			t.Fatalf("player id %q has length %d, want 11", id, len(id))
		}
		for _, c := range id[2:] {
			if !strings.ContainsRune(playerIDAlphabet, c) {
				t.Fatalf("player id %q contains %q outside the alphabet", id, c)
			}
		}
	}
}
