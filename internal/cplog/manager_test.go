package cplog

import (
	"testing"
	"time"
)

func TestLogBuffersAndGetRecentReturnsNewestFirst(t *testing.T) {
	m := NewManager(nil)
	m.Log(LevelInfo, "provisioner", "first", "proj-1", nil)
	time.Sleep(time.Millisecond)
	m.Log(LevelInfo, "provisioner", "second", "proj-1", nil)

	recent := m.GetRecent(10, "", "", "", time.Time{}, time.Time{})
	if len(recent) != 2 {
		t.Fatalf("recent = %d entries, want 2", len(recent))
	}
	if recent[0].Message != "second" {
		t.Fatalf("recent[0] = %q, want newest first", recent[0].Message)
	}
}

func TestGetRecentFiltersByProjectID(t *testing.T) {
	m := NewManager(nil)
	m.Log(LevelInfo, "relay", "for proj1", "proj-1", nil)
	m.Log(LevelInfo, "relay", "for proj2", "proj-2", nil)

	recent := m.GetRecent(10, "", "", "proj-2", time.Time{}, time.Time{})
	if len(recent) != 1 || recent[0].ProjectID != "proj-2" {
		t.Fatalf("recent = %+v", recent)
	}
}

func TestAddHandlerReceivesNewEntries(t *testing.T) {
	m := NewManager(nil)
	ch := make(chan Entry, 1)
	m.AddHandler(func(e Entry) { ch <- e })

	m.Log(LevelWarn, "statemachine", "conflicting state", "proj-3", nil)

	select {
	case e := <-ch:
		if e.Message != "conflicting state" {
			t.Fatalf("handler got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}
