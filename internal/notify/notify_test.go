package notify

import (
	"context"
	"encoding/json"
	"testing"

	"git.home.luguber.info/inful/buildmon/internal/config"
)

func TestSubjectPerEvent(t *testing.T) {
	cases := map[Event]string{
		EventStarted:    "buildmon.sessions.started",
		EventCompleted:  "buildmon.sessions.completed",
		EventFailed:     "buildmon.sessions.failed",
		EventTerminated: "buildmon.sessions.terminated",
	}
	for event, want := range cases {
		if got := subjectFor(defaultSubjectPrefix, event); got != want {
			t.Errorf("subjectFor(%q) = %q, want %q", event, got, want)
		}
	}
}

func TestSubjectPrefixDefault(t *testing.T) {
	if got := subjectPrefix(""); got != defaultSubjectPrefix {
		t.Errorf("empty prefix = %q, want %q", got, defaultSubjectPrefix)
	}
	if got := subjectPrefix("ci.builds"); got != "ci.builds" {
		t.Errorf("custom prefix = %q, want ci.builds", got)
	}
}

func TestMessageShape(t *testing.T) {
	code := 0
	msg := Message{
		SessionID:  "a1b2c3d4",
		Event:      EventCompleted,
		Targets:    []string{"webserver"},
		ReturnCode: &code,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["session_id"] != "a1b2c3d4" {
		t.Errorf("session_id = %v", decoded["session_id"])
	}
	if decoded["event"] != "completed" {
		t.Errorf("event = %v", decoded["event"])
	}
	if decoded["return_code"] != float64(0) {
		t.Errorf("return_code = %v, want 0", decoded["return_code"])
	}
}

func TestConnectDisabled(t *testing.T) {
	pub := Connect(context.Background(), &config.NotifyConfig{Enabled: false})
	if _, ok := pub.(NoopPublisher); !ok {
		t.Fatalf("disabled config returned %T, want NoopPublisher", pub)
	}
	pub = Connect(context.Background(), nil)
	if _, ok := pub.(NoopPublisher); !ok {
		t.Fatalf("nil config returned %T, want NoopPublisher", pub)
	}
}

func TestConnectFailureFallsBackToNoop(t *testing.T) {
	// Port 1 is never a NATS broker; the dial must fail fast and the
	// session must get a silent publisher instead of an error.
	pub := Connect(context.Background(), &config.NotifyConfig{
		Enabled:        true,
		URL:            "nats://127.0.0.1:1",
		ConnectTimeout: "200ms",
	})
	if _, ok := pub.(NoopPublisher); !ok {
		t.Fatalf("unreachable broker returned %T, want NoopPublisher", pub)
	}
	pub.Publish(context.Background(), Message{SessionID: "deadbeef", Event: EventStarted})
	pub.Close()
}
