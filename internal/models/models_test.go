package models

import (
	"encoding/json"
	"testing"
)

func TestStatusTransitions(t *testing.T) {
	all := []Status{StatusPending, StatusPreprocessing, StatusRecognizing, StatusUploading, StatusSuccess, StatusError}
	for _, from := range all {
		for _, to := range all {
			got := from.CanTransition(to)
			var want bool
			switch {
			case from.Terminal():
				want = false
			case to == StatusError:
				want = true
			default:
				want = to >= from && to != StatusError
			}
			if got != want {
				t.Errorf("%s -> %s: CanTransition = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestStatusStringExhaustive(t *testing.T) {
	for s := StatusPending; s <= StatusError; s++ {
		switch s {
		case StatusPending, StatusPreprocessing, StatusRecognizing, StatusUploading:
			if s.Terminal() {
				t.Errorf("%s must not be terminal", s)
			}
		case StatusSuccess, StatusError:
			if !s.Terminal() {
				t.Errorf("%s must be terminal", s)
			}
		default:
			t.Fatalf("unhandled status %d", s)
		}
		if s.String() == "" {
			t.Errorf("empty name for %d", s)
		}
	}
}

func TestStatusJSON(t *testing.T) {
	b, err := json.Marshal(QueueItem{Status: StatusRecognizing})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out struct {
		Status Status `json:"status"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Status != StatusRecognizing {
		t.Fatalf("round trip status = %s", out.Status)
	}
	if err := out.Status.UnmarshalText([]byte("bogus")); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
