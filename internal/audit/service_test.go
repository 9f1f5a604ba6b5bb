package audit

import (
	"context"
	"testing"
	"time"
)

func TestAppend_FillsIDAndTimestamp(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)
	svc.clock = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }

	err := svc.Append(context.Background(), Event{
		Type:        EventTypeDocumentUpload,
		ActorUserID: "admin",
		Filename:    "faq.md",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	events := repo.Events()
	if len(events) != 1 {
		t.Fatalf("events = %d", len(events))
	}
	e := events[0]
	if e.ID == "" {
		t.Fatalf("id not assigned")
	}
	if !e.CreatedAt.Equal(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("created_at = %v", e.CreatedAt)
	}
}

func TestAppend_RejectsMissingType(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)
	if err := svc.Append(context.Background(), Event{ActorUserID: "admin"}); err != ErrInvalidEvent {
		t.Fatalf("err = %v, want ErrInvalidEvent", err)
	}
}

func TestRecord_NilServiceIsNoop(t *testing.T) {
	var svc *Service
	svc.Record(context.Background(), Event{Type: EventTypeLogin})
}
