package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Actor and ip capture are best-effort; do not block critical flows on audit failures.
type Event struct {
	ID string `json:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type"`

	// ActorUserID is the authenticated console user causing the event.
	ActorUserID string `json:"actor_user_id,omitempty"`
	ActorRole   string `json:"actor_role,omitempty"`

	// IPAddress should capture the original client IP when available.
	IPAddress string `json:"ip_address,omitempty"`

	// Target identifiers (optional, depending on the event type).
	CallID   string `json:"call_id,omitempty"`
	Filename string `json:"filename,omitempty"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty"`

	// Metadata is an optional JSON string for extra context.
	Metadata string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventTypeLogin          EventType = "login"
	EventTypeDocumentUpload EventType = "document_upload"
	EventTypeDocumentDelete EventType = "document_delete"
	EventTypeAdminAction    EventType = "admin_action"
)
