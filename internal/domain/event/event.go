package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
)

// Event is one entry of the append-only audit trail. The combination of
// instance id, stage, type and timestamp makes replayed entries
// detectable, so audit appends can be retried idempotently.
type Event struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"type"`
	InstanceID string                 `json:"instance_id"`
	Stage      workflow.Stage         `json:"stage,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// NewEvent creates a new audit event with auto-generated ID and timestamp
func NewEvent(eventType Type, instanceID string, stage workflow.Stage, data map[string]interface{}) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		InstanceID: instanceID,
		Stage:      stage,
		Data:       data,
		Timestamp:  time.Now().UTC(),
	}
}

// GetDataString retrieves a string value from the event data
func (e *Event) GetDataString(key string) string {
	if val, ok := e.Data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetDataFloat retrieves a float64 value from the event data
func (e *Event) GetDataFloat(key string) float64 {
	if val, ok := e.Data[key]; ok {
		switch v := val.(type) {
		case float64:
			return v
		case int64:
			return float64(v)
		case int:
			return float64(v)
		}
	}
	return 0.0
}
