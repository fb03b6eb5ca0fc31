package event

// Type identifies the type of audit event
type Type string

const (
	TypeInstanceCreated    Type = "instance.created"
	TypeStageEntered       Type = "stage.entered"
	TypeStageExited        Type = "stage.exited"
	TypeCheckpointOpened   Type = "checkpoint.opened"
	TypeCheckpointResolved Type = "checkpoint.resolved"
	TypeInstanceCompleted  Type = "instance.completed"
	TypeInstanceFailed     Type = "instance.failed"
	TypeInstanceCancelled  Type = "instance.cancelled"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeInstanceCreated,
		TypeStageEntered,
		TypeStageExited,
		TypeCheckpointOpened,
		TypeCheckpointResolved,
		TypeInstanceCompleted,
		TypeInstanceFailed,
		TypeInstanceCancelled:
		return true
	default:
		return false
	}
}
