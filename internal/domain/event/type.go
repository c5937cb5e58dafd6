package event

// Type identifies the type of domain event
type Type string

const (
	TypeInstanceSubmitted Type = "instance.submitted"
	TypeStageDecided      Type = "stage.decided"
	TypeInstanceApproved  Type = "instance.approved"
	TypeInstanceRejected  Type = "instance.rejected"
	TypeCheckAttached     Type = "check.attached"
)

// AllTypes lists every event type the engine emits
func AllTypes() []Type {
	return []Type{
		TypeInstanceSubmitted,
		TypeStageDecided,
		TypeInstanceApproved,
		TypeInstanceRejected,
		TypeCheckAttached,
	}
}

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeInstanceSubmitted,
		TypeStageDecided,
		TypeInstanceApproved,
		TypeInstanceRejected,
		TypeCheckAttached:
		return true
	default:
		return false
	}
}
