package models

// EventType labels a realtime sync event
type EventType string

const (
	EventRoutineCreated  EventType = "routine.created"
	EventRoutineUpdated  EventType = "routine.updated"
	EventSessionCreated  EventType = "session.created"
	EventSessionUpdated  EventType = "session.updated"
	EventProposalCreated EventType = "proposal.created"
	EventProposalUpdated EventType = "proposal.updated"
	EventInviteCreated   EventType = "invite.created"
	EventInviteUpdated   EventType = "invite.updated"
)

// Event is the envelope fanned out to the teacher and affected students after
// a mutation. Delivery is best-effort, at most once; clients reconcile missed
// events by re-fetching. Version is monotonic per entity id only — no ordering
// holds across different entities.
type Event struct {
	Type     EventType   `json:"type"`
	EntityID uint        `json:"entity_id"`
	Payload  interface{} `json:"payload"`
	Version  int64       `json:"version"`
}
