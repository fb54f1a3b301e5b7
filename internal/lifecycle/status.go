// Package lifecycle owns the session state machine: which status
// transitions are legal and what side effects each one carries.
package lifecycle

import "pdfchat/internal/model"

// CanTransition reports whether target is reachable from current.
// It is total over all ordered status pairs; same-state "transitions"
// are always rejected and DELETED is terminal.
func CanTransition(current, target model.SessionStatus) bool {
	switch current {
	case model.SessionActive:
		return target == model.SessionArchived || target == model.SessionDeleted
	case model.SessionArchived:
		return target == model.SessionActive || target == model.SessionDeleted
	default:
		return false
	}
}
