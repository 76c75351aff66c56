package domain

import "time"

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
}

// CanTransition reports whether from → to is in the transition table.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AuthorizeTransition checks whether actor may drive appt to the requested
// status. actor is nil for system-driven transitions (completion sweep).
// professionalUserID is the user id behind the appointment's professional.
func AuthorizeTransition(appt *Appointment, to Status, actor *Actor, professionalUserID string) error {
	switch to {
	case StatusConfirmed:
		// Only the professional confirms.
		if actor == nil || actor.UserID != professionalUserID {
			return ErrForbidden
		}
	case StatusCancelled:
		if actor == nil {
			return ErrForbidden
		}
		if actor.Role == RoleAdmin {
			return nil
		}
		if actor.UserID != appt.UserID && actor.UserID != professionalUserID {
			return ErrForbidden
		}
	case StatusCompleted:
		// System-driven only.
		if actor != nil {
			return ErrForbidden
		}
	default:
		return &TransitionError{From: appt.Status, To: to}
	}
	return nil
}

// CheckTransition validates that the change from appt's current status to the
// requested one is legal, authorized, and (for COMPLETED) not ahead of the
// scheduled time. It does not mutate the appointment.
func CheckTransition(appt *Appointment, to Status, actor *Actor, professionalUserID string, now time.Time) error {
	if !CanTransition(appt.Status, to) {
		return &TransitionError{From: appt.Status, To: to}
	}
	if err := AuthorizeTransition(appt, to, actor, professionalUserID); err != nil {
		return err
	}
	if to == StatusCompleted && now.Before(appt.ScheduledTime) {
		return &TransitionError{From: appt.Status, To: to}
	}
	return nil
}
