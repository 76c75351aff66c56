package domain

import "time"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

// Terminal reports whether no further transitions are permitted from s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return Status(raw), true
	}
	return "", false
}

type Role string

const (
	RoleAdmin        Role = "admin"
	RoleUser         Role = "user"
	RoleProfessional Role = "professional"
	RoleGuest        Role = "guest"
)

// Actor is the authenticated identity behind a request, as supplied by the
// gateway. Existence is re-validated against the store before use.
type Actor struct {
	UserID string
	Role   Role
}

type User struct {
	ID       string
	Email    string
	FullName string
	Role     Role
	Active   bool
}

type Professional struct {
	ID             string
	UserID         string
	Qualifications string
	Active         bool
}

// Slot is one bookable unit of a professional's time. Identity is the
// (ProfessionalID, StartTime) pair; no two slots of a professional share a
// start time.
type Slot struct {
	ProfessionalID string
	StartTime      time.Time
	Available      bool
}

type Appointment struct {
	ID             string
	UserID         string
	ProfessionalID string
	ScheduledTime  time.Time
	Status         Status
	CancelledAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Review struct {
	ID             string
	AppointmentID  string
	UserID         string
	ProfessionalID string
	Rating         int
	Comment        string
	CreatedAt      time.Time
}
