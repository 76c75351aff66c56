package domain

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCancelled, StatusCompleted, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusConfirmed, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStatesForecloseEachOther(t *testing.T) {
	for _, s := range []Status{StatusCancelled, StatusCompleted} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
		if len(transitions[s]) != 0 {
			t.Errorf("%s should have no outgoing transitions", s)
		}
	}
}

func TestCheckTransitionAuthority(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	appt := &Appointment{
		ID:             "appt-1",
		UserID:         "user-1",
		ProfessionalID: "prof-1",
		ScheduledTime:  now.Add(time.Hour),
		Status:         StatusPending,
	}
	profUserID := "prof-user-1"

	cases := []struct {
		name    string
		to      Status
		actor   *Actor
		wantErr error
	}{
		{"professional confirms", StatusConfirmed, &Actor{UserID: profUserID, Role: RoleProfessional}, nil},
		{"owner cannot confirm", StatusConfirmed, &Actor{UserID: "user-1", Role: RoleUser}, ErrForbidden},
		{"system cannot confirm", StatusConfirmed, nil, ErrForbidden},
		{"owner cancels", StatusCancelled, &Actor{UserID: "user-1", Role: RoleUser}, nil},
		{"professional cancels", StatusCancelled, &Actor{UserID: profUserID, Role: RoleProfessional}, nil},
		{"admin cancels", StatusCancelled, &Actor{UserID: "someone-else", Role: RoleAdmin}, nil},
		{"stranger cannot cancel", StatusCancelled, &Actor{UserID: "stranger", Role: RoleUser}, ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckTransition(appt, tc.to, tc.actor, profUserID, now)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestCheckTransitionTimeGate(t *testing.T) {
	scheduled := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	appt := &Appointment{
		ID:            "appt-1",
		UserID:        "user-1",
		ScheduledTime: scheduled,
		Status:        StatusConfirmed,
	}

	if err := CheckTransition(appt, StatusCompleted, nil, "prof-user-1", scheduled.Add(-time.Minute)); !IsIllegalTransition(err) {
		t.Fatalf("expected illegal transition before scheduled time, got %v", err)
	}
	if err := CheckTransition(appt, StatusCompleted, nil, "prof-user-1", scheduled); err != nil {
		t.Fatalf("expected completion at scheduled time to pass, got %v", err)
	}
	if err := CheckTransition(appt, StatusCompleted, nil, "prof-user-1", scheduled.Add(time.Minute)); err != nil {
		t.Fatalf("expected completion after scheduled time to pass, got %v", err)
	}
	if err := CheckTransition(appt, StatusCompleted, &Actor{UserID: "user-1", Role: RoleAdmin}, "prof-user-1", scheduled.Add(time.Minute)); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected human-driven completion to be forbidden, got %v", err)
	}
}

func TestTransitionErrorReportsStates(t *testing.T) {
	appt := &Appointment{Status: StatusCancelled, ScheduledTime: time.Now()}
	err := CheckTransition(appt, StatusCompleted, nil, "", time.Now())
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if te.From != StatusCancelled || te.To != StatusCompleted {
		t.Fatalf("error should carry both states, got %+v", te)
	}
}
