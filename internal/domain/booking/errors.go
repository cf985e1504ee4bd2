package booking

import "errors"

var (
	// ErrInvalidTransition is returned when an appointment is no longer booked.
	ErrInvalidTransition = errors.New("appointment is not in a bookable state")

	// ErrNotParticipant is returned when the caller is not allowed to act on the appointment.
	ErrNotParticipant = errors.New("not a participant of this appointment")
)
