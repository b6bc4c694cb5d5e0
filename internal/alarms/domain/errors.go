package alarms

import "errors"

// ErrNotFound indicates a missing ticket.
var ErrNotFound = errors.New("alarm: not found")

// ErrInvalidTransition indicates a status that cannot be set manually.
var ErrInvalidTransition = errors.New("alarm: invalid transition")

// ErrRegistryCorrupted indicates the ticket indexes disagree with each other.
var ErrRegistryCorrupted = errors.New("alarm: registry corrupted")

// ErrDuplicateTicket indicates a restore that would break the one-ticket-per-key rule.
var ErrDuplicateTicket = errors.New("alarm: duplicate ticket")
