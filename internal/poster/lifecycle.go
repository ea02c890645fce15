// Package poster holds the poster position state machine and the campaign
// summary logic. Everything here is pure: callers pass the current time in.
package poster

import (
	"errors"
	"fmt"
	"time"

	"kivop-be/internal/domain"
)

// Action names a mutating lifecycle operation
type Action string

const (
	ActionHang         Action = "hang"
	ActionTakeDown     Action = "take_down"
	ActionReportDamage Action = "report_damage"
)

var (
	// ErrMissingEvidence is returned when a mutating action carries no photo
	ErrMissingEvidence = errors.New("evidence photo is required")
	// ErrMissingLocation is returned when hanging a position with no known coordinates
	ErrMissingLocation = errors.New("coordinates are required to hang a position")
	// ErrInvalidTransition is returned when the action is not allowed from the current status
	ErrInvalidTransition = errors.New("transition not allowed")
)

// TransitionError describes a rejected lifecycle action
type TransitionError struct {
	Action     Action
	PositionID string
	From       domain.PositionStatus
	Err        error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s position %s from %s: %v", e.Action, e.PositionID, e.From, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// EffectiveStatus returns the status used for display and aggregation.
// A hanging position whose deadline has passed is overdue.
func EffectiveStatus(p domain.PosterPosition, now time.Time) domain.PositionStatus {
	if p.Status == domain.StatusHangs && !now.Before(p.ExpiresAt) {
		return domain.StatusOverdue
	}
	return p.Status
}

// IsOverdue reports whether p is past its take-down deadline while still hanging
func IsOverdue(p domain.PosterPosition, now time.Time) bool {
	return EffectiveStatus(p, now) == domain.StatusOverdue
}

// Hang marks p as hanging. It also serves as "undo take-down": from
// takenDown the last known coordinates are reused when coords is nil.
func Hang(p domain.PosterPosition, image []byte, coords *domain.Coordinates, actor string, now time.Time) (domain.PosterPosition, error) {
	from := EffectiveStatus(p, now)
	if len(image) == 0 {
		return p, reject(ActionHang, p, from, ErrMissingEvidence)
	}
	if from != domain.StatusToHang && from != domain.StatusTakenDown {
		return p, reject(ActionHang, p, from, ErrInvalidTransition)
	}
	if coords == nil && p.Coordinates == nil {
		return p, reject(ActionHang, p, from, ErrMissingLocation)
	}

	next := p.Clone()
	next.Status = domain.StatusHangs
	next.PostedAt = &now
	next.PostedBy = actor
	next.Image = append([]byte(nil), image...)
	next.HasImage = true
	if coords != nil {
		c := *coords
		next.Coordinates = &c
	}
	return next, nil
}

// TakeDown marks a hanging or overdue position as removed
func TakeDown(p domain.PosterPosition, image []byte, actor string, now time.Time) (domain.PosterPosition, error) {
	from := EffectiveStatus(p, now)
	if len(image) == 0 {
		return p, reject(ActionTakeDown, p, from, ErrMissingEvidence)
	}
	if !isUp(from) {
		return p, reject(ActionTakeDown, p, from, ErrInvalidTransition)
	}

	next := p.Clone()
	next.Status = domain.StatusTakenDown
	next.RemovedAt = &now
	next.RemovedBy = actor
	next.Image = append([]byte(nil), image...)
	next.HasImage = true
	return next, nil
}

// ReportDamage marks a hanging or overdue position as damaged.
// The take-down deadline is left as is.
func ReportDamage(p domain.PosterPosition, image []byte, now time.Time) (domain.PosterPosition, error) {
	from := EffectiveStatus(p, now)
	if len(image) == 0 {
		return p, reject(ActionReportDamage, p, from, ErrMissingEvidence)
	}
	if !isUp(from) {
		return p, reject(ActionReportDamage, p, from, ErrInvalidTransition)
	}

	next := p.Clone()
	next.Status = domain.StatusDamaged
	next.Image = append([]byte(nil), image...)
	next.HasImage = true
	return next, nil
}

// Allowed lists the actions that may be applied to p at now, ignoring evidence
func Allowed(p domain.PosterPosition, now time.Time) []Action {
	switch EffectiveStatus(p, now) {
	case domain.StatusToHang, domain.StatusTakenDown:
		return []Action{ActionHang}
	case domain.StatusHangs, domain.StatusOverdue:
		return []Action{ActionTakeDown, ActionReportDamage}
	default:
		// damaged has no way out yet
		return nil
	}
}

func isUp(s domain.PositionStatus) bool {
	return s == domain.StatusHangs || s == domain.StatusOverdue
}

func reject(action Action, p domain.PosterPosition, from domain.PositionStatus, err error) error {
	return &TransitionError{Action: action, PositionID: p.ID, From: from, Err: err}
}
