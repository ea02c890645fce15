package domain

import "time"

// PositionStatus is the lifecycle state of a poster position.
// Only ToHang, Hangs, TakenDown and Damaged are ever persisted; Overdue is
// derived at read time.
type PositionStatus string

const (
	StatusToHang    PositionStatus = "toHang"
	StatusHangs     PositionStatus = "hangs"
	StatusOverdue   PositionStatus = "overdue"
	StatusTakenDown PositionStatus = "takenDown"
	StatusDamaged   PositionStatus = "damaged"
)

// IsStored reports whether s is one of the persisted states
func (s PositionStatus) IsStored() bool {
	switch s {
	case StatusToHang, StatusHangs, StatusTakenDown, StatusDamaged:
		return true
	}
	return false
}

// Coordinates is a WGS84 latitude/longitude pair
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Poster represents a poster campaign. Positions are fetched separately.
type Poster struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PosterPosition is one physical placement of a poster. List reads leave
// Image empty and only set HasImage.
type PosterPosition struct {
	ID               string         `json:"id"`
	PosterID         string         `json:"poster_id"`
	Coordinates      *Coordinates   `json:"coordinates,omitempty"`
	Status           PositionStatus `json:"status"`
	Image            []byte         `json:"image,omitempty"`
	HasImage         bool           `json:"has_image"`
	PostedAt         *time.Time     `json:"posted_at,omitempty"`
	PostedBy         string         `json:"posted_by,omitempty"`
	RemovedAt        *time.Time     `json:"removed_at,omitempty"`
	RemovedBy        string         `json:"removed_by,omitempty"`
	ExpiresAt        time.Time      `json:"expires_at"`
	ResponsibleUsers []string       `json:"responsible_users"`
}

// Clone returns a deep copy of p
func (p PosterPosition) Clone() PosterPosition {
	c := p
	if p.Coordinates != nil {
		coords := *p.Coordinates
		c.Coordinates = &coords
	}
	if p.Image != nil {
		c.Image = append([]byte(nil), p.Image...)
	}
	if p.PostedAt != nil {
		t := *p.PostedAt
		c.PostedAt = &t
	}
	if p.RemovedAt != nil {
		t := *p.RemovedAt
		c.RemovedAt = &t
	}
	if p.ResponsibleUsers != nil {
		c.ResponsibleUsers = append(make([]string, 0, len(p.ResponsibleUsers)), p.ResponsibleUsers...)
	}
	return c
}

// PositionView is a position as returned to clients, carrying the
// time-derived status next to the stored one.
type PositionView struct {
	PosterPosition
	EffectiveStatus PositionStatus `json:"effective_status"`
	AllowedActions  []string       `json:"allowed_actions"`
}

// PosterSummary is the derived health of a campaign. It is never persisted.
type PosterSummary struct {
	ToHang       int        `json:"to_hang"`
	Hangs        int        `json:"hangs"`
	Overdue      int        `json:"overdue"`
	TakenDown    int        `json:"taken_down"`
	Damaged      int        `json:"damaged"`
	NextTakeDown *time.Time `json:"next_take_down,omitempty"`
}

// Total returns the number of positions counted in the summary
func (s PosterSummary) Total() int {
	return s.ToHang + s.Hangs + s.Overdue + s.TakenDown + s.Damaged
}

// Classification places a poster in the current or archived list views
type Classification string

const (
	ClassificationCurrent      Classification = "current"
	ClassificationArchived     Classification = "archived"
	ClassificationUnclassified Classification = "unclassified"
)

// PosterOverview is a poster together with its summary for list views
type PosterOverview struct {
	Poster         Poster         `json:"poster"`
	Summary        PosterSummary  `json:"summary"`
	Classification Classification `json:"classification"`
}

// PosterDetail is a poster with its positions and summary
type PosterDetail struct {
	Poster         Poster         `json:"poster"`
	Positions      []PositionView `json:"positions"`
	Summary        PosterSummary  `json:"summary"`
	Classification Classification `json:"classification"`
}

// CreatePosterRequest sets up a campaign together with its positions
type CreatePosterRequest struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	ImageURL    string               `json:"image_url"`
	Positions   []NewPositionRequest `json:"positions"`
}

// NewPositionRequest describes one position of a new campaign
type NewPositionRequest struct {
	Coordinates      *Coordinates `json:"coordinates,omitempty"`
	ExpiresAt        time.Time    `json:"expires_at"`
	ResponsibleUsers []string     `json:"responsible_users"`
}

// HangRequest is the body of a hang (or undo take-down) submission
type HangRequest struct {
	Image       []byte       `json:"image"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// EvidenceRequest is the body of take-down and damage submissions
type EvidenceRequest struct {
	Image []byte `json:"image"`
}
