package poster

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"kivop-be/internal/domain"
)

// ArchiveGrace is how long every position of a poster must have been past
// its deadline (and taken down) before the poster counts as archived.
const ArchiveGrace = 3 * 24 * time.Hour

// ErrDataQuality matches every DataQualityIssue
var ErrDataQuality = errors.New("position cannot be classified")

// DataQualityIssue describes a position left out of aggregation
type DataQualityIssue struct {
	PositionID string
	PosterID   string
	Reason     string
}

func (i DataQualityIssue) Error() string {
	return fmt.Sprintf("position %s (poster %q): %s", i.PositionID, i.PosterID, i.Reason)
}

func (i DataQualityIssue) Is(target error) bool {
	return target == ErrDataQuality
}

// Check returns the issue that would exclude p from aggregation, if any
func Check(p domain.PosterPosition) (DataQualityIssue, bool) {
	var reasons []string
	if strings.TrimSpace(p.PosterID) == "" {
		reasons = append(reasons, "missing poster id")
	}
	if p.ExpiresAt.IsZero() {
		reasons = append(reasons, "missing or unparseable expires_at")
	}
	if !p.Status.IsStored() {
		reasons = append(reasons, fmt.Sprintf("unknown stored status %q", p.Status))
	}
	if len(reasons) == 0 {
		return DataQualityIssue{}, false
	}
	return DataQualityIssue{PositionID: p.ID, PosterID: p.PosterID, Reason: strings.Join(reasons, ", ")}, true
}

// Usable splits positions into those fit for aggregation and the issues
// describing the rest.
func Usable(positions []domain.PosterPosition) ([]domain.PosterPosition, []DataQualityIssue) {
	usable := make([]domain.PosterPosition, 0, len(positions))
	var issues []DataQualityIssue
	for _, p := range positions {
		if issue, bad := Check(p); bad {
			issues = append(issues, issue)
			continue
		}
		usable = append(usable, p)
	}
	return usable, issues
}

// Summarize computes the campaign summary of one poster's positions
func Summarize(positions []domain.PosterPosition, now time.Time) (domain.PosterSummary, []DataQualityIssue) {
	usable, issues := Usable(positions)

	var (
		summary         domain.PosterSummary
		earliestOverdue *time.Time
		earliestActive  *time.Time
	)
	for _, p := range usable {
		switch EffectiveStatus(p, now) {
		case domain.StatusToHang:
			summary.ToHang++
		case domain.StatusHangs:
			summary.Hangs++
		case domain.StatusOverdue:
			summary.Overdue++
			earliestOverdue = earlier(earliestOverdue, p.ExpiresAt)
		case domain.StatusTakenDown:
			summary.TakenDown++
			continue
		case domain.StatusDamaged:
			summary.Damaged++
		}
		earliestActive = earlier(earliestActive, p.ExpiresAt)
	}

	if earliestOverdue != nil {
		summary.NextTakeDown = earliestOverdue
	} else {
		summary.NextTakeDown = earliestActive
	}
	return summary, issues
}

// Classify decides whether a poster belongs to the current or archived
// views. Posters without any usable position are unclassified.
func Classify(positions []domain.PosterPosition, now time.Time) domain.Classification {
	usable, _ := Usable(positions)
	if len(usable) == 0 {
		return domain.ClassificationUnclassified
	}
	cutoff := now.Add(-ArchiveGrace)
	for _, p := range usable {
		if EffectiveStatus(p, now) != domain.StatusTakenDown || p.ExpiresAt.After(cutoff) {
			return domain.ClassificationCurrent
		}
	}
	return domain.ClassificationArchived
}

// Overview builds the list entry of a poster
func Overview(p domain.Poster, positions []domain.PosterPosition, now time.Time) (domain.PosterOverview, []DataQualityIssue) {
	summary, issues := Summarize(positions, now)
	return domain.PosterOverview{
		Poster:         p,
		Summary:        summary,
		Classification: Classify(positions, now),
	}, issues
}

// SortCurrent orders posters for the current view: posters with anything
// on the wall come first, each group by ascending next take-down with
// undefined dates last.
func SortCurrent(overviews []domain.PosterOverview) {
	sort.SliceStable(overviews, func(i, j int) bool {
		a, b := overviews[i], overviews[j]
		aUp, bUp := isOnWall(a.Summary), isOnWall(b.Summary)
		if aUp != bUp {
			return aUp
		}
		if c := compareDates(a.Summary.NextTakeDown, b.Summary.NextTakeDown); c != 0 {
			return c < 0
		}
		if a.Poster.Name != b.Poster.Name {
			return a.Poster.Name < b.Poster.Name
		}
		return a.Poster.ID < b.Poster.ID
	})
}

// SortArchived orders archived posters most recently expired first
func SortArchived(overviews []domain.PosterOverview, latest map[string]time.Time) {
	sort.SliceStable(overviews, func(i, j int) bool {
		a, b := latest[overviews[i].Poster.ID], latest[overviews[j].Poster.ID]
		if !a.Equal(b) {
			return a.After(b)
		}
		return overviews[i].Poster.Name < overviews[j].Poster.Name
	})
}

// LatestExpiry returns the latest usable expires_at among positions
func LatestExpiry(positions []domain.PosterPosition) time.Time {
	usable, _ := Usable(positions)
	var latest time.Time
	for _, p := range usable {
		if p.ExpiresAt.After(latest) {
			latest = p.ExpiresAt
		}
	}
	return latest
}

func isOnWall(s domain.PosterSummary) bool {
	return s.Hangs > 0 || s.Overdue > 0
}

// compareDates orders nil after every defined date
func compareDates(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Before(*b):
		return -1
	case b.Before(*a):
		return 1
	}
	return 0
}

func earlier(current *time.Time, candidate time.Time) *time.Time {
	if current == nil || candidate.Before(*current) {
		t := candidate
		return &t
	}
	return current
}
