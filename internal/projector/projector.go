package projector

import (
	"fmt"
	"math"
	"strings"
	"time"

	"dynasty/internal/models"
)

// PlaceholderLabel substitutes absent optional booking fields on display.
const PlaceholderLabel = "Not specified"

// Stats aggregates one partition snapshot by status and service category.
type Stats struct {
	Total     int            `json:"total"`
	Pending   int            `json:"pending"`
	Confirmed int            `json:"confirmed"`
	Cancelled int            `json:"cancelled"`
	Services  map[string]int `json:"services"`
}

// Card is the display-ready projection of one booking.
type Card struct {
	ID                  string        `json:"id"`
	Status              models.Status `json:"status"`
	StatusLabel         string        `json:"status_label"`
	Name                string        `json:"name"`
	Email               string        `json:"email"`
	Phone               string        `json:"phone"`
	People              string        `json:"people"`
	DateTime            string        `json:"datetime"`
	SpecialRequest      string        `json:"special_request,omitempty"`
	BookedOn            string        `json:"booked_on"`
	LastUpdated         string        `json:"last_updated"`
	AutoConfirmed       bool          `json:"auto_confirmed,omitempty"`
	AwaitingAutoConfirm bool          `json:"awaiting_auto_confirm,omitempty"`
	SecondsToConfirm    int           `json:"seconds_to_confirm,omitempty"`
}

// DashboardView is the full view model any rendering layer can consume.
type DashboardView struct {
	Stats       Stats     `json:"stats"`
	ActiveCount int       `json:"active_count"`
	Cards       []Card    `json:"cards"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Projector derives view models from partition snapshots. It is pure: the
// same snapshot and clock always produce the same view.
type Projector struct {
	knownServices map[string]struct{}
	confirmAfter  time.Duration
}

func New(services []string, confirmAfter time.Duration) *Projector {
	if confirmAfter <= 0 {
		confirmAfter = models.AutoConfirmThreshold
	}

	known := make(map[string]struct{}, len(services))
	for _, svc := range services {
		known[svc] = struct{}{}
	}
	return &Projector{knownServices: known, confirmAfter: confirmAfter}
}

// ComputeStats counts bookings by status and by service category.
// Unrecognized or missing categories land in the "other" bucket.
func (p *Projector) ComputeStats(bookings []models.Booking) Stats {
	stats := Stats{Services: make(map[string]int, len(p.knownServices)+1)}
	for svc := range p.knownServices {
		stats.Services[svc] = 0
	}
	stats.Services[models.ServiceOther] = 0

	for _, b := range bookings {
		stats.Total++
		switch b.Status {
		case models.StatusPending:
			stats.Pending++
		case models.StatusConfirmed:
			stats.Confirmed++
		case models.StatusCancelled:
			stats.Cancelled++
		}

		svc := b.Service
		if _, known := p.knownServices[svc]; !known {
			svc = models.ServiceOther
		}
		stats.Services[svc]++
	}

	return stats
}

// ComputeActiveCount counts bookings that are not cancelled.
func (p *Projector) ComputeActiveCount(bookings []models.Booking) int {
	active := 0
	for _, b := range bookings {
		if b.Status != models.StatusCancelled {
			active++
		}
	}
	return active
}

// ProjectCard renders one booking for display. Seconds until auto-confirm
// are derived only for pending bookings, clamped at zero so clock skew
// never shows a negative countdown.
func (p *Projector) ProjectCard(b models.Booking, now time.Time) Card {
	card := Card{
		ID:             b.ID,
		Status:         b.Status,
		StatusLabel:    statusLabel(b.Status),
		Name:           orPlaceholder(b.Name),
		Email:          orPlaceholder(b.Email),
		Phone:          orPlaceholder(b.Phone),
		People:         peopleLabel(b.People),
		DateTime:       FormatBookingDateTime(b.DateTime),
		SpecialRequest: b.Message,
		BookedOn:       formatTimestamp(b.CreatedAt),
		LastUpdated:    formatTimestamp(b.UpdatedAt),
		AutoConfirmed:  b.AutoConfirmed,
	}

	if b.Status == models.StatusPending {
		elapsed := now.Sub(b.CreatedAt)
		if elapsed < 0 {
			elapsed = 0
		}
		remaining := p.confirmAfter - elapsed
		if remaining > 0 {
			card.SecondsToConfirm = int(math.Ceil(remaining.Seconds()))
			card.AwaitingAutoConfirm = true
		}
	}

	return card
}

// Project builds the complete dashboard view for a snapshot.
func (p *Projector) Project(bookings []models.Booking, now time.Time) DashboardView {
	cards := make([]Card, 0, len(bookings))
	for _, b := range bookings {
		cards = append(cards, p.ProjectCard(b, now))
	}

	return DashboardView{
		Stats:       p.ComputeStats(bookings),
		ActiveCount: p.ComputeActiveCount(bookings),
		Cards:       cards,
		GeneratedAt: now,
	}
}

// FormatBookingDateTime renders the actor-supplied requested date/time.
// Accepts MM/DD/YYYY with an optional HH:MM part as well as common ISO
// shapes; anything unparseable is shown verbatim rather than dropped.
func FormatBookingDateTime(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return PlaceholderLabel
	}

	const displayLayout = "Monday, January 2, 2006 at 3:04 PM"

	if strings.Contains(raw, "/") {
		datePart, timePart, _ := strings.Cut(raw, " ")
		if timePart == "" {
			timePart = "12:00"
		}
		if t, err := time.Parse("1/2/2006 15:04", datePart+" "+timePart); err == nil {
			return t.Format(displayLayout)
		}
		return raw
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(displayLayout)
		}
	}
	return raw
}

func statusLabel(s models.Status) string {
	if !s.Valid() {
		return "Unknown"
	}
	return strings.ToUpper(s.String()[:1]) + s.String()[1:]
}

func orPlaceholder(v string) string {
	if strings.TrimSpace(v) == "" {
		return PlaceholderLabel
	}
	return v
}

func peopleLabel(n int) string {
	if n <= 0 {
		return PlaceholderLabel
	}
	return fmt.Sprintf("%d", n)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return PlaceholderLabel
	}
	return t.Format("Mon, Jan 2, 2006 3:04 PM")
}
