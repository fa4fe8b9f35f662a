package rsvp

import (
	"fmt"
	"io"
	"strings"
	"time"

	"wedding-site/internal/models"
)

// StatusLabels are the dashboard names of each status.
var StatusLabels = map[models.RSVPStatus]string{
	models.RSVPYes:   "Attending",
	models.RSVPMaybe: "Pending",
	models.RSVPNo:    "Regrets",
}

// Stats summarizes a set of responses for the hosts.
type Stats struct {
	TotalResponses     int `json:"totalResponses"`
	TotalGuests        int `json:"totalGuests"`
	AttendingResponses int `json:"attendingResponses"`
	AttendingGuests    int `json:"attendingGuests"`
	PendingResponses   int `json:"pendingResponses"`
	DeclinedResponses  int `json:"declinedResponses"`
}

// GuestCountOf returns the party size of r, treating a stored
// non-positive count as 1.
func GuestCountOf(r models.Response) int {
	if r.GuestCount <= 0 {
		return 1
	}
	return r.GuestCount
}

// Summarize computes Stats over responses.
func Summarize(responses []models.Response) Stats {
	var st Stats
	for _, r := range responses {
		count := GuestCountOf(r)
		st.TotalResponses++
		st.TotalGuests += count

		switch NormalizeStatus(string(r.Status)) {
		case models.RSVPYes:
			st.AttendingResponses++
			st.AttendingGuests += count
		case models.RSVPMaybe:
			st.PendingResponses++
		case models.RSVPNo:
			st.DeclinedResponses++
		}
	}
	return st
}

// Filter keeps the responses matching status ("" or "all" for any) whose
// name, message or guest list contains term, case-insensitively.
func Filter(responses []models.Response, status, term string) []models.Response {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]models.Response, 0, len(responses))
	for _, r := range responses {
		if status != "" && status != "all" && string(NormalizeStatus(string(r.Status))) != status {
			continue
		}
		if term != "" {
			haystack := strings.ToLower(strings.Join([]string{r.Name, r.Message, r.GuestNames}, " "))
			if !strings.Contains(haystack, term) {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

const csvTimeLayout = "Jan 2, 2006, 3:04 PM"

// WriteCSV writes responses in the host export format.
func WriteCSV(w io.Writer, responses []models.Response) error {
	lines := make([]string, 0, len(responses)+1)
	lines = append(lines, "Name,Status,Guest Count,Guest Names,Message,Submitted At")
	for _, r := range responses {
		label, ok := StatusLabels[NormalizeStatus(string(r.Status))]
		if !ok {
			label = "Unknown"
		}
		fields := []string{
			r.Name,
			label,
			fmt.Sprint(GuestCountOf(r)),
			strings.TrimSpace(r.GuestNames),
			strings.TrimSpace(r.Message),
			formatSubmitted(r.CreatedAt),
		}
		for i, f := range fields {
			fields[i] = escapeCSV(f)
		}
		lines = append(lines, strings.Join(fields, ","))
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n"))
	return err
}

func formatSubmitted(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(csvTimeLayout)
}

func escapeCSV(value string) string {
	value = strings.Join(strings.FieldsFunc(value, func(r rune) bool { return r == '\r' || r == '\n' }), " ")
	value = strings.TrimSpace(value)
	if strings.ContainsAny(value, "\",;") {
		return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
	}
	return value
}
