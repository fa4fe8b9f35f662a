package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"wedding-site/internal/models"
	"wedding-site/internal/rsvp"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResponses(w io.Writer, responses []models.Response) error {
	if len(responses) == 0 {
		_, err := fmt.Fprintln(w, "No responses yet.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tGUESTS\tSUBMITTED\tMESSAGE")
	for _, r := range responses {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			r.Name, rsvp.StatusLabels[r.Status], rsvp.GuestCountOf(r),
			r.CreatedAt.Local().Format("Jan 2 15:04"), oneLine(r.Message))
	}
	return tw.Flush()
}

func printStats(w io.Writer, st rsvp.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Responses\t%d\n", st.TotalResponses)
	fmt.Fprintf(tw, "Guests\t%d\n", st.TotalGuests)
	fmt.Fprintf(tw, "Attending\t%d (%d guests)\n", st.AttendingResponses, st.AttendingGuests)
	fmt.Fprintf(tw, "Pending\t%d\n", st.PendingResponses)
	fmt.Fprintf(tw, "Regrets\t%d\n", st.DeclinedResponses)
	return tw.Flush()
}

func printPosts(w io.Writer, posts []models.Post, hasMore bool) error {
	if len(posts) == 0 {
		_, err := fmt.Fprintln(w, "No posts yet.")
		return err
	}
	for _, p := range posts {
		fmt.Fprintf(w, "%s  %s  %s\n", p.ID, authorName(p.Guest), p.CreatedAt.Local().Format("Jan 2 15:04"))
		fmt.Fprintf(w, "  %s %s\n", p.MediaType, p.MediaURL)
		if p.Caption != nil {
			fmt.Fprintf(w, "  %q\n", *p.Caption)
		}
		if p.Location != nil {
			fmt.Fprintf(w, "  at %s\n", *p.Location)
		}
		fmt.Fprintf(w, "  %s  %d comments\n", reactionSummary(p.Reactions), len(p.Comments))
	}
	if hasMore {
		fmt.Fprintln(w, "(more posts available, use --pages)")
	}
	return nil
}

func reactionSummary(reactions []models.Reaction) string {
	counts := make(map[models.ReactionType]int)
	for _, r := range reactions {
		counts[r.ReactionType]++
	}
	parts := make([]string, 0, len(models.ReactionTypes))
	for _, t := range models.ReactionTypes {
		if counts[t] > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", t, counts[t]))
		}
	}
	if len(parts) == 0 {
		return "no reactions"
	}
	return strings.Join(parts, " ")
}

func authorName(g *models.Guest) string {
	if g == nil || g.Name == "" {
		return "Guest"
	}
	return g.Name
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
