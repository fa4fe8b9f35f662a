package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"wedding-site/internal/models"
	"wedding-site/internal/rsvp"
	"wedding-site/internal/rsvpform"
)

// RSVPOptions holds flags for the rsvp command.
type RSVPOptions struct {
	*RootOptions
	URL        string
	Name       string
	Guests     int
	GuestNames []string
	Status     string
	Message    string
}

// NewRSVPCommand creates the rsvp command.
func NewRSVPCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RSVPOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rsvp",
		Short: "Send an RSVP to the gateway",
		Example: `  wedding rsvp --name "Maria Cruz" --guests 3 --guest-name "Ana Cruz" --guest-name "Leo Cruz" --message "See you there!"
  wedding rsvp --name "Tom Lee" --status no`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runRSVP(ctx, cmd.OutOrStdout(), opts, rsvp.NewClient(opts.URL, nil))
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "http://localhost:8080/api/rsvp", "RSVP gateway URL")
	cmd.Flags().StringVar(&opts.Name, "name", "", "your name")
	cmd.Flags().IntVar(&opts.Guests, "guests", 1, "party size including you (1-8)")
	cmd.Flags().StringArrayVar(&opts.GuestNames, "guest-name", nil, "name of an additional guest (repeatable)")
	cmd.Flags().StringVar(&opts.Status, "status", string(models.RSVPYes), "yes|maybe|no")
	cmd.Flags().StringVar(&opts.Message, "message", "", "a note for the couple")

	return cmd
}

func runRSVP(ctx context.Context, w io.Writer, opts *RSVPOptions, submitter rsvpform.Submitter) error {
	status := models.RSVPStatus(opts.Status)
	if !status.Valid() {
		return fmt.Errorf("invalid status %q: must be yes, maybe or no", opts.Status)
	}

	form := rsvpform.NewForm(opts.Log)
	form.SetName(opts.Name)
	form.SetGuestCount(opts.Guests)
	for i, name := range opts.GuestNames {
		form.SetGuestName(i, name)
	}
	form.SetStatus(status)
	form.SetMessage(opts.Message)

	if err := form.Submit(ctx, submitter); err != nil {
		return errors.New(form.View().Error)
	}

	snap := form.View().Snapshot
	if opts.Format == "json" {
		return printJSON(w, snap)
	}
	fmt.Fprintln(w, snap.Title())
	fmt.Fprintln(w, snap.Greeting())
	fmt.Fprintln(w, snap.StatusMessage())
	if snap.Message != "" {
		fmt.Fprintf(w, "Your message to us: “%s”\n", snap.Message)
	}
	if snap.GuestCount > 1 {
		fmt.Fprintf(w, "Your party: %s\n", strings.Join(snap.AllGuests, ", "))
	}
	return nil
}
