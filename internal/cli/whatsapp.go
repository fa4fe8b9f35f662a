package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"wedding-site/internal/whatsapp"
)

// NewWhatsAppCommand creates the whatsapp command group.
func NewWhatsAppCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whatsapp",
		Short: "Manage the WhatsApp host notification device",
	}

	login := &cobra.Command{
		Use:   "login",
		Short: "Pair this server with WhatsApp by scanning a QR code",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, log := rootOpts.Config, rootOpts.Log

			svc, err := whatsapp.NewService(ctx, whatsappConfig(cfg), log)
			if err != nil {
				return err
			}
			defer svc.Disconnect()

			out := cmd.OutOrStdout()
			if svc.IsLoggedIn() {
				fmt.Fprintln(out, "✅ Already paired with WhatsApp.")
				return nil
			}
			fmt.Fprintln(out, "Connecting to WhatsApp...")
			if err := svc.Connect(ctx, out); err != nil {
				return err
			}
			if !svc.IsLoggedIn() {
				return errors.New("pairing did not complete")
			}
			fmt.Fprintln(out, "✅ Paired with WhatsApp!")
			return nil
		},
	}

	cmd.AddCommand(login)
	return cmd
}
