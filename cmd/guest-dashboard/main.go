package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"hotel-messaging/internal/config"
	"hotel-messaging/internal/identity"
	"hotel-messaging/internal/jobs"
	"hotel-messaging/internal/messages"
	"hotel-messaging/internal/models"
	"hotel-messaging/internal/phoneindex"
	"hotel-messaging/internal/snapshot"
)

type rootOptions struct {
	Verbose bool
	Format  string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "guest-dashboard",
		Short: "Hotel guest messaging dashboard engine",
		Long:  "Reconciles guest exports, WhatsApp conversations and the persisted phone to name map into one guest list.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != "text" && opts.Format != "json" {
				return fmt.Errorf("invalid format %q: must be text or json", opts.Format)
			}
			return nil
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(
		newServeCommand(opts),
		newGuestsCommand(opts),
		newNameMapCommand(opts),
		newPhoneIndexCommand(opts),
		newSyncNamesCommand(opts),
		newSetNameCommand(opts),
		newSendTemplateCommand(opts),
		newPruneCommand(opts),
	)
	return cmd
}

// withApp loads configuration, builds the app and runs fn with it.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg, opts.Verbose)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Watch exports and poll remote archives and messages until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return serve(ctx, a)
			})
		},
	}
}

func serve(ctx context.Context, a *app) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.whatsapp != nil {
		fmt.Println("Connecting to WhatsApp...")
		if err := a.whatsapp.Connect(ctx); err != nil {
			return err
		}
		fmt.Println("Connected to WhatsApp")
	}

	if n, err := a.dash.MergeRemoteNames(ctx); err != nil {
		a.log.Warn().Err(err).Msg("Failed to merge remote name map")
	} else if n > 0 {
		a.log.Info().Int("adopted", n).Msg("Adopted remote names")
	}
	if _, err := a.dash.RebuildIndex(ctx); err != nil {
		a.log.Warn().Err(err).Msg("Initial index build failed")
	}

	poller := messages.NewPoller(a.messages, a.cfg.MessageLimit, nil, a.log)

	scheduler := jobs.NewScheduler(a.log)
	scheduler.Every("local-snapshot", a.cfg.SnapshotPollInterval, a.dash.CheckLocalSnapshot)
	if a.blobs != nil {
		scheduler.Every("remote-snapshot", a.cfg.RemotePollInterval, a.dash.CheckRemoteSnapshot)
	}
	scheduler.Every("messages", a.cfg.MessagePollInterval, func(ctx context.Context) error {
		_, err := poller.Poll(ctx)
		return err
	})
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if a.cfg.EnableWatcher {
		w := snapshot.NewWatcher(a.local.Path(), func(ctx context.Context) {
			if err := a.dash.CheckLocalSnapshot(ctx); err != nil {
				a.log.Warn().Err(err).Msg("Snapshot ingestion failed")
			}
		}, a.log)
		if err := w.Start(ctx); err != nil {
			a.log.Warn().Err(err).Msg("Watcher disabled")
		}
	}

	fmt.Println("Guest dashboard engine running. Press Ctrl+C to stop.")

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	select {
	case <-c:
	case <-ctx.Done():
	}

	fmt.Println("\nShutting down...")
	return nil
}

func newGuestsCommand(opts *rootOptions) *cobra.Command {
	var q models.GetGuestsOptions
	cmd := &cobra.Command{
		Use:   "guests",
		Short: "Run one reconciliation pass and print the visible guests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				guests, err := a.dash.GetGuests(ctx, q)
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), guests)
				}
				printGuests(cmd.OutOrStdout(), guests)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&q.IncludeCheckedOut, "include-checked-out", false, "include guests whose checkout has passed")
	cmd.Flags().BoolVar(&q.IncludeFailed, "include-failed", false, "include guests whose last delivery failed")
	cmd.Flags().StringVar(&q.Template, "template", "", "only guests whose last template matches")
	cmd.Flags().StringVar(&q.Status, "status", "", "only guests with this delivery status")
	return cmd
}

func printGuests(w io.Writer, guests []models.GuestRecord) {
	if len(guests) == 0 {
		fmt.Fprintln(w, "No guests found.")
		return
	}
	fmt.Fprintf(w, "Guests (%d total):\n", len(guests))
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, g := range guests {
		name := g.DisplayName()
		if name == "" {
			name = g.IdentifierValue
		}
		fmt.Fprintf(w, "Name: %s\n", name)
		fmt.Fprintf(w, "Phone: %s\n", g.IdentifierValue)
		if g.RoomNumber != "" {
			fmt.Fprintf(w, "Room: %s\n", g.RoomNumber)
		}
		if g.CheckoutDate != "" {
			fmt.Fprintf(w, "Checkout: %s\n", g.CheckoutDate)
		}
		if g.LastSeen != nil {
			fmt.Fprintf(w, "Last seen: %s (%s)\n", g.LastSeen.Format("2006-01-02 15:04:05"), g.LastDirection)
			fmt.Fprintf(w, "Last message: %s\n", g.LastMessage)
		}
		if g.DeliveryStatus != "" {
			fmt.Fprintf(w, "Delivery: %s %s\n", g.DeliveryStatus, g.DeliveryReason)
		}
		fmt.Fprintln(w, strings.Repeat("-", 60))
	}
}

func newNameMapCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "name-map",
		Short: "Print the persisted phone to name map",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				all := a.dash.GetNameMap()
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), all)
				}
				keys := make([]string, 0, len(all))
				for k := range all {
					keys = append(keys, string(k))
				}
				sort.Strings(keys)
				for _, k := range keys {
					e := all[models.PhoneKey(k)]
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", k, e.Name, e.CheckoutDate)
				}
				return nil
			})
		},
	}
}

func newPhoneIndexCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "phone-index [phone]",
		Short: "Print the archival occurrence index, or one phone's history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				idx := a.dash.GetOccurrenceIndex()
				if len(args) == 1 {
					entry, ok := lookupPhone(idx, args[0])
					if !ok {
						return fmt.Errorf("no history for %s", args[0])
					}
					if opts.Format == "json" {
						return writeJSON(cmd.OutOrStdout(), entry)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Name: %s\nLatest checkout: %s\n", entry.Name, entry.LatestCheckout)
					for _, o := range entry.Occurrences {
						fmt.Fprintf(cmd.OutOrStdout(), "  %s\t%s %s\troom %s\tcheckout %s\n", o.File, o.FirstName, o.LastName, o.RoomNumber, o.CheckoutDate)
					}
					return nil
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), idx)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d phones, %d occurrences\n", len(idx), idx.Occurrences())
				return nil
			})
		},
	}
}

func lookupPhone(idx phoneindex.Index, raw string) (*models.IndexEntry, bool) {
	key := identity.Normalize(raw)
	if !key.Valid() {
		return nil, false
	}
	entry, ok := idx[key]
	return entry, ok
}

func newSyncNamesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-names",
		Short: "Overwrite the name map from the current export",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res, err := a.dash.SyncNameMapFromSnapshot(ctx)
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %d mappings (%d total)\n", res.Updated, res.Total)
				return nil
			})
		},
	}
}

func newSetNameCommand(opts *rootOptions) *cobra.Command {
	var checkout string
	cmd := &cobra.Command{
		Use:   "set-name PHONE NAME",
		Short: "Set the name for a phone, replacing any existing mapping",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.dash.SetName(ctx, args[0], args[1], checkout); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Mapped %s -> %s\n", args[0], args[1])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&checkout, "checkout", "", "checkout date to record")
	return cmd
}

func newSendTemplateCommand(opts *rootOptions) *cobra.Command {
	var template, text string
	var vars []string
	cmd := &cobra.Command{
		Use:   "send-template PHONE",
		Short: "Send a templated WhatsApp message once per phone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			variables, err := parseVars(vars)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if a.whatsapp == nil {
					return fmt.Errorf("send-template needs MESSAGE_SOURCE=whatsapp")
				}
				if err := a.whatsapp.Connect(ctx); err != nil {
					return err
				}
				if err := a.dash.SendTemplate(ctx, args[0], template, text, variables); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Template %s sent to %s\n", template, args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&template, "template", "", "template name (required)")
	_ = cmd.MarkFlagRequired("template")
	cmd.Flags().StringVar(&text, "text", "", "message text (required)")
	_ = cmd.MarkFlagRequired("text")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "template variable as key=value, repeatable")
	return cmd
}

func parseVars(pairs []string) (models.TemplateVariables, error) {
	out := make(models.TemplateVariables, 0, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --var %q: want key=value", p)
		}
		out = append(out, models.Variable{Key: strings.TrimSpace(k), Value: v})
	}
	return out, nil
}

func newPruneCommand(opts *rootOptions) *cobra.Command {
	var doDelete bool
	cmd := &cobra.Command{
		Use:   "prune-archives",
		Short: "Keep only the newest archived export per date",
		Long: `Groups archived exports by the date in their name (YYYY-MM-DD or
YYYYMMDD) and removes all but the most recently modified one per date.
Runs as a dry run unless --delete is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if a.blobs == nil {
					return fmt.Errorf("prune-archives needs AZURE_STORAGE_CONNECTION_STRING")
				}
				res, err := a.blobs.Prune(ctx, !doDelete)
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				printPrune(cmd.OutOrStdout(), res, !doDelete)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&doDelete, "delete", false, "actually delete blobs")
	return cmd
}

func printPrune(w io.Writer, res snapshot.PruneResult, dryRun bool) {
	if len(res.Removals) == 0 {
		fmt.Fprintln(w, "Nothing to delete; every date has only one (latest) blob.")
		return
	}
	fmt.Fprintf(w, "Found %d blobs to remove across %d dates\n", len(res.Removals), res.Dates)
	for _, r := range res.Removals {
		fmt.Fprintf(w, "Date %s: keep=%s  remove=%s  lastModified=%s\n", r.DateKey, r.Keep, r.Remove.Name, r.Remove.LastModified.Format("2006-01-02 15:04:05"))
	}
	if dryRun {
		fmt.Fprintln(w, "\nDry run; no blobs were deleted. Re-run with --delete to remove them.")
		return
	}
	fmt.Fprintf(w, "Deleted %d blobs, %d failed\n", len(res.Deleted), len(res.Failed))
}
