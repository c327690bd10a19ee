package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/micmagic/internal/catalog"
	"github.com/audiolibrelab/micmagic/internal/memo"
	"github.com/audiolibrelab/micmagic/internal/service"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list [query]",
	Aliases: []string{"ls"},
	Short:   "List recordings, optionally filtered by name, date or time",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asYAML, _ := cmd.Flags().GetBool("yaml")

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		if len(args) == 1 {
			a.manager.SetQuery(args[0])
		}
		rows := a.manager.Rows()
		entries := make([]memo.RecordingEntry, 0, len(rows))
		for _, r := range rows {
			entries = append(entries, r.Entry)
		}

		if asYAML {
			out, err := yaml.Marshal(entries)
			if err != nil {
				return fmt.Errorf("error marshaling recordings: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		}
		return printEntries(cmd.OutOrStdout(), entries)
	},
}

func printEntries(w io.Writer, entries []memo.RecordingEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No recordings")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDURATION\tDATE\tTIME")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Name, e.DurationLabel, e.CreatedDate, e.CreatedTime)
	}
	return tw.Flush()
}

var renameCmd = &cobra.Command{
	Use:   "rename [id] [new-name]",
	Short: "Rename a recording",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		name := strings.Join(args[1:], " ")
		if err := a.manager.Rename(cmd.Context(), args[0], name); err != nil {
			return fmt.Errorf("failed to rename recording: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", args[0], name)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete [id]",
	Aliases: []string{"rm"},
	Short:   "Delete a recording",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		entry, err := a.manager.Entry(args[0])
		if err != nil {
			return err
		}
		if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete %q?", entry.Name)) {
			fmt.Fprintln(cmd.OutOrStdout(), "Canceled")
			return nil
		}
		if err := a.manager.Delete(cmd.Context(), entry.ID); err != nil {
			return fmt.Errorf("failed to delete recording: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", entry.Name)
		return nil
	},
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

var playCmd = &cobra.Command{
	Use:   "play [id]",
	Short: "Play a recording until it ends or Ctrl+C",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		id := args[0]
		finished := make(chan struct{}, 1)
		unsubscribe := a.manager.Subscribe(func(ev service.Event) {
			if ev.Type != service.EventCatalog || ev.Change != catalog.ChangePlayback || ev.RecordingID != id {
				return
			}
			if e, err := a.manager.Entry(id); err == nil && !e.IsPlaying {
				select {
				case finished <- struct{}{}:
				default:
				}
			}
		})
		defer unsubscribe()

		playing, err := a.manager.TogglePlayback(ctx, id)
		if err != nil {
			return err
		}
		if !playing {
			return nil
		}
		entry, _ := a.manager.Entry(id)
		fmt.Fprintf(cmd.OutOrStdout(), "Playing %s (%s)\n", entry.Name, entry.DurationLabel)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case <-finished:
		case <-sigChan:
			if _, err := a.manager.TogglePlayback(ctx, id); err != nil {
				return fmt.Errorf("failed to stop playback: %w", err)
			}
		}
		return nil
	},
}

var shareCmd = &cobra.Command{
	Use:   "share [id]",
	Short: "Upload a recording and print a link to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		loc, err := a.manager.Share(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to share recording: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), loc)
		return nil
	},
}

func init() {
	listCmd.Flags().Bool("yaml", false, "print recordings as YAML")
	deleteCmd.Flags().BoolP("yes", "y", false, "delete without asking")
}
