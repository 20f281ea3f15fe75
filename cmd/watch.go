package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/jobdone/core/reconcile"
	"github.com/kilianp07/jobdone/core/session"
)

var watchRole string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow dock completions live",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchRole, "role", string(session.RoleSignal), "session role: admin or signal")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	role := session.Role(watchRole)
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", watchRole)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	s, err := openSession(connectCtx, cfg, role)
	cancel()
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.changed:
			printView(out, s.Connected(), s.Entries())
		}
	}
}

func printView(out io.Writer, connected bool, entries []reconcile.Entry) {
	state := "connected"
	if !connected {
		state = "disconnected"
	}
	fmt.Fprintf(out, "-- %s, %d events --\n", state, len(entries))
	tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "SET\tDOCK\tSTATUS\tCREATED\tID")
	for _, e := range entries {
		status := string(e.Status)
		if e.Optimistic {
			status = "pending"
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", e.DockSetID, e.DockNo, status, e.CreatedAt.Local().Format(time.TimeOnly), e.ID)
	}
	_ = tw.Flush()
}
