package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/jobdone/core/session"
)

var ackCmd = &cobra.Command{
	Use:   "ack <event-id>",
	Short: "Acknowledge a dock completion",
	Args:  cobra.ExactArgs(1),
	RunE:  runAck,
}

func init() {
	rootCmd.AddCommand(ackCmd)
}

func runAck(cmd *cobra.Command, args []string) error {
	id := args[0]
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	s, err := openSession(ctx, cfg, session.RoleSignal)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.waitConnected(ctx); err != nil {
		return err
	}
	reqID, err := s.Acknowledge(id)
	if err != nil {
		return err
	}
	ev, err := s.Await(ctx, reqID)
	if err != nil {
		return fmt.Errorf("acknowledge %s: %w", id, err)
	}
	at := "unknown time"
	if ev.AckedAt != nil {
		at = ev.AckedAt.Format("2006-01-02 15:04:05")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s acked at %s\n", id, at)
	return nil
}
