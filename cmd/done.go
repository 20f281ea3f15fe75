package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kilianp07/jobdone/core/session"
)

var doneCmd = &cobra.Command{
	Use:   "done <dock-set> <dock-no>",
	Short: "Report a finished dock",
	Args:  cobra.ExactArgs(2),
	RunE:  runDone,
}

func init() {
	rootCmd.AddCommand(doneCmd)
}

func runDone(cmd *cobra.Command, args []string) error {
	set, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("dock set: %w", err)
	}
	dock, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("dock number: %w", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cat, err := cfg.Catalog()
	if err != nil {
		return err
	}
	if err := cat.Validate(set, dock); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	s, err := openSession(ctx, cfg, session.RoleAdmin)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.waitConnected(ctx); err != nil {
		return err
	}
	reqID, err := s.SubmitCompletion(set, dock)
	if err != nil {
		return err
	}
	ev, err := s.Await(ctx, reqID)
	if err != nil {
		return fmt.Errorf("request %s: %w", reqID, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), ev.ID)
	return nil
}
