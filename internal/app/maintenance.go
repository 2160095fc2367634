package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/jzydn/jay-clips-archive/internal/clips"
)

func newSweepCommand() *cobra.Command {
	opts := clips.SweepOptions{}
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "delete stored files that no clip references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, _, err := loadConfigAndLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			repo, closeRepo, err := openClipRepository(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeRepo()

			blobs, err := openBlobStore(ctx, cfg)
			if err != nil {
				return err
			}

			report, err := newClipService(repo, blobs, cfg).Sweep(ctx, opts)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().DurationVar(&opts.Grace, "grace", time.Hour, "skip files modified within this window")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report orphans without deleting them")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 4, "parallel deletes")
	return cmd
}

func newHashKeyCommand() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-key <key>",
		Short: "print a bcrypt hash for CLIPS_OPERATOR_KEY_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			if key == "" {
				return errors.New("operator key must not be empty")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
			if err != nil {
				return fmt.Errorf("hash operator key: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return err
		},
	}
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}
