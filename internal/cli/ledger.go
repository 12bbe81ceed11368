package cli

import (
	"context"
	"fmt"

	"github.com/morozRed/unitsmith/internal/engine"
	"github.com/morozRed/unitsmith/internal/failure"
	"github.com/spf13/cobra"
)

func (a *app) newBackupsCommand() *cobra.Command {
	backupsCmd := &cobra.Command{
		Use:   "backups",
		Short: "List, diff, restore and prune single-file backups",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := ParseFileRef(cmd)
			if err != nil {
				return err
			}
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return fmt.Errorf("failed to read --limit flag: %w", err)
			}
			return a.run(cmd, func(ctx context.Context, s *session) engine.Result {
				records, err := s.engine.ListBackups(ctx, ref, limit)
				return engine.Report(fmt.Sprintf("%d backups", len(records)), records, err)
			})
		},
	}
	addFileFlags(listCmd)
	listCmd.Flags().Int("limit", 20, "Maximum number of backups to list (0 for all)")

	restoreCmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Write a backup back to its file, or to --dest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest, err := OptionalStringFlag(cmd, "dest")
			if err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context, s *session) engine.Result {
				res, err := s.engine.RestoreBackup(ctx, args[0], dest)
				return engine.Report(fmt.Sprintf("restored %s to %s", args[0], res.Path), res, err)
			})
		},
	}
	restoreCmd.Flags().String("dest", "", "Destination path (default: the backed-up file)")

	diffCmd := &cobra.Command{
		Use:   "diff <id>",
		Short: "Diff a backup against the file's current content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *session) engine.Result {
				diff, err := s.engine.DiffBackup(ctx, args[0])
				message := "file differs from backup " + args[0]
				if diff == "" {
					message = "file matches backup " + args[0]
				}
				return engine.Report(message, diffDetail{Diff: diff}, err)
			})
		},
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old backups and checkpoints and unreferenced stored copies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			days, keep := a.cfg.Backup.OlderThanDays, a.cfg.Backup.KeepRecent
			if cmd.Flags().Changed("older-than-days") {
				days, _ = cmd.Flags().GetInt("older-than-days")
			}
			if cmd.Flags().Changed("keep-recent") {
				keep, _ = cmd.Flags().GetInt("keep-recent")
			}
			return a.run(cmd, func(ctx context.Context, s *session) engine.Result {
				report, err := s.engine.CleanupBackups(ctx, days, keep)
				return engine.Report(fmt.Sprintf("removed %d backups, %d checkpoints, %d stored copies", report.BackupsRemoved, report.CheckpointsRemoved, report.ObjectsRemoved), report, err)
			})
		},
	}
	cleanupCmd.Flags().Int("older-than-days", 0, "Age threshold (default from config)")
	cleanupCmd.Flags().Int("keep-recent", 0, "Backups per file always kept (default from config)")

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Report ledger entries whose stored copy is missing or damaged",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *session) engine.Result {
				report, err := s.engine.VerifyLedger(ctx)
				if err == nil && len(report.Corrupt) > 0 {
					err = failure.New(failure.IOFailure, "%d ledger entries are corrupt", len(report.Corrupt))
				}
				return engine.Report(fmt.Sprintf("%d backups and %d checkpoints verified", report.Backups, report.Checkpoints), report, err)
			})
		},
	}

	backupsCmd.AddCommand(listCmd, restoreCmd, diffCmd, cleanupCmd, verifyCmd)
	return backupsCmd
}

func (a *app) newCheckpointCommand() *cobra.Command {
	checkpointCmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Snapshot and restore every source file of a project",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Snapshot every source file of a target's project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := ParseProjectRef(cmd)
			if err != nil {
				return err
			}
			description, err := OptionalStringFlag(cmd, "description")
			if err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context, s *session) engine.Result {
				cp, err := s.engine.CreateCheckpoint(ctx, engine.CheckpointRequest{ProjectRef: ref, Description: description})
				return engine.Report(fmt.Sprintf("checkpoint %s holds %d files", cp.ID, len(cp.Files)), cp, err)
			})
		},
	}
	addProjectFlags(createCmd)
	createCmd.Flags().StringP("description", "d", "", "What the checkpoint is for")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List checkpoints, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := OptionalStringFlag(cmd, "target")
			if err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context, s *session) engine.Result {
				list, err := s.engine.ListCheckpoints(ctx, target)
				return engine.Report(fmt.Sprintf("%d checkpoints", len(list)), list, err)
			})
		},
	}
	listCmd.Flags().StringP("target", "t", "", "Only list checkpoints of this target")

	restoreCmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore every file of a checkpoint, or none",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *session) engine.Result {
				res, err := s.engine.RestoreCheckpoint(ctx, args[0])
				return engine.Report(fmt.Sprintf("restored %d files from %s", len(res.Restored), args[0]), res, err)
			})
		},
	}

	checkpointCmd.AddCommand(createCmd, listCmd, restoreCmd)
	return checkpointCmd
}

// diffDetail wraps diff text so JSON output names the field.
type diffDetail struct {
	Diff string `json:"diff"`
}
