package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/morozRed/unitsmith/internal/engine"
	"github.com/morozRed/unitsmith/internal/parser"
	"github.com/spf13/cobra"
)

func (a *app) newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a file, or a candidate for it, without writing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := ParseFileRef(cmd)
			if err != nil {
				return err
			}
			req := engine.ValidateRequest{FileRef: ref}
			candidate, err := OptionalStringFlag(cmd, "candidate")
			if err != nil {
				return err
			}
			if candidate != "" {
				data, err := os.ReadFile(candidate)
				if err != nil {
					return fmt.Errorf("failed to read candidate: %w", err)
				}
				req.Code = string(data)
			}
			return a.run(cmd, func(ctx context.Context, s *session) engine.Result {
				res, err := s.engine.ValidateCandidate(ctx, req)
				return engine.Report(fmt.Sprintf("%s is %s", filepath.Base(res.File), res.Outcome.Status), res, err)
			})
		},
	}
	addFileFlags(cmd)
	cmd.Flags().String("candidate", "", "Validate this file's content as if it replaced the source file")
	return cmd
}

func (a *app) newUnitsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "units",
		Short: "List the top-level units of a source file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := ParseFileRef(cmd)
			if err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context, s *session) engine.Result {
				list, err := s.engine.ListUnits(ctx, ref)
				return engine.Report(fmt.Sprintf("%d units in %s", len(list.Units), filepath.Base(list.File)), list, err)
			})
		},
	}
	addFileFlags(cmd)
	return cmd
}

func (a *app) newShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print one unit with its decorators and documentation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := ParseFileRef(cmd)
			if err != nil {
				return err
			}
			name, err := OptionalStringFlag(cmd, "unit")
			if err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context, s *session) engine.Result {
				located, err := s.engine.ShowUnit(ctx, ref, name)
				u := located.Unit
				return engine.Report(fmt.Sprintf("%s %s at lines %d-%d", u.Kind, u.Name, u.StartLine, u.EndLine), unitDetail{SourceUnit: u, Text: u.Text, Warnings: located.Warnings}, err)
			})
		},
	}
	addFileFlags(cmd)
	cmd.Flags().StringP("unit", "u", "", "Unit name")
	_ = cmd.MarkFlagRequired("unit")
	return cmd
}

// unitDetail exposes the unit text, which SourceUnit keeps out of JSON.
type unitDetail struct {
	parser.SourceUnit
	Text     string   `json:"text"`
	Warnings []string `json:"warnings,omitempty"`
}

func (a *app) newProjectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Show a project's language, entry point, sources and build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := ParseProjectRef(cmd)
			if err != nil {
				return err
			}
			if ref.Root == "" && ref.Target == "" {
				if ref.Root, err = resolveWorkingDirectory(); err != nil {
					return err
				}
			}
			return a.run(cmd, func(ctx context.Context, s *session) engine.Result {
				info, err := s.engine.InspectProject(ctx, ref)
				return engine.Report(fmt.Sprintf("%s: %s project, %d source files", info.Name, info.Structure.Language, len(info.Structure.Files)), info, err)
			})
		},
	}
	addProjectFlags(cmd)
	return cmd
}

func (a *app) newTargetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List configured targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *session) engine.Result {
				list := s.engine.ListTargets()
				return engine.Report(fmt.Sprintf("%d targets", len(list)), list, nil)
			})
		},
	}
}

func (a *app) newDoctorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Report which validators and build tools this host provides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := OptionalStringFlag(cmd, "root")
			if err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context, s *session) engine.Result {
				report, err := s.engine.Doctor(ctx, root)
				missing := 0
				for _, capability := range report.Validators {
					if capability.Present && !capability.Available {
						missing++
					}
				}
				return engine.Report(fmt.Sprintf("%d needed validators missing", missing), report, err)
			})
		},
	}
	cmd.Flags().String("root", "", "Only mark languages present under this directory as needed")
	return cmd
}
