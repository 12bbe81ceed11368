package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/morozRed/unitsmith/internal/engine"
	"github.com/spf13/cobra"
)

func (a *app) newInjectCommand(use string, dryRun bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: "Append a new unit to a source file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parseMutation(cmd, true)
			if err != nil {
				return err
			}
			dry := dryRun
			if !dry {
				if dry, err = OptionalBoolFlag(cmd, "dry-run", false); err != nil {
					return err
				}
			}
			return a.run(cmd, func(ctx context.Context, s *session) engine.Result {
				if dry {
					res, err := s.engine.DryRunInject(ctx, req)
					return engine.Report(fmt.Sprintf("%s can be injected into %s", res.Unit, filepath.Base(res.File)), res, err)
				}
				res, err := s.engine.InjectUnit(ctx, req)
				return engine.Report(fmt.Sprintf("injected %s into %s", res.Unit, filepath.Base(res.File)), res, err)
			})
		},
	}
	if dryRun {
		cmd.Short = "Run the inject pipeline without writing"
	} else {
		cmd.Flags().Bool("dry-run", false, "Validate and diff without writing")
	}
	addFileFlags(cmd)
	addCodeFlags(cmd)
	cmd.Flags().StringP("unit", "u", "", "Unit name (default: the first unit the code defines)")
	cmd.Flags().Bool("auto-import", false, "Move leading import lines of the code into the file's import area")
	cmd.Flags().Bool("compile", false, "Build the project after writing")
	cmd.Flags().String("note", "", "Note stored with the backup")
	return cmd
}

func (a *app) newRemoveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Delete a unit from a source file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parseMutation(cmd, false)
			if err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context, s *session) engine.Result {
				res, err := s.engine.RemoveUnit(ctx, req)
				return engine.Report(fmt.Sprintf("removed %s from %s", res.Unit, filepath.Base(res.File)), res, err)
			})
		},
	}
	addFileFlags(cmd)
	cmd.Flags().StringP("unit", "u", "", "Unit name")
	cmd.Flags().Bool("compile", false, "Build the project after writing")
	cmd.Flags().String("note", "", "Note stored with the backup")
	_ = cmd.MarkFlagRequired("unit")
	return cmd
}

func (a *app) newReplaceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replace",
		Short: "Replace a unit's decorators, documentation and body",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parseMutation(cmd, true)
			if err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context, s *session) engine.Result {
				res, err := s.engine.ReplaceUnit(ctx, req)
				return engine.Report(fmt.Sprintf("replaced %s in %s", res.Unit, filepath.Base(res.File)), res, err)
			})
		},
	}
	addFileFlags(cmd)
	addCodeFlags(cmd)
	cmd.Flags().StringP("unit", "u", "", "Unit name")
	cmd.Flags().Bool("compile", false, "Build the project after writing")
	cmd.Flags().String("note", "", "Note stored with the backup")
	_ = cmd.MarkFlagRequired("unit")
	return cmd
}

func parseMutation(cmd *cobra.Command, withCode bool) (engine.MutationRequest, error) {
	var req engine.MutationRequest
	var err error
	if req.FileRef, err = ParseFileRef(cmd); err != nil {
		return req, err
	}
	if req.Unit, err = OptionalStringFlag(cmd, "unit"); err != nil {
		return req, err
	}
	if req.Note, err = OptionalStringFlag(cmd, "note"); err != nil {
		return req, err
	}
	if req.AutoImport, err = OptionalBoolFlag(cmd, "auto-import", false); err != nil {
		return req, err
	}
	if req.Compile, err = OptionalBoolFlag(cmd, "compile", false); err != nil {
		return req, err
	}
	if withCode {
		if req.Code, err = readCode(cmd); err != nil {
			return req, err
		}
	}
	return req, nil
}
