package cli

import (
	"context"
	"fmt"

	"github.com/morozRed/unitsmith/internal/engine"
	"github.com/spf13/cobra"
)

func (a *app) newBuildCommand() *cobra.Command {
	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Detect and run a project's build step",
	}

	detectCmd := &cobra.Command{
		Use:   "detect",
		Short: "Show the cached or detected build command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parseBuildRequest(cmd)
			if err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context, s *session) engine.Result {
				p, err := s.engine.DetectBuild(ctx, req)
				message := "no build step"
				if p.NeedsCompilation() {
					message = fmt.Sprintf("%s: %s", p.System, p.CommandLine())
				}
				return engine.Report(message, p, err)
			})
		},
	}

	compileCmd := &cobra.Command{
		Use:   "compile",
		Short: "Run the build command and record the outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parseBuildRequest(cmd)
			if err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context, s *session) engine.Result {
				res, err := s.engine.Compile(ctx, req)
				message := fmt.Sprintf("built in %s", res.Duration)
				if res.Skipped {
					message = "project has no build step"
				}
				return engine.Report(message, res, err)
			})
		},
	}

	for _, cmd := range []*cobra.Command{detectCmd, compileCmd} {
		addProjectFlags(cmd)
		cmd.Flags().Bool("force", false, "Detect again instead of using the cached profile")
	}
	buildCmd.AddCommand(detectCmd, compileCmd)
	return buildCmd
}

func parseBuildRequest(cmd *cobra.Command) (engine.BuildRequest, error) {
	var req engine.BuildRequest
	var err error
	if req.ProjectRef, err = ParseProjectRef(cmd); err != nil {
		return req, err
	}
	if req.ProjectRef.Root == "" && req.ProjectRef.Target == "" {
		if req.ProjectRef.Root, err = resolveWorkingDirectory(); err != nil {
			return req, err
		}
	}
	if req.Force, err = OptionalBoolFlag(cmd, "force", false); err != nil {
		return req, err
	}
	return req, nil
}
