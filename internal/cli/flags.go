package cli

import (
	"fmt"
	"strings"

	"github.com/morozRed/unitsmith/internal/engine"
	"github.com/spf13/cobra"
)

func OptionalStringFlag(cmd *cobra.Command, name string) (string, error) {
	if cmd == nil || cmd.Flags().Lookup(name) == nil {
		return "", nil
	}
	value, err := cmd.Flags().GetString(name)
	if err != nil {
		return "", fmt.Errorf("failed to read --%s flag: %w", name, err)
	}
	return strings.TrimSpace(value), nil
}

func OptionalBoolFlag(cmd *cobra.Command, name string, fallback bool) (bool, error) {
	if cmd == nil || cmd.Flags().Lookup(name) == nil {
		return fallback, nil
	}
	value, err := cmd.Flags().GetBool(name)
	if err != nil {
		return false, fmt.Errorf("failed to read --%s flag: %w", name, err)
	}
	return value, nil
}

func addFileFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("target", "t", "", "Configured target whose source file to use")
	cmd.Flags().StringP("file", "f", "", "Source file to operate on")
	cmd.Flags().String("language", "", "Language of the file when the extension is ambiguous")
}

func addProjectFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("target", "t", "", "Configured target whose project to use")
	cmd.Flags().String("root", "", "Project root directory")
}

func addCodeFlags(cmd *cobra.Command) {
	cmd.Flags().String("code", "", "Unit source text")
	cmd.Flags().String("code-file", "", "Read unit source text from a file (- for stdin)")
}

func ParseFileRef(cmd *cobra.Command) (engine.FileRef, error) {
	var ref engine.FileRef
	var err error
	if ref.Target, err = OptionalStringFlag(cmd, "target"); err != nil {
		return ref, err
	}
	if ref.File, err = OptionalStringFlag(cmd, "file"); err != nil {
		return ref, err
	}
	if ref.Language, err = OptionalStringFlag(cmd, "language"); err != nil {
		return ref, err
	}
	return ref, nil
}

func ParseProjectRef(cmd *cobra.Command) (engine.ProjectRef, error) {
	var ref engine.ProjectRef
	var err error
	if ref.Target, err = OptionalStringFlag(cmd, "target"); err != nil {
		return ref, err
	}
	if ref.Root, err = OptionalStringFlag(cmd, "root"); err != nil {
		return ref, err
	}
	return ref, nil
}
