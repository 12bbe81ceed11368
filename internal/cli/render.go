package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/morozRed/unitsmith/internal/build"
	"github.com/morozRed/unitsmith/internal/engine"
	"github.com/morozRed/unitsmith/internal/fileutil"
	"github.com/morozRed/unitsmith/internal/ledger"
	"github.com/morozRed/unitsmith/internal/targets"
	"github.com/morozRed/unitsmith/internal/toolchain"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	okColor      = color.New(color.FgGreen, color.Bold)
	failColor    = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
	addedColor   = color.New(color.FgGreen)
	removedColor = color.New(color.FgRed)
	hunkColor    = color.New(color.FgCyan)
)

// emit prints res and turns a failed result into ErrReported.
func (a *app) emit(cmd *cobra.Command, res engine.Result) error {
	w := cmd.OutOrStdout()
	if a.asJSON {
		if err := fileutil.PrintJSON(w, res); err != nil {
			return err
		}
	} else {
		renderText(w, res)
	}
	if !res.Success {
		return ErrReported
	}
	return nil
}

func renderText(w io.Writer, res engine.Result) {
	if res.Success {
		fmt.Fprintf(w, "%s %s\n", okColor.Sprint("ok"), res.Message)
	} else {
		fmt.Fprintf(w, "%s %s\n", failColor.Sprint("error"), res.Message)
	}
	switch detail := res.Detail.(type) {
	case nil:
	case engine.MutationResult:
		renderMutation(w, detail)
	case engine.ValidateResult:
		fmt.Fprintf(w, "  validator: %s (%s)\n", detail.Outcome.Validator, detail.Outcome.Duration.Round(time.Millisecond))
	case engine.UnitList:
		for _, u := range detail.Units {
			mark := ""
			if u.Registered {
				mark = okColor.Sprint(" registered")
			}
			fmt.Fprintf(w, "  %4d-%-4d %-12s %s%s\n", u.StartLine, u.EndLine, u.Kind, u.Name, mark)
		}
		renderWarnings(w, detail.Warnings)
	case unitDetail:
		fmt.Fprint(w, detail.Text)
		renderWarnings(w, detail.Warnings)
	case []ledger.BackupRecord:
		for _, rec := range detail {
			fmt.Fprintf(w, "  %s  %s  %-12s %s  %s", rec.ID, rec.Timestamp.Local().Format("2006-01-02 15:04:05"), rec.Operation, fileutil.ShortHash(rec.Hash), rec.Path)
			if rec.Corrupt {
				fmt.Fprint(w, failColor.Sprint(" corrupt"))
			}
			if rec.Note != "" {
				fmt.Fprint(w, dimColor.Sprintf("  # %s", rec.Note))
			}
			fmt.Fprintln(w)
		}
	case []ledger.Checkpoint:
		for _, cp := range detail {
			fmt.Fprintf(w, "  %s  %s  %-16s %d files  %s\n", cp.ID, cp.Timestamp.Local().Format("2006-01-02 15:04:05"), cp.Target, len(cp.Files), cp.Description)
		}
	case ledger.RestoreResult:
		if detail.SafetyBackup != "" {
			fmt.Fprintf(w, "  previous content saved as %s\n", detail.SafetyBackup)
		}
	case ledger.CheckpointRestore:
		for _, path := range detail.Restored {
			fmt.Fprintf(w, "  restored  %s\n", path)
		}
		for _, path := range detail.Unchanged {
			fmt.Fprintln(w, dimColor.Sprintf("  unchanged %s", path))
		}
	case ledger.VerifyReport:
		for _, c := range detail.Corrupt {
			fmt.Fprintf(w, "  %s %s %s %s: %s\n", c.Kind, c.ID, fileutil.ShortHash(c.Hash), c.Path, failColor.Sprint(c.Reason))
		}
	case diffDetail:
		renderDiff(w, detail.Diff)
	case build.CompileResult:
		renderOutput(w, detail.Output)
	case []targets.Target:
		for _, t := range detail {
			fmt.Fprintf(w, "  %-20s %s", t.Name, t.SourceFile)
			if t.Unresolved != "" {
				fmt.Fprint(w, warnColor.Sprintf("  (%s)", t.Unresolved))
			}
			fmt.Fprintln(w)
		}
	case engine.DoctorReport:
		renderCapabilities(w, "validators", detail.Validators)
		renderCapabilities(w, "build tools", detail.BuildTools)
	default:
		renderYAML(w, detail)
	}
	if !carriesOutput(res.Detail) {
		renderOutput(w, res.Output)
	}
}

// carriesOutput reports whether detail already printed the captured output.
func carriesOutput(detail any) bool {
	switch d := detail.(type) {
	case build.CompileResult:
		return true
	case engine.MutationResult:
		return d.Build != nil
	}
	return false
}

func renderMutation(w io.Writer, m engine.MutationResult) {
	if m.BackupID != "" {
		fmt.Fprintf(w, "  backup: %s\n", m.BackupID)
	}
	if m.Validation.Status != "" {
		fmt.Fprintf(w, "  validation: %s", m.Validation.Status)
		if m.Validation.Validator != "" {
			fmt.Fprintf(w, " (%s)", m.Validation.Validator)
		}
		fmt.Fprintln(w)
	}
	if m.StartLine > 0 {
		fmt.Fprintf(w, "  lines: %d-%d\n", m.StartLine, m.EndLine)
	}
	renderWarnings(w, m.Warnings)
	renderDiff(w, m.Diff)
	if m.Build != nil {
		renderOutput(w, m.Build.Output)
	}
}

func renderWarnings(w io.Writer, warnings []string) {
	for _, warning := range warnings {
		fmt.Fprintln(w, warnColor.Sprintf("  warning: %s", warning))
	}
}

func renderDiff(w io.Writer, diff string) {
	for _, line := range strings.SplitAfter(diff, "\n") {
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			fmt.Fprint(w, dimColor.Sprint(line))
		case strings.HasPrefix(line, "@@"):
			fmt.Fprint(w, hunkColor.Sprint(line))
		case strings.HasPrefix(line, "+"):
			fmt.Fprint(w, addedColor.Sprint(line))
		case strings.HasPrefix(line, "-"):
			fmt.Fprint(w, removedColor.Sprint(line))
		default:
			fmt.Fprint(w, line)
		}
	}
}

func renderOutput(w io.Writer, output string) {
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return
	}
	for _, line := range strings.Split(output, "\n") {
		fmt.Fprintln(w, dimColor.Sprintf("  | %s", line))
	}
}

func renderCapabilities(w io.Writer, title string, capabilities map[string]toolchain.Capability) {
	fmt.Fprintf(w, "  %s:\n", title)
	for _, name := range toolchain.SortedKeys(capabilities) {
		c := capabilities[name]
		status := okColor.Sprint("available")
		if !c.Available {
			status = warnColor.Sprint(c.Reason)
		}
		fmt.Fprintf(w, "    %-12s %-14s %s\n", name, c.Tool, status)
	}
}

// renderYAML prints any other detail as YAML.
func renderYAML(w io.Writer, detail any) {
	data, err := yaml.Marshal(detail)
	if err != nil {
		fmt.Fprintf(w, "  %v\n", detail)
		return
	}
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
}
