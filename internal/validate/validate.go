// Package validate checks candidate buffers against their language's own
// syntax rules, in-process when a grammar exists and through an external
// syntax-only command otherwise.
package validate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/morozRed/unitsmith/internal/failure"
	"github.com/morozRed/unitsmith/internal/parser"
	"github.com/morozRed/unitsmith/internal/toolchain"
	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"
)

// Status is the three-way validation verdict.
type Status string

const (
	StatusValid       Status = "valid"
	StatusInvalid     Status = "invalid"
	StatusUnavailable Status = "unavailable"
)

// DefaultTimeout bounds external syntax checks.
const DefaultTimeout = 10 * time.Second

// Outcome is the result of validating one buffer. Message holds the
// rejection reason for Invalid and the reason no check ran for Unavailable.
type Outcome struct {
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Line      int           `json:"line,omitempty"`
	Output    string        `json:"output,omitempty"`
	Validator string        `json:"validator"`
	Duration  time.Duration `json:"duration"`
}

// Verified reports whether a check actually ran and accepted the buffer.
func (o Outcome) Verified() bool {
	return o.Status == StatusValid
}

// Err converts a rejection into a SyntaxInvalid failure and a skipped check
// into ValidatorUnavailable. Valid outcomes return nil.
func (o Outcome) Err() error {
	switch o.Status {
	case StatusInvalid:
		return &failure.Error{Kind: failure.SyntaxInvalid, Message: o.Message, Line: o.Line, Output: o.Output}
	case StatusUnavailable:
		return &failure.Error{Kind: failure.ValidatorUnavailable, Message: o.Message}
	default:
		return nil
	}
}

// Options configures a Validator.
type Options struct {
	Runner  *toolchain.Runner
	Timeout time.Duration
	// Overrides replaces the external commands of a language. A language
	// with an override is always checked externally.
	Overrides map[string][]parser.Command
	// TempDir holds candidate files; empty means os.TempDir().
	TempDir string
	Logger  *zap.Logger
}

// Validator is safe for concurrent use; every call works on its own
// parser and temporary directory.
type Validator struct {
	runner    *toolchain.Runner
	timeout   time.Duration
	overrides map[string][]parser.Command
	tempDir   string
	logger    *zap.Logger
}

func New(opts Options) *Validator {
	v := &Validator{
		runner:    opts.Runner,
		timeout:   opts.Timeout,
		overrides: opts.Overrides,
		tempDir:   opts.TempDir,
		logger:    opts.Logger,
	}
	if v.runner == nil {
		v.runner = toolchain.NewRunner()
	}
	if v.timeout <= 0 {
		v.timeout = DefaultTimeout
	}
	if v.logger == nil {
		v.logger = zap.NewNop()
	}
	return v
}

// Validate checks buf as a complete file of the profile's language.
func (v *Validator) Validate(ctx context.Context, buf []byte, p *parser.Profile) Outcome {
	started := time.Now()
	var out Outcome
	if commands, ok := v.overrides[p.Language]; ok && len(commands) > 0 {
		out = v.external(ctx, buf, p, commands)
	} else if p.InProcess() {
		out = inProcess(ctx, buf, p)
	} else {
		out = v.external(ctx, buf, p, p.Validators)
	}
	out.Duration = time.Since(started)

	v.logger.Debug("validated candidate",
		zap.String("language", p.Language),
		zap.String("validator", out.Validator),
		zap.String("status", string(out.Status)),
		zap.Int("line", out.Line),
		zap.Duration("duration", out.Duration),
	)
	return out
}

func inProcess(ctx context.Context, buf []byte, p *parser.Profile) Outcome {
	out := Outcome{Validator: "tree-sitter/" + p.Language}

	ps := sitter.NewParser()
	defer ps.Close()
	ps.SetLanguage(p.Grammar)
	tree, err := ps.ParseCtx(ctx, nil, buf)
	if err != nil {
		out.Status = StatusUnavailable
		out.Message = fmt.Sprintf("parse interrupted: %v", err)
		return out
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		out.Status = StatusValid
		return out
	}

	out.Status = StatusInvalid
	out.Message = "syntax error"
	if bad := firstError(root); bad != nil {
		out.Line = int(bad.StartPoint().Row) + 1
		out.Message = describe(bad, buf)
	}
	return out
}

// firstError returns the first error or missing node in textual order.
func firstError(n *sitter.Node) *sitter.Node {
	if n.IsMissing() || n.IsError() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.IsMissing() || child.HasError() {
			if found := firstError(child); found != nil {
				return found
			}
		}
	}
	return nil
}

func describe(n *sitter.Node, buf []byte) string {
	if n.IsMissing() {
		return fmt.Sprintf("missing %q", n.Type())
	}
	snippet := strings.TrimSpace(n.Content(buf))
	if i := strings.IndexByte(snippet, '\n'); i >= 0 {
		snippet = snippet[:i]
	}
	if len(snippet) > 40 {
		snippet = snippet[:40] + "..."
	}
	if snippet == "" {
		return "unexpected end of input"
	}
	return fmt.Sprintf("unexpected `%s`", snippet)
}

var outputLine = regexp.MustCompile(`candidate\.\w+:(\d+)`)

func (v *Validator) external(ctx context.Context, buf []byte, p *parser.Profile, commands []parser.Command) Outcome {
	out := Outcome{Status: StatusUnavailable}
	if len(commands) == 0 {
		out.Message = fmt.Sprintf("no validator configured for %s", p.Language)
		return out
	}

	dir, err := os.MkdirTemp(v.tempDir, "unitsmith-validate-*")
	if err != nil {
		out.Message = fmt.Sprintf("create temp dir: %v", err)
		return out
	}
	defer os.RemoveAll(dir)

	name := "candidate" + p.PrimaryExtension()
	file := filepath.Join(dir, name)
	if err := os.WriteFile(file, buf, 0o600); err != nil {
		out.Message = fmt.Sprintf("write candidate: %v", err)
		return out
	}

	tried := make([]string, 0, len(commands))
	for _, command := range commands {
		tried = append(tried, command.Binary)
		res, err := v.runner.Run(ctx, dir, v.timeout, command.Binary, command.Argv(file)...)
		out.Validator = command.Binary
		switch {
		case errors.Is(err, toolchain.ErrToolNotFound):
			continue
		case failure.Is(err, failure.Timeout):
			out.Message = fmt.Sprintf("%s timed out after %s", command.Binary, v.timeout)
			return out
		case err != nil:
			out.Message = err.Error()
			return out
		}

		output := strings.ReplaceAll(res.Output, file, name)
		if res.ExitCode == 0 {
			return Outcome{Status: StatusValid, Validator: command.Binary}
		}
		out.Status = StatusInvalid
		out.Output = output
		out.Message = summarize(output, res.ExitCode)
		if m := outputLine.FindStringSubmatch(output); m != nil {
			out.Line, _ = strconv.Atoi(m[1])
		}
		return out
	}

	out.Validator = ""
	out.Message = fmt.Sprintf("validator not found on host (tried %s)", strings.Join(tried, ", "))
	return out
}

// summarize picks the first line mentioning an error, else the first line.
func summarize(output string, exitCode int) string {
	var first string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if first == "" {
			first = line
		}
		if strings.Contains(strings.ToLower(line), "error") {
			return line
		}
	}
	if first == "" {
		return fmt.Sprintf("validator exited with status %d", exitCode)
	}
	return first
}
