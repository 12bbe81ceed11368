package build

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/morozRed/unitsmith/internal/failure"
	"github.com/morozRed/unitsmith/internal/toolchain"
	"go.uber.org/zap"
)

// DefaultTimeout bounds one build invocation.
const DefaultTimeout = 5 * time.Minute

// Builder detects, caches and runs build commands.
type Builder struct {
	cache   *Cache
	runner  *toolchain.Runner
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

func NewBuilder(cache *Cache, runner *toolchain.Runner, timeout time.Duration, logger *zap.Logger) *Builder {
	if runner == nil {
		runner = toolchain.NewRunner()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{cache: cache, runner: runner, timeout: timeout, logger: logger, now: time.Now}
}

// Detect returns the cached profile for root unless force is set or nothing
// is cached, in which case the project is inspected again. Systems whose
// last build failed are passed over when an alternate manifest exists.
func (b *Builder) Detect(target, root string, force bool) (Profile, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return Profile{}, failure.Wrap(failure.IOFailure, err, "resolve %s", root)
	}
	if !force {
		if p, ok := b.cache.Profile(root); ok {
			if target != "" {
				p.Target = target
			}
			return p, nil
		}
	}

	p := Detect(root, b.cache.FailedSystems(root))
	p.Target = target
	p.DetectedAt = b.now()
	if err := b.cache.Put(p); err != nil {
		b.logger.Warn("build cache not saved", zap.Error(err))
	}
	if cached, ok := b.cache.Profile(root); ok {
		p = cached
	}
	b.logger.Debug("build detected",
		zap.String("root", root),
		zap.String("system", p.System),
		zap.String("command", p.CommandLine()),
	)
	return p, nil
}

// CompileResult is one build invocation.
type CompileResult struct {
	Profile  Profile       `json:"profile"`
	Output   string        `json:"output,omitempty"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	Skipped  bool          `json:"skipped,omitempty"`
	Errors   []Failure     `json:"recent_errors,omitempty"`
}

// Compile runs the project's build command. A project with no build step
// is reported as skipped. A failing build is recorded and returned as
// BuildFailed with the captured output; it is never retried.
func (b *Builder) Compile(ctx context.Context, target, root string, force bool) (CompileResult, error) {
	p, err := b.Detect(target, root, force)
	if err != nil {
		return CompileResult{}, err
	}
	result := CompileResult{Profile: p}
	if !p.NeedsCompilation() {
		result.Skipped = true
		return result, nil
	}

	res, runErr := b.runner.Run(ctx, p.Root, b.timeout, p.Command[0], p.Command[1:]...)
	result.Output = res.Output
	result.ExitCode = res.ExitCode
	result.Duration = res.Duration

	var buildErr error
	switch {
	case errors.Is(runErr, toolchain.ErrToolNotFound):
		buildErr = &failure.Error{
			Kind:    failure.BuildFailed,
			Message: fmt.Sprintf("%s is not installed", p.Command[0]),
			Err:     runErr,
		}
	case runErr != nil:
		buildErr = runErr
	case res.ExitCode != 0:
		buildErr = &failure.Error{
			Kind:    failure.BuildFailed,
			Message: fmt.Sprintf("%s exited with status %d", p.CommandLine(), res.ExitCode),
			Output:  res.Output,
		}
	}

	if buildErr != nil {
		f := Failure{System: p.System, Command: p.Command, Error: errorText(buildErr, res.Output), At: b.now()}
		if err := b.cache.RecordFailure(p.Root, f); err != nil {
			b.logger.Warn("build failure not recorded", zap.Error(err))
		}
		result.Errors = b.cache.Errors(p.Root)
		b.logger.Info("build failed", zap.String("root", p.Root), zap.String("system", p.System), zap.Error(buildErr))
		return result, buildErr
	}

	if err := b.cache.RecordSuccess(p.Root, b.now()); err != nil {
		b.logger.Warn("build success not recorded", zap.Error(err))
	}
	if cached, ok := b.cache.Profile(p.Root); ok {
		result.Profile = cached
	}
	b.logger.Info("build succeeded", zap.String("root", p.Root), zap.Duration("duration", res.Duration))
	return result, nil
}

// History returns recent build failures for root.
func (b *Builder) History(root string) []Failure {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil
	}
	return b.cache.Errors(abs)
}

// errorText keeps the last lines of output, which is where compilers put
// the summary.
func errorText(err error, output string) string {
	const keep = 20
	output = strings.TrimSpace(output)
	if output == "" {
		return err.Error()
	}
	lines := strings.Split(output, "\n")
	if len(lines) > keep {
		lines = lines[len(lines)-keep:]
	}
	return strings.Join(lines, "\n")
}
