package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/morozRed/unitsmith/internal/build"
	"github.com/morozRed/unitsmith/internal/engine"
	"github.com/morozRed/unitsmith/internal/languages"
	"github.com/morozRed/unitsmith/internal/ledger"
	"github.com/morozRed/unitsmith/internal/sandbox"
	"github.com/morozRed/unitsmith/internal/targets"
	"github.com/morozRed/unitsmith/internal/toolchain"
	"github.com/morozRed/unitsmith/internal/validate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// session is an opened engine with the ledger it owns.
type session struct {
	engine *engine.Engine
	ledger *ledger.Store
}

func (a *app) openSession() (*session, error) {
	cfg := a.cfg
	policy, err := sandbox.New(cfg.AllowedRoot)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.StoreDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	registry := languages.NewDefaultRegistry()
	known, err := targets.Load(cfg, registry)
	if err != nil {
		return nil, err
	}
	store, err := ledger.Open(ledger.Options{
		Dir:     cfg.StoreDir,
		Sandbox: policy,
		Logger:  a.logger.Named("ledger"),
	})
	if err != nil {
		return nil, err
	}
	cache, err := build.LoadCache(cfg.StoreDir)
	if err != nil {
		store.Close()
		return nil, err
	}

	exclude := append([]string(nil), cfg.Exclude...)
	if cwd, err := resolveWorkingDirectory(); err == nil {
		rules, err := LoadIgnoreRules(cwd)
		if err != nil {
			store.Close()
			return nil, err
		}
		exclude = append(exclude, rules...)
	}

	runner := toolchain.NewRunner()
	e, err := engine.New(engine.Options{
		Registry: registry,
		Validator: validate.New(validate.Options{
			Runner:    runner,
			Timeout:   cfg.GetValidatorTimeout(),
			Overrides: cfg.ValidatorOverrides(),
			Logger:    a.logger.Named("validate"),
		}),
		Ledger:  store,
		Sandbox: policy,
		Builder: build.NewBuilder(cache, runner, cfg.GetBuildTimeout(), a.logger.Named("build")),
		Targets: known,
		Exclude: exclude,
		Logger:  a.logger.Named("engine"),
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	return &session{engine: e, ledger: store}, nil
}

func (s *session) close() {
	if err := s.ledger.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close ledger: %v\n", err)
	}
}

// run opens a session, performs op and prints its Result.
func (a *app) run(cmd *cobra.Command, op func(ctx context.Context, s *session) engine.Result) error {
	s, err := a.openSession()
	if err != nil {
		return a.emit(cmd, engine.Report("", nil, err))
	}
	defer s.close()
	res := op(cmd.Context(), s)
	if !res.Success {
		a.logger.Debug("operation failed", zap.String("command", cmd.CommandPath()), zap.String("kind", string(res.Kind)))
	}
	return a.emit(cmd, res)
}
