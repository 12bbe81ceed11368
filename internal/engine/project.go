package engine

import (
	"context"

	"github.com/morozRed/unitsmith/internal/build"
	"github.com/morozRed/unitsmith/internal/failure"
	"github.com/morozRed/unitsmith/internal/project"
	"github.com/morozRed/unitsmith/internal/targets"
	"github.com/morozRed/unitsmith/internal/toolchain"
)

// BuildRequest addresses a project for detection or compilation.
type BuildRequest struct {
	ProjectRef
	Force bool `json:"force,omitempty"`
}

// DetectBuild returns the build profile for a project, detecting it when
// nothing is cached or Force is set.
func (e *Engine) DetectBuild(ctx context.Context, req BuildRequest) (build.Profile, error) {
	if err := ctx.Err(); err != nil {
		return build.Profile{}, err
	}
	b, err := e.requireBuilder()
	if err != nil {
		return build.Profile{}, err
	}
	root, name, err := e.projectRoot(req.ProjectRef)
	if err != nil {
		return build.Profile{}, err
	}
	return b.Detect(name, root, req.Force)
}

// Compile runs the project's build command and records the outcome.
func (e *Engine) Compile(ctx context.Context, req BuildRequest) (build.CompileResult, error) {
	b, err := e.requireBuilder()
	if err != nil {
		return build.CompileResult{}, err
	}
	root, name, err := e.projectRoot(req.ProjectRef)
	if err != nil {
		return build.CompileResult{}, err
	}
	return b.Compile(ctx, name, root, req.Force)
}

func (e *Engine) requireBuilder() (*build.Builder, error) {
	if e.builder == nil {
		return nil, failure.New(failure.Unsupported, "no build cache is configured")
	}
	return e.builder, nil
}

// ProjectInfo is a project's layout with its build profile.
type ProjectInfo struct {
	Name      string            `json:"name"`
	Structure project.Structure `json:"structure"`
	Build     *build.Profile    `json:"build,omitempty"`
}

// InspectProject scans a project and reports its layout.
func (e *Engine) InspectProject(ctx context.Context, ref ProjectRef) (ProjectInfo, error) {
	root, name, err := e.projectRoot(ref)
	if err != nil {
		return ProjectInfo{}, err
	}
	structure, err := project.Scan(ctx, root, e.registry, project.Options{Exclude: e.exclude})
	if err != nil {
		return ProjectInfo{}, err
	}
	info := ProjectInfo{Name: name, Structure: structure}
	if e.builder != nil {
		if p, err := e.builder.Detect(name, root, false); err == nil {
			info.Build = &p
		}
	}
	return info, nil
}

// ListTargets returns every configured target.
func (e *Engine) ListTargets() []targets.Target {
	if e.targets == nil {
		return nil
	}
	return e.targets.List()
}

// DoctorReport lists validator and build tool availability on this host.
type DoctorReport struct {
	Validators map[string]toolchain.Capability `json:"validators"`
	BuildTools map[string]toolchain.Capability `json:"build_tools"`
}

// Doctor probes the host for every validator and build tool. When root is
// set only languages with source files under it are marked as needed.
func (e *Engine) Doctor(ctx context.Context, root string) (DoctorReport, error) {
	var presence map[string]bool
	if root != "" {
		path, err := e.policy.Check(root)
		if err != nil {
			return DoctorReport{}, err
		}
		structure, err := project.Scan(ctx, path, e.registry, project.Options{Exclude: e.exclude})
		if err != nil {
			return DoctorReport{}, err
		}
		presence = toolchain.DetectLanguagePresence(structure.Files, e.registry)
	}
	return DoctorReport{
		Validators: toolchain.ProbeValidators(e.registry, presence),
		BuildTools: toolchain.ProbeBuildTools(nil),
	}, nil
}
