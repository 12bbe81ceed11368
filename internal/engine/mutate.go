package engine

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/morozRed/unitsmith/internal/build"
	"github.com/morozRed/unitsmith/internal/failure"
	"github.com/morozRed/unitsmith/internal/fileutil"
	"github.com/morozRed/unitsmith/internal/imports"
	"github.com/morozRed/unitsmith/internal/locator"
	"github.com/morozRed/unitsmith/internal/parser"
	"github.com/morozRed/unitsmith/internal/search"
	"github.com/morozRed/unitsmith/internal/splice"
	"github.com/morozRed/unitsmith/internal/validate"
	"go.uber.org/zap"
)

// Operation names recorded on backups.
const (
	OpInject  = "injectUnit"
	OpRemove  = "removeUnit"
	OpReplace = "replaceUnit"
)

const maxSuggestions = 3

// MutationRequest describes one insert, remove or replace.
type MutationRequest struct {
	FileRef
	// Unit is the unit to remove or replace. For inject it may be empty, in
	// which case the first unit the code defines is used.
	Unit string `json:"unit,omitempty"`
	Code string `json:"code,omitempty"`
	// AutoImport moves import lines heading Code into the file's import area.
	AutoImport bool   `json:"auto_import,omitempty"`
	Compile    bool   `json:"compile,omitempty"`
	Note       string `json:"note,omitempty"`
}

// MutationResult describes a mutation, written or not.
type MutationResult struct {
	Operation  string               `json:"operation"`
	File       string               `json:"file"`
	Language   string               `json:"language"`
	Unit       string               `json:"unit"`
	StartLine  int                  `json:"start_line,omitempty"`
	EndLine    int                  `json:"end_line,omitempty"`
	Diff       string               `json:"diff"`
	Warnings   []string             `json:"warnings,omitempty"`
	Validation validate.Outcome     `json:"validation"`
	Verified   bool                 `json:"verified"`
	Written    bool                 `json:"written"`
	BackupID   string               `json:"backup_id,omitempty"`
	Build      *build.CompileResult `json:"build,omitempty"`
}

// InjectUnit appends a unit to the file.
func (e *Engine) InjectUnit(ctx context.Context, req MutationRequest) (MutationResult, error) {
	return e.mutate(ctx, OpInject, req, false)
}

// DryRunInject runs the whole inject pipeline except the backup and write.
func (e *Engine) DryRunInject(ctx context.Context, req MutationRequest) (MutationResult, error) {
	return e.mutate(ctx, OpInject, req, true)
}

// RemoveUnit deletes a unit and one trailing blank line.
func (e *Engine) RemoveUnit(ctx context.Context, req MutationRequest) (MutationResult, error) {
	return e.mutate(ctx, OpRemove, req, false)
}

// ReplaceUnit substitutes a unit's full span with new code.
func (e *Engine) ReplaceUnit(ctx context.Context, req MutationRequest) (MutationResult, error) {
	return e.mutate(ctx, OpReplace, req, false)
}

// mutate is the shared pipeline: locate, splice, check for duplicates,
// validate, back up, write. Nothing is written unless every earlier step
// succeeds, and the backup is recorded before the file is replaced.
func (e *Engine) mutate(ctx context.Context, op string, req MutationRequest, dryRun bool) (MutationResult, error) {
	res := MutationResult{Operation: op, Unit: req.Unit}
	r, err := e.resolve(req.FileRef)
	if err != nil {
		return res, err
	}
	res.File = r.path
	res.Language = r.profile.Language
	if op != OpRemove && strings.TrimSpace(req.Code) == "" {
		return res, failure.New(failure.InvalidArgument, "code is required for %s", op)
	}
	if op != OpInject && req.Unit == "" {
		return res, failure.New(failure.InvalidArgument, "unit name is required for %s", op)
	}

	log := e.logger.With(zap.String("op", op), zap.String("file", r.path), zap.String("unit", req.Unit))
	unlock := e.locks.lock(r.path)
	defer unlock()

	src, mode, err := readSource(r.path)
	if err != nil {
		return res, err
	}

	edit, err := e.edit(ctx, op, r.path, r.profile, src, &req)
	if err != nil {
		return res, err
	}
	res.Unit = req.Unit
	res.Diff = edit.Diff
	res.Warnings = append(res.Warnings, edit.Warnings...)
	res.StartLine, res.EndLine = lineRange(edit.Buffer, edit.Span)
	if op == OpRemove {
		res.StartLine, res.EndLine = 0, 0
	}

	if err := e.checkDuplicates(ctx, r.profile, src, edit.Buffer); err != nil {
		return res, err
	}

	outcome := e.validator.Validate(ctx, edit.Buffer, r.profile)
	res.Validation = outcome
	res.Verified = outcome.Verified()
	switch outcome.Status {
	case validate.StatusInvalid:
		log.Info("candidate rejected", zap.String("validator", outcome.Validator), zap.Int("line", outcome.Line))
		return res, outcome.Err()
	case validate.StatusUnavailable:
		res.Warnings = append(res.Warnings, "unverified: "+outcome.Message)
	}

	buildRoot := ""
	if req.Compile {
		switch {
		case !r.profile.NeedsCompilation:
			res.Warnings = append(res.Warnings, fmt.Sprintf("compile skipped: %s has no build step", r.profile.Language))
		case e.builder == nil:
			res.Warnings = append(res.Warnings, "compile requested but no builder is configured")
		default:
			if buildRoot, err = e.buildRoot(r); err != nil {
				return res, err
			}
		}
	}
	res.Warnings = fileutil.DedupeStrings(res.Warnings)

	if dryRun {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, failure.Wrap(failure.IOFailure, err, "%s cancelled before write", op)
	}

	current, _, err := readSource(r.path)
	if err != nil {
		return res, err
	}
	if !bytes.Equal(current, src) {
		return res, failure.New(failure.IOFailure, "%s changed while the edit was prepared; retry", r.path)
	}

	note := req.Note
	if note == "" && req.Unit != "" {
		note = "unit " + req.Unit
	}
	rec, err := e.ledger.BackupBytes(ctx, r.path, src, mode, op, note)
	if err != nil {
		return res, err
	}
	res.BackupID = rec.ID
	if err := fileutil.WriteAtomic(r.path, edit.Buffer, mode); err != nil {
		return res, failure.Wrap(failure.IOFailure, err, "write %s", r.path)
	}
	res.Written = true
	log.Info("unit mutated",
		zap.String("unit", res.Unit),
		zap.String("backup", rec.ID),
		zap.String("validation", string(outcome.Status)),
	)

	if buildRoot != "" {
		return e.compileAfter(ctx, res, buildRoot, req.Target)
	}
	return res, nil
}

// edit produces the candidate buffer for op. For inject it fills in
// req.Unit when the caller left it empty.
func (e *Engine) edit(ctx context.Context, op, path string, p *parser.Profile, src []byte, req *MutationRequest) (splice.EditResult, error) {
	switch op {
	case OpInject:
		code := req.Code
		var missing []string
		if req.AutoImport {
			var found []string
			found, code = imports.Split(code, p)
			missing = imports.Missing(src, found)
		}
		defined, _, err := locator.List(ctx, []byte(code), p)
		if err != nil {
			return splice.EditResult{}, err
		}
		if req.Unit == "" {
			if len(defined) == 0 {
				return splice.EditResult{}, failure.New(failure.InvalidArgument, "code defines no %s unit and no unit name was given", p.Language)
			}
			req.Unit = defined[0].QualifiedName()
		}
		declared := false
		for _, u := range defined {
			if u.Matches(req.Unit) {
				// a method is looked up with its receiver so another type's
				// method of the same name is not mistaken for it
				req.Unit = u.QualifiedName()
				declared = true
				break
			}
		}
		if located, err := locator.Locate(ctx, src, p, req.Unit); err == nil {
			return splice.EditResult{}, failure.New(failure.Duplicate, "unit %q already exists at line %d", req.Unit, located.Unit.StartLine)
		} else if !failure.Is(err, failure.NotFound) {
			return splice.EditResult{}, err
		}

		edit := splice.Append(src, p, code, path)
		if !declared {
			edit.Warnings = append(edit.Warnings, fmt.Sprintf("code does not define a unit named %q", req.Unit))
		}
		if len(missing) > 0 {
			// Imports always land above the appended unit.
			shifted := imports.Insert(edit.Buffer, missing, p)
			offset := len(shifted) - len(edit.Buffer)
			edit.Span.Start += offset
			edit.Span.End += offset
			edit.Buffer = shifted
			edit = edit.Rediff(path, src)
			for _, imp := range missing {
				edit.Warnings = append(edit.Warnings, "added import: "+imp)
			}
		}
		return edit, nil

	case OpRemove, OpReplace:
		located, err := locator.Locate(ctx, src, p, req.Unit)
		if err != nil {
			if failure.Is(err, failure.NotFound) {
				return splice.EditResult{}, e.notFound(ctx, p, src, req.Unit)
			}
			return splice.EditResult{}, err
		}
		var edit splice.EditResult
		if op == OpRemove {
			edit, err = splice.Remove(src, located.Unit, path)
		} else {
			edit, err = splice.Replace(src, located.Unit, req.Code, path)
		}
		if err != nil {
			return splice.EditResult{}, err
		}
		edit.Warnings = append(located.Warnings, edit.Warnings...)
		return edit, nil
	}
	return splice.EditResult{}, failure.New(failure.InvalidArgument, "unknown operation %q", op)
}

// checkDuplicates rejects a candidate that defines a name more often than
// the original when the original already defines it.
func (e *Engine) checkDuplicates(ctx context.Context, p *parser.Profile, original, candidate []byte) error {
	before, _, err := locator.List(ctx, original, p)
	if err != nil {
		return err
	}
	after, _, err := locator.List(ctx, candidate, p)
	if err != nil {
		return err
	}
	was, now := locator.Names(before), locator.Names(after)
	var dupes []string
	for name, count := range now {
		if was[name] > 0 && count > was[name] {
			dupes = append(dupes, name)
		}
	}
	if len(dupes) == 0 {
		return nil
	}
	sort.Strings(dupes)
	return failure.New(failure.Duplicate, "code redefines existing unit(s): %s", strings.Join(dupes, ", "))
}

func (e *Engine) notFound(ctx context.Context, p *parser.Profile, src []byte, name string) error {
	units, _, err := locator.List(ctx, src, p)
	if err == nil {
		if similar := search.Suggest(units, name, maxSuggestions); len(similar) > 0 {
			return failure.New(failure.NotFound, "unit %q not found; similar: %s", name, strings.Join(similar, ", "))
		}
	}
	return failure.New(failure.NotFound, "unit %q not found", name)
}

// buildRoot returns the project root a compile after the mutation runs
// in. It must lie inside the allowed root like every other path.
func (e *Engine) buildRoot(r resolved) (string, error) {
	root := ""
	if r.target != nil {
		root = r.target.ProjectRoot
	}
	if root == "" {
		var err error
		if root, err = build.FindProjectRoot(r.path); err != nil {
			return "", failure.Wrap(failure.IOFailure, err, "find project root of %s", r.path)
		}
	}
	return e.policy.Check(root)
}

// compileAfter builds the project of a freshly mutated file. A failing
// build leaves the mutation in place; the backup id in the result undoes it.
func (e *Engine) compileAfter(ctx context.Context, res MutationResult, root, targetName string) (MutationResult, error) {
	compiled, err := e.builder.Compile(ctx, targetName, root, false)
	res.Build = &compiled
	if compiled.Skipped {
		res.Warnings = append(res.Warnings, "project has no build step")
	}
	if err != nil {
		return res, err
	}
	return res, nil
}

// lineRange converts a span to 1-based inclusive line numbers.
func lineRange(buf []byte, span parser.Span) (int, int) {
	if span.Empty() || span.End > len(buf) {
		return 0, 0
	}
	start := bytes.Count(buf[:span.Start], []byte("\n")) + 1
	end := start + bytes.Count(buf[span.Start:span.End], []byte("\n"))
	if buf[span.End-1] == '\n' {
		end--
	}
	return start, end
}
