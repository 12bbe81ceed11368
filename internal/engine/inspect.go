package engine

import (
	"context"

	"github.com/morozRed/unitsmith/internal/failure"
	"github.com/morozRed/unitsmith/internal/locator"
	"github.com/morozRed/unitsmith/internal/parser"
	"github.com/morozRed/unitsmith/internal/validate"
)

// ValidateRequest checks a file as it stands, or Code as a candidate for
// that file's language when Code is set.
type ValidateRequest struct {
	FileRef
	Code string `json:"code,omitempty"`
}

// ValidateResult pairs the verdict with the file and language it was for.
type ValidateResult struct {
	File     string           `json:"file"`
	Language string           `json:"language"`
	Outcome  validate.Outcome `json:"outcome"`
}

// ValidateCandidate runs the language validator without writing anything.
// An invalid or unverifiable candidate is reported through the error as
// well as the outcome.
func (e *Engine) ValidateCandidate(ctx context.Context, req ValidateRequest) (ValidateResult, error) {
	res := ValidateResult{}
	r, err := e.resolve(req.FileRef)
	if err != nil {
		return res, err
	}
	res.File, res.Language = r.path, r.profile.Language

	buf := []byte(req.Code)
	if req.Code == "" {
		if buf, _, err = readSource(r.path); err != nil {
			return res, err
		}
	}
	res.Outcome = e.validator.Validate(ctx, buf, r.profile)
	return res, res.Outcome.Err()
}

// UnitList is the inventory of one file.
type UnitList struct {
	File     string              `json:"file"`
	Language string              `json:"language"`
	Units    []parser.SourceUnit `json:"units"`
	Warnings []string            `json:"warnings,omitempty"`
}

// ListUnits reports every top-level unit of a file in source order.
func (e *Engine) ListUnits(ctx context.Context, ref FileRef) (UnitList, error) {
	list := UnitList{}
	r, err := e.resolve(ref)
	if err != nil {
		return list, err
	}
	list.File, list.Language = r.path, r.profile.Language
	src, _, err := readSource(r.path)
	if err != nil {
		return list, err
	}
	units, warnings, err := locator.List(ctx, src, r.profile)
	if err != nil {
		return list, err
	}
	list.Units, list.Warnings = units, warnings
	return list, nil
}

// ShowUnit returns a single located unit with its text.
func (e *Engine) ShowUnit(ctx context.Context, ref FileRef, name string) (parser.Located, error) {
	r, err := e.resolve(ref)
	if err != nil {
		return parser.Located{}, err
	}
	src, _, err := readSource(r.path)
	if err != nil {
		return parser.Located{}, err
	}
	located, err := locator.Locate(ctx, src, r.profile, name)
	if failure.Is(err, failure.NotFound) {
		return located, e.notFound(ctx, r.profile, src, name)
	}
	return located, err
}
