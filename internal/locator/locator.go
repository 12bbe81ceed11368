// Package locator finds named top-level units inside source buffers.
//
// Profiles with an in-process grammar are located on the syntax tree.
// Profiles without one, and buffers the grammar cannot fully parse, are
// located by scanning definition lines and matching block delimiters.
package locator

import (
	"context"
	"fmt"

	"github.com/morozRed/unitsmith/internal/failure"
	"github.com/morozRed/unitsmith/internal/parser"
)

// Locate finds the top-level unit called name. When several definitions
// share the name the first one wins and a warning is attached.
func Locate(ctx context.Context, src []byte, p *parser.Profile, name string) (parser.Located, error) {
	if name == "" {
		return parser.Located{}, failure.New(failure.InvalidArgument, "unit name is required")
	}

	var (
		matches  []parser.SourceUnit
		warnings []string
	)
	if p.InProcess() {
		units, hasErrors, err := listAST(ctx, src, p)
		if err != nil {
			return parser.Located{}, failure.Wrap(failure.IOFailure, err, "parse %s source", p.Language)
		}
		matches = filterByName(units, name)
		if len(matches) == 0 && hasErrors {
			matches = newScanner(src, p).list(p.DefinitionRegexps(name), name)
			if len(matches) > 0 {
				warnings = append(warnings, fmt.Sprintf("source does not parse cleanly; %q located by structural scan", name))
			}
		}
	} else {
		matches = newScanner(src, p).list(p.DefinitionRegexps(name), name)
		if len(matches) == 0 {
			matches = filterByName(newScanner(src, p).list(p.AnyDefinitionRegexps(), ""), name)
		}
	}

	if len(matches) == 0 {
		return parser.Located{}, failure.New(failure.NotFound, "unit %q not found", name)
	}
	if len(matches) > 1 {
		warnings = append(warnings, fmt.Sprintf("unit %q is defined %d times; using the first definition at line %d",
			name, len(matches), matches[0].StartLine))
	}
	return parser.Located{Unit: matches[0], Warnings: warnings}, nil
}

// List returns every top-level unit in textual order.
func List(ctx context.Context, src []byte, p *parser.Profile) ([]parser.SourceUnit, []string, error) {
	if !p.InProcess() {
		return newScanner(src, p).list(p.AnyDefinitionRegexps(), ""), nil, nil
	}
	units, hasErrors, err := listAST(ctx, src, p)
	if err != nil {
		return nil, nil, failure.Wrap(failure.IOFailure, err, "parse %s source", p.Language)
	}
	var warnings []string
	if hasErrors {
		warnings = append(warnings, "source does not parse cleanly; the unit list may be incomplete")
	}
	return units, warnings, nil
}

// Names counts the top-level units per qualified name, aliases included.
func Names(units []parser.SourceUnit) map[string]int {
	counts := make(map[string]int, len(units))
	for _, u := range units {
		counts[u.QualifiedName()]++
		for _, alias := range u.Aliases {
			counts[alias]++
		}
	}
	return counts
}

func filterByName(units []parser.SourceUnit, name string) []parser.SourceUnit {
	var out []parser.SourceUnit
	for _, u := range units {
		if u.Matches(name) {
			out = append(out, u)
		}
	}
	return out
}

func newUnit(src []byte, p *parser.Profile, name string, kind parser.UnitKind, span parser.Span) parser.SourceUnit {
	last := span.End - 1
	if last < span.Start {
		last = span.Start
	}
	return parser.SourceUnit{
		Name:      name,
		Language:  p.Language,
		Kind:      kind,
		Span:      span,
		StartLine: lineNumber(src, span.Start),
		EndLine:   lineNumber(src, last),
		Text:      string(src[span.Start:span.End]),
	}
}
