package validate

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/morozRed/unitsmith/internal/failure"
	"github.com/morozRed/unitsmith/internal/languages"
	"github.com/morozRed/unitsmith/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessValid(t *testing.T) {
	v := New(Options{})
	out := v.Validate(context.Background(), []byte("const a = 1;\nfunction b() { return a; }\n"), languages.NewJavaScriptProfile())
	assert.Equal(t, StatusValid, out.Status)
	assert.True(t, out.Verified())
	assert.NoError(t, out.Err())
}

func TestInProcessInvalidReportsLine(t *testing.T) {
	v := New(Options{})
	src := "import math\n\n\ndef calculate_tax(amount):\n    return amount * (0.2\n"
	out := v.Validate(context.Background(), []byte(src), languages.NewPythonProfile())
	require.Equal(t, StatusInvalid, out.Status)
	assert.GreaterOrEqual(t, out.Line, 4)
	assert.NotEmpty(t, out.Message)

	err := out.Err()
	require.Error(t, err)
	assert.Equal(t, failure.SyntaxInvalid, failure.KindOf(err))
}

func TestInProcessInvalidGo(t *testing.T) {
	v := New(Options{})
	out := v.Validate(context.Background(), []byte("package main\n\nfunc main() {\n\tx := \n}\n"), languages.NewGoProfile())
	assert.Equal(t, StatusInvalid, out.Status)
	assert.Equal(t, "tree-sitter/go", out.Validator)
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func fakeProfile(commands ...parser.Command) *parser.Profile {
	return &parser.Profile{Language: "fake", Extensions: []string{".fk"}, Validators: commands}
}

var grepValidator = parser.Command{
	Binary: "sh",
	Args:   []string{"-c", `if grep -q bad "$0"; then echo "$0:2: error: bad token" >&2; exit 1; fi`, parser.FilePlaceholder},
}

func TestExternalValidAndInvalid(t *testing.T) {
	requireShell(t)
	v := New(Options{TempDir: t.TempDir()})
	p := fakeProfile(grepValidator)

	ok := v.Validate(context.Background(), []byte("good\n"), p)
	assert.Equal(t, StatusValid, ok.Status)

	bad := v.Validate(context.Background(), []byte("good\nbad\n"), p)
	require.Equal(t, StatusInvalid, bad.Status)
	assert.Equal(t, 2, bad.Line)
	assert.Equal(t, "candidate.fk:2: error: bad token", bad.Message)
	assert.Equal(t, "sh", bad.Validator)
}

func TestExternalMissingToolIsUnavailable(t *testing.T) {
	v := New(Options{TempDir: t.TempDir()})
	out := v.Validate(context.Background(), []byte("x"), fakeProfile(
		parser.Command{Binary: "unitsmith-missing-validator-a"},
		parser.Command{Binary: "unitsmith-missing-validator-b"},
	))
	assert.Equal(t, StatusUnavailable, out.Status)
	assert.Contains(t, out.Message, "unitsmith-missing-validator-a, unitsmith-missing-validator-b")
	assert.Equal(t, failure.ValidatorUnavailable, failure.KindOf(out.Err()))
}

func TestExternalFallsBackToAlternate(t *testing.T) {
	requireShell(t)
	v := New(Options{TempDir: t.TempDir()})
	out := v.Validate(context.Background(), []byte("good\n"), fakeProfile(parser.Command{Binary: "unitsmith-missing-validator"}, grepValidator))
	assert.Equal(t, StatusValid, out.Status)
	assert.Equal(t, "sh", out.Validator)
}

func TestExternalTimeoutIsUnavailable(t *testing.T) {
	requireShell(t)
	v := New(Options{TempDir: t.TempDir(), Timeout: 100 * time.Millisecond})
	out := v.Validate(context.Background(), []byte("x"), fakeProfile(parser.Command{Binary: "sh", Args: []string{"-c", "exec sleep 5"}}))
	assert.Equal(t, StatusUnavailable, out.Status)
	assert.Contains(t, out.Message, "timed out")
}

func TestOverrideForcesExternalCheck(t *testing.T) {
	requireShell(t)
	v := New(Options{
		TempDir:   t.TempDir(),
		Overrides: map[string][]parser.Command{"python": {grepValidator}},
	})
	out := v.Validate(context.Background(), []byte("x = 'bad'\n"), languages.NewPythonProfile())
	assert.Equal(t, StatusInvalid, out.Status)
}
