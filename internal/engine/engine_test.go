package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/morozRed/unitsmith/internal/build"
	"github.com/morozRed/unitsmith/internal/failure"
	"github.com/morozRed/unitsmith/internal/languages"
	"github.com/morozRed/unitsmith/internal/ledger"
	"github.com/morozRed/unitsmith/internal/locator"
	"github.com/morozRed/unitsmith/internal/sandbox"
	"github.com/morozRed/unitsmith/internal/splice"
	"github.com/morozRed/unitsmith/internal/toolchain"
	"github.com/morozRed/unitsmith/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const weatherServer = `"""Weather tools exposed over MCP."""
import math

from mcp.server.fastmcp import FastMCP

mcp = FastMCP("weather")


@mcp.tool()
def calculate_tax(amount):
    """Return the tax owed on amount."""
    rate = 0.2
    return round(amount * rate, 2)


@mcp.tool()
def wind_chill(temp_c, wind_kmh):
    v = math.pow(wind_kmh, 0.16)
    return 13.12 + 0.6215 * temp_c - 11.37 * v + 0.3965 * temp_c * v


def _clamp(value, low, high):
    if value < low:
        return low
    if value > high:
        return high
    return value


class Forecast:
    def __init__(self, days):
        self.days = _clamp(days, 1, 14)

    def summary(self):
        return f"{self.days} day forecast"


if __name__ == "__main__":
    mcp.run()
`

const convertTemperature = `@mcp.tool()
def convert_temperature(celsius):
    return celsius * 9 / 5 + 32
`

type fixture struct {
	root   string
	engine *Engine
	ledger *ledger.Store
}

func newFixture(t *testing.T, opts ...func(*Options)) *fixture {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	policy, err := sandbox.New(root)
	require.NoError(t, err)
	store, err := ledger.Open(ledger.Options{Dir: filepath.Join(t.TempDir(), "store"), Sandbox: policy})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	o := Options{
		Registry:  languages.NewDefaultRegistry(),
		Validator: validate.New(validate.Options{}),
		Ledger:    store,
		Sandbox:   policy,
	}
	for _, opt := range opts {
		opt(&o)
	}
	e, err := New(o)
	require.NoError(t, err)
	return &fixture{root: root, engine: e, ledger: store}
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func lineOf(content, needle string) int {
	return strings.Count(content[:strings.Index(content, needle)], "\n") + 1
}

func TestInjectPlacesUnitBeforeEntryPoint(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "server.py", weatherServer)
	ctx := context.Background()

	res, err := f.engine.InjectUnit(ctx, MutationRequest{
		FileRef: FileRef{File: path},
		Unit:    "convert_temperature",
		Code:    convertTemperature,
	})
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.True(t, res.Verified)
	assert.Equal(t, validate.StatusValid, res.Validation.Status)
	assert.NotEmpty(t, res.BackupID)
	assert.Contains(t, res.Diff, "+def convert_temperature(celsius):")

	got := read(t, path)
	assert.Greater(t, len(got), len(weatherServer)+len(convertTemperature))
	assert.Less(t, strings.Index(got, "def convert_temperature"), strings.Index(got, "if __name__"))
	assert.Contains(t, got, "        return f\"{self.days} day forecast\"\n\n\n"+convertTemperature+"\n\nif __name__")
	assert.Equal(t, lineOf(got, "@mcp.tool()\ndef convert_temperature"), res.StartLine)
	assert.Equal(t, res.StartLine+2, res.EndLine)

	backups, err := f.engine.ListBackups(ctx, FileRef{File: path}, 0)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, OpInject, backups[0].Operation)
	assert.Equal(t, res.BackupID, backups[0].ID)
}

func TestInjectDerivesUnitNameFromCode(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "server.py", weatherServer)

	res, err := f.engine.InjectUnit(context.Background(), MutationRequest{
		FileRef: FileRef{File: path},
		Code:    convertTemperature,
	})
	require.NoError(t, err)
	assert.Equal(t, "convert_temperature", res.Unit)
}

func TestInjectWarnsWhenCodeLacksNamedUnit(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "server.py", weatherServer)

	res, err := f.engine.InjectUnit(context.Background(), MutationRequest{
		FileRef: FileRef{File: path},
		Unit:    "fahrenheit",
		Code:    convertTemperature,
	})
	require.NoError(t, err)
	assert.Contains(t, res.Warnings, `code does not define a unit named "fahrenheit"`)
}

func TestInjectWithoutRegistrationWarns(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "server.py", weatherServer)

	res, err := f.engine.InjectUnit(context.Background(), MutationRequest{
		FileRef: FileRef{File: path},
		Code:    "def helper():\n    return 1\n",
	})
	require.NoError(t, err)
	assert.Contains(t, res.Warnings, splice.MissingRegistration)
}

func TestInjectRejectsDuplicate(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "server.py", weatherServer)
	info, err := os.Stat(path)
	require.NoError(t, err)

	_, err = f.engine.InjectUnit(context.Background(), MutationRequest{
		FileRef: FileRef{File: path},
		Unit:    "calculate_tax",
		Code:    "def calculate_tax(amount):\n    return 0\n",
	})
	require.Error(t, err)
	assert.Equal(t, failure.Duplicate, failure.KindOf(err))
	assert.Contains(t, err.Error(), "line 9")
	assert.Equal(t, weatherServer, read(t, path))

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), after.ModTime())
}

func TestInjectGoMethodOfAnotherTypeIsNotADuplicate(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "types.go", "package main\n\ntype A struct{}\n\nfunc (A) String() string { return \"a\" }\n")

	res, err := f.engine.InjectUnit(context.Background(), MutationRequest{
		FileRef: FileRef{File: path},
		Code:    "type B struct{}\n\nfunc (B) String() string { return \"b\" }\n",
	})
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Equal(t, "B", res.Unit)
	assert.Contains(t, read(t, path), "func (B) String() string")

	_, err = f.engine.InjectUnit(context.Background(), MutationRequest{
		FileRef: FileRef{File: path},
		Code:    "func (A) String() string { return \"again\" }\n",
	})
	require.Error(t, err)
	assert.Equal(t, failure.Duplicate, failure.KindOf(err))
	assert.NotContains(t, read(t, path), "again")
}

func TestInjectRejectsCodeRedefiningAnotherUnit(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "server.py", weatherServer)

	_, err := f.engine.InjectUnit(context.Background(), MutationRequest{
		FileRef: FileRef{File: path},
		Unit:    "convert_temperature",
		Code:    convertTemperature + "\n\ndef wind_chill(t, w):\n    return t\n",
	})
	require.Error(t, err)
	assert.Equal(t, failure.Duplicate, failure.KindOf(err))
	assert.Contains(t, err.Error(), "wind_chill")
	assert.Equal(t, weatherServer, read(t, path))
}

func TestInvalidCodeIsNeverWritten(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "server.py", weatherServer)
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(path, old, old))

	res, err := f.engine.ReplaceUnit(context.Background(), MutationRequest{
		FileRef: FileRef{File: path},
		Unit:    "calculate_tax",
		Code:    "def calculate_tax(amount):\n    return round(amount * (0.2, 2\n",
	})
	require.Error(t, err)
	assert.Equal(t, failure.SyntaxInvalid, failure.KindOf(err))
	assert.Equal(t, validate.StatusInvalid, res.Validation.Status)
	assert.NotEmpty(t, res.Validation.Message)
	assert.False(t, res.Written)
	assert.Empty(t, res.BackupID)

	result := Report("", res, err)
	assert.False(t, result.Success)
	assert.Equal(t, failure.SyntaxInvalid, result.Kind)

	assert.Equal(t, weatherServer, read(t, path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old))

	backups, err := f.engine.ListBackups(context.Background(), FileRef{File: path}, 0)
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestReplaceChangesOnlyTheUnit(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "server.py", weatherServer)
	ctx := context.Background()
	p := languages.NewPythonProfile()

	located, err := locator.Locate(ctx, []byte(weatherServer), p, "wind_chill")
	require.NoError(t, err)
	span := located.Unit.Span

	replacement := "@mcp.tool()\ndef wind_chill(temp_c, wind_kmh):\n    return temp_c - wind_kmh / 10\n"
	res, err := f.engine.ReplaceUnit(ctx, MutationRequest{
		FileRef: FileRef{File: path},
		Unit:    "wind_chill",
		Code:    replacement,
	})
	require.NoError(t, err)
	assert.True(t, res.Written)

	want := weatherServer[:span.Start] + replacement + weatherServer[span.End:]
	if d := cmp.Diff(want, read(t, path)); d != "" {
		t.Fatalf("bytes outside the unit changed (-want +got):\n%s", d)
	}
}

func TestRemoveChangesOnlyTheUnit(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "server.py", weatherServer)
	ctx := context.Background()

	located, err := locator.Locate(ctx, []byte(weatherServer), languages.NewPythonProfile(), "_clamp")
	require.NoError(t, err)
	end := splice.RemovalEnd([]byte(weatherServer), located.Unit.Span)

	res, err := f.engine.RemoveUnit(ctx, MutationRequest{FileRef: FileRef{File: path}, Unit: "_clamp"})
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Contains(t, res.Diff, "-def _clamp(value, low, high):")

	want := weatherServer[:located.Unit.Span.Start] + weatherServer[end:]
	if d := cmp.Diff(want, read(t, path)); d != "" {
		t.Fatalf("bytes outside the unit changed (-want +got):\n%s", d)
	}
}

func TestUnknownUnitSuggestsSimilarNames(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "server.py", weatherServer)

	_, err := f.engine.RemoveUnit(context.Background(), MutationRequest{FileRef: FileRef{File: path}, Unit: "calculate_taxes"})
	require.Error(t, err)
	assert.Equal(t, failure.NotFound, failure.KindOf(err))
	assert.Contains(t, err.Error(), "calculate_tax")
	assert.Equal(t, weatherServer, read(t, path))
}

func TestDryRunDoesNotWrite(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "server.py", weatherServer)
	ctx := context.Background()

	res, err := f.engine.DryRunInject(ctx, MutationRequest{
		FileRef: FileRef{File: path},
		Unit:    "convert_temperature",
		Code:    convertTemperature,
	})
	require.NoError(t, err)
	assert.False(t, res.Written)
	assert.Empty(t, res.BackupID)
	assert.True(t, res.Verified)
	assert.Contains(t, res.Diff, "+def convert_temperature(celsius):")
	assert.Equal(t, weatherServer, read(t, path))

	backups, err := f.engine.ListBackups(ctx, FileRef{}, 0)
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestAutoImportMovesImportsAndKeepsLines(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "server.py", weatherServer)

	res, err := f.engine.InjectUnit(context.Background(), MutationRequest{
		FileRef:    FileRef{File: path},
		Code:       "import json\n\n@mcp.tool()\ndef dump_forecast(days):\n    return json.dumps({\"days\": days})\n",
		AutoImport: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "dump_forecast", res.Unit)
	assert.Contains(t, res.Warnings, "added import: import json")

	got := read(t, path)
	assert.Contains(t, got, "import json\n")
	assert.Less(t, strings.Index(got, "import json"), strings.Index(got, "mcp = FastMCP"))
	assert.Equal(t, 1, strings.Count(got, "import json"))
	assert.Equal(t, lineOf(got, "@mcp.tool()\ndef dump_forecast"), res.StartLine)
}

func TestPathOutsideRootIsRefused(t *testing.T) {
	f := newFixture(t)
	outside := filepath.Join(t.TempDir(), "server.py")
	require.NoError(t, os.WriteFile(outside, []byte(weatherServer), 0o644))

	_, err := f.engine.InjectUnit(context.Background(), MutationRequest{
		FileRef: FileRef{File: outside},
		Code:    convertTemperature,
	})
	require.Error(t, err)
	assert.Equal(t, failure.OutOfScope, failure.KindOf(err))
	assert.Equal(t, weatherServer, read(t, outside))
}

func TestUnsupportedLanguage(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "notes.txt", "hello\n")

	_, err := f.engine.ListUnits(context.Background(), FileRef{File: path})
	require.Error(t, err)
	assert.Equal(t, failure.Unsupported, failure.KindOf(err))
}

func TestRestoreAfterInjectReproducesOriginal(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "server.py", weatherServer)
	ctx := context.Background()

	res, err := f.engine.InjectUnit(ctx, MutationRequest{FileRef: FileRef{File: path}, Code: convertTemperature})
	require.NoError(t, err)

	diff, err := f.engine.DiffBackup(ctx, res.BackupID)
	require.NoError(t, err)
	assert.Contains(t, diff, "+def convert_temperature(celsius):")

	restored, err := f.engine.RestoreBackup(ctx, res.BackupID, "")
	require.NoError(t, err)
	assert.NotEmpty(t, restored.SafetyBackup)
	assert.Equal(t, weatherServer, read(t, path))

	diff, err = f.engine.DiffBackup(ctx, res.BackupID)
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestValidateCandidate(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "server.py", weatherServer)
	ctx := context.Background()

	res, err := f.engine.ValidateCandidate(ctx, ValidateRequest{FileRef: FileRef{File: path}})
	require.NoError(t, err)
	assert.Equal(t, validate.StatusValid, res.Outcome.Status)
	assert.Equal(t, "python", res.Language)

	res, err = f.engine.ValidateCandidate(ctx, ValidateRequest{FileRef: FileRef{File: path}, Code: "def broken(:\n    pass\n"})
	require.Error(t, err)
	assert.Equal(t, failure.SyntaxInvalid, failure.KindOf(err))
	assert.Equal(t, validate.StatusInvalid, res.Outcome.Status)
	assert.Equal(t, weatherServer, read(t, path))
}

func TestListUnits(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "server.py", weatherServer)

	list, err := f.engine.ListUnits(context.Background(), FileRef{File: path})
	require.NoError(t, err)
	names := make([]string, 0, len(list.Units))
	for _, u := range list.Units {
		names = append(names, u.Name)
	}
	assert.Equal(t, []string{"calculate_tax", "wind_chill", "_clamp", "Forecast"}, names)
	assert.True(t, list.Units[0].Registered)
	assert.False(t, list.Units[2].Registered)
}

func TestShowUnit(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "server.py", weatherServer)

	located, err := f.engine.ShowUnit(context.Background(), FileRef{File: path}, "Forecast")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(located.Unit.Text, "class Forecast:\n"))
	assert.True(t, strings.HasSuffix(located.Unit.Text, "day forecast\"\n"))

	_, err = f.engine.ShowUnit(context.Background(), FileRef{File: path}, "forecast")
	assert.Equal(t, failure.NotFound, failure.KindOf(err))
}

func TestCheckpointRestoresEveryFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	files := map[string]string{
		"server.py":       weatherServer,
		"tools/units.py":  "def kelvin(c):\n    return c + 273.15\n",
		"tools/format.py": "def label(v):\n    return str(v)\n",
	}
	paths := make(map[string]string)
	for name, content := range files {
		paths[name] = f.write(t, name, content)
	}
	f.write(t, "README.md", "docs\n")

	cp, err := f.engine.CreateCheckpoint(ctx, CheckpointRequest{ProjectRef: ProjectRef{Root: f.root}, Description: "before batch"})
	require.NoError(t, err)
	assert.Len(t, cp.Files, 3)
	assert.Equal(t, filepath.Base(f.root), cp.Target)

	require.NoError(t, os.WriteFile(paths["tools/units.py"], nil, 0o644))
	_, err = f.engine.InjectUnit(ctx, MutationRequest{FileRef: FileRef{File: paths["server.py"]}, Code: convertTemperature})
	require.NoError(t, err)

	res, err := f.engine.RestoreCheckpoint(ctx, cp.ID)
	require.NoError(t, err)
	assert.Len(t, res.Restored, 2)
	assert.Len(t, res.Unchanged, 1)
	for name, content := range files {
		assert.Equal(t, content, read(t, paths[name]), name)
	}

	list, err := f.engine.ListCheckpoints(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "before batch", list[0].Description)
}

func TestCheckpointOfEmptyProjectFails(t *testing.T) {
	f := newFixture(t)
	f.write(t, "README.md", "docs\n")

	_, err := f.engine.CreateCheckpoint(context.Background(), CheckpointRequest{ProjectRef: ProjectRef{Root: f.root}})
	require.Error(t, err)
	assert.Equal(t, failure.NotFound, failure.KindOf(err))
}

func TestConcurrentMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shared := f.write(t, "shared.py", "def base():\n    return 0\n")
	var separate []string
	for i := 0; i < 6; i++ {
		separate = append(separate, f.write(t, fmt.Sprintf("svc%d.py", i), "def base():\n    return 0\n"))
	}

	var wg sync.WaitGroup
	errs := make(chan error, 12)
	for i := 0; i < 6; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.engine.InjectUnit(ctx, MutationRequest{
				FileRef: FileRef{File: shared},
				Code:    fmt.Sprintf("def unit_%d():\n    return %d\n", i, i),
			})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.engine.InjectUnit(ctx, MutationRequest{
				FileRef: FileRef{File: separate[i]},
				Code:    "def extra():\n    return 1\n",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got := read(t, shared)
	for i := 0; i < 6; i++ {
		assert.Contains(t, got, fmt.Sprintf("def unit_%d():", i))
	}
	for _, path := range separate {
		assert.Contains(t, read(t, path), "def extra():")
	}
	backups, err := f.engine.ListBackups(ctx, FileRef{File: shared}, 0)
	require.NoError(t, err)
	assert.Len(t, backups, 6)
}

func TestCompileAfterMutationKeepsWrite(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("sh not available")
	}
	tool := filepath.Join(t.TempDir(), "tool")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\necho 'main.go:9: undefined: nope'\nexit 1\n"), 0o755))
	runner := toolchain.NewRunner()
	runner.LookPath = func(string) (string, error) { return tool, nil }
	cache, err := build.LoadCache(t.TempDir())
	require.NoError(t, err)

	f := newFixture(t, func(o *Options) {
		o.Builder = build.NewBuilder(cache, runner, time.Minute, nil)
	})
	f.write(t, "go.mod", "module example.com/srv\n\ngo 1.22\n")
	path := f.write(t, "main.go", "package main\n\nfunc main() {}\n")

	res, err := f.engine.InjectUnit(context.Background(), MutationRequest{
		FileRef: FileRef{File: path},
		Code:    "func helper() int {\n\treturn 1\n}\n",
		Compile: true,
	})
	require.Error(t, err)
	assert.Equal(t, failure.BuildFailed, failure.KindOf(err))
	assert.True(t, res.Written)
	assert.NotEmpty(t, res.BackupID)
	require.NotNil(t, res.Build)
	assert.Equal(t, build.SystemGo, res.Build.Profile.System)
	assert.Contains(t, res.Build.Output, "undefined: nope")
	assert.Contains(t, read(t, path), "func helper() int")

	result := Report("", res, err)
	assert.Equal(t, failure.BuildFailed, result.Kind)
	assert.Contains(t, result.Output, "undefined: nope")
}

func TestCompileRefusesProjectRootOutsideAllowedRoot(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("sh not available")
	}
	outer, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	allowed := filepath.Join(outer, "allowed")
	require.NoError(t, os.MkdirAll(allowed, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outer, "go.mod"), []byte("module example.com/outer\n\ngo 1.22\n"), 0o644))
	marker := filepath.Join(outer, "built")
	tool := filepath.Join(t.TempDir(), "tool")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\ntouch "+marker+"\n"), 0o755))

	runner := toolchain.NewRunner()
	runner.LookPath = func(string) (string, error) { return tool, nil }
	cache, err := build.LoadCache(t.TempDir())
	require.NoError(t, err)
	policy, err := sandbox.New(allowed)
	require.NoError(t, err)
	f := newFixture(t, func(o *Options) {
		o.Sandbox = policy
		o.Builder = build.NewBuilder(cache, runner, time.Minute, nil)
	})

	path := filepath.Join(allowed, "main.go")
	original := "package main\n\nfunc main() {}\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	res, err := f.engine.InjectUnit(context.Background(), MutationRequest{
		FileRef: FileRef{File: path},
		Code:    "func helper() int {\n\treturn 1\n}\n",
		Compile: true,
	})
	require.Error(t, err)
	assert.Equal(t, failure.OutOfScope, failure.KindOf(err))
	assert.False(t, res.Written)
	assert.Nil(t, res.Build)
	assert.Equal(t, original, read(t, path))
	assert.NoFileExists(t, marker)
}

func TestCompileSkippedForInterpretedLanguage(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("sh not available")
	}
	marker := filepath.Join(t.TempDir(), "built")
	tool := filepath.Join(t.TempDir(), "tool")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\ntouch "+marker+"\n"), 0o755))
	runner := toolchain.NewRunner()
	runner.LookPath = func(string) (string, error) { return tool, nil }
	cache, err := build.LoadCache(t.TempDir())
	require.NoError(t, err)

	f := newFixture(t, func(o *Options) {
		o.Builder = build.NewBuilder(cache, runner, time.Minute, nil)
	})
	f.write(t, "Makefile", "all:\n\ttrue\n")
	path := f.write(t, "server.py", weatherServer)

	res, err := f.engine.InjectUnit(context.Background(), MutationRequest{
		FileRef: FileRef{File: path},
		Code:    "@mcp.tool()\ndef helper():\n    return 1\n",
		Compile: true,
	})
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Nil(t, res.Build)
	assert.Contains(t, res.Warnings, "compile skipped: python has no build step")
	assert.NoFileExists(t, marker)
}

func TestProjectOperations(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		cache, err := build.LoadCache(t.TempDir())
		require.NoError(t, err)
		o.Builder = build.NewBuilder(cache, nil, time.Minute, nil)
	})
	f.write(t, "Cargo.toml", "[package]\nname = \"weather\"\nversion = \"0.1.0\"\n")
	f.write(t, "src/main.rs", "fn main() {}\n")

	info, err := f.engine.InspectProject(context.Background(), ProjectRef{Root: f.root})
	require.NoError(t, err)
	assert.Equal(t, "rust", info.Structure.Language)
	require.NotNil(t, info.Build)
	assert.Equal(t, build.SystemCargo, info.Build.System)

	p, err := f.engine.DetectBuild(context.Background(), BuildRequest{ProjectRef: ProjectRef{Root: f.root}, Force: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"cargo", "build", "--release"}, p.Command)

	report, err := f.engine.Doctor(context.Background(), f.root)
	require.NoError(t, err)
	assert.True(t, report.Validators["python"].Available)
	assert.False(t, report.Validators["python"].Present)
	assert.True(t, report.Validators["rust"].Present)
	assert.Contains(t, report.BuildTools, "cargo")
}

func TestReportCarriesKind(t *testing.T) {
	ok := Report("done", map[string]int{"n": 1}, nil)
	assert.True(t, ok.Success)
	assert.Empty(t, ok.Kind)

	failed := Report("ignored", nil, failure.New(failure.Duplicate, "unit %q already exists", "x"))
	assert.False(t, failed.Success)
	assert.Equal(t, failure.Duplicate, failed.Kind)
	assert.Contains(t, failed.Message, "already exists")
}
