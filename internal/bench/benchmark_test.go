package bench

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/morozRed/unitsmith/internal/languages"
	"github.com/morozRed/unitsmith/internal/locator"
	"github.com/morozRed/unitsmith/internal/project"
	"github.com/morozRed/unitsmith/internal/splice"
	"github.com/morozRed/unitsmith/internal/validate"
)

func BenchmarkScanMediumProject(b *testing.B) {
	root := b.TempDir()
	createSyntheticGoRepo(b, root, 250)
	registry := languages.NewDefaultRegistry()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s, err := project.Scan(ctx, root, registry, project.Options{})
		if err != nil {
			b.Fatalf("scan failed: %v", err)
		}
		if len(s.Files) != 250 {
			b.Fatalf("expected 250 files, got %d", len(s.Files))
		}
	}
}

func BenchmarkLocateLastUnit(b *testing.B) {
	src := []byte(syntheticPythonModule(400))
	p := languages.NewPythonProfile()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := locator.Locate(ctx, src, p, "tool_399"); err != nil {
			b.Fatalf("locate failed: %v", err)
		}
	}
}

func BenchmarkLocateByScanning(b *testing.B) {
	var sb strings.Builder
	for i := 0; i < 400; i++ {
		fmt.Fprintf(&sb, "pub fn tool_%d(x: i32) -> i32 {\n    if x > %d { x } else { %d }\n}\n\n", i, i, i)
	}
	src := []byte(sb.String())
	p := languages.NewRustProfile()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := locator.Locate(ctx, src, p, "tool_399"); err != nil {
			b.Fatalf("locate failed: %v", err)
		}
	}
}

func BenchmarkAppendAndValidate(b *testing.B) {
	src := []byte(syntheticPythonModule(200))
	p := languages.NewPythonProfile()
	v := validate.New(validate.Options{})
	ctx := context.Background()
	unit := "@mcp.tool()\ndef extra(x):\n    return x\n"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		edit := splice.Append(src, p, unit, "server.py")
		if out := v.Validate(ctx, edit.Buffer, p); !out.Verified() {
			b.Fatalf("candidate rejected: %s", out.Message)
		}
	}
}

func syntheticPythonModule(units int) string {
	var sb strings.Builder
	sb.WriteString("from mcp.server.fastmcp import FastMCP\n\nmcp = FastMCP(\"bench\")\n")
	for i := 0; i < units; i++ {
		fmt.Fprintf(&sb, "\n\n@mcp.tool()\ndef tool_%d(value):\n    \"\"\"Tool %d.\"\"\"\n    return value + %d\n", i, i, i)
	}
	sb.WriteString("\n\nif __name__ == \"__main__\":\n    mcp.run()\n")
	return sb.String()
}

func createSyntheticGoRepo(tb testing.TB, root string, files int) {
	tb.Helper()

	for i := 0; i < files; i++ {
		dir := filepath.Join(root, fmt.Sprintf("pkg%d", i%10))
		if err := os.MkdirAll(dir, 0755); err != nil {
			tb.Fatalf("mkdir failed: %v", err)
		}

		filePath := filepath.Join(dir, fmt.Sprintf("file_%03d.go", i))
		src := fmt.Sprintf(`package pkg%d

func Func%d() int {
	return helper%d()
}

func helper%d() int {
	return %d
}
`, i%10, i, i, i, i)

		if err := os.WriteFile(filePath, []byte(src), 0644); err != nil {
			tb.Fatalf("write failed: %v", err)
		}
	}
}
