package main

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/Corphon/EpubTranslator/internal/errors"
	"github.com/Corphon/EpubTranslator/internal/translate"
)

func init() {
	translate.Register("echo", func() translate.Provider { return &echoProvider{} })
}

type echoProvider struct{}

func (p *echoProvider) Initialize(map[string]string) error { return nil }
func (p *echoProvider) GetName() string                    { return "echo" }
func (p *echoProvider) MaxBatchChars() int                 { return 1000 }

func (p *echoProvider) Translate(ctx context.Context, req translate.Request) ([]string, error) {
	out := make([]string, len(req.Texts))
	for i, text := range req.Texts {
		out[i] = "[" + req.TargetLanguage + "] " + text
	}
	return out, nil
}

func writeFixture(t *testing.T, dir string) string {
	t.Helper()
	files := map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": `<container><rootfiles><rootfile full-path="OPS/book.opf"/></rootfiles></container>`,
		"OPS/book.opf": `<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
<metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>CLI Book</dc:title><dc:creator>Ann Author</dc:creator><dc:language>en</dc:language></metadata>
<manifest><item id="one" href="one.xhtml" media-type="application/xhtml+xml"/></manifest>
<spine><itemref idref="one"/></spine></package>`,
		"OPS/one.xhtml": `<html><body><h1>Opening</h1><p>The cat sat.</p><p>The dog ran.</p></body></html>`,
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	path := filepath.Join(dir, "cli.epub")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func runCLI(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	ctx := newCommandContext()
	defer ctx.close()

	cmd := newRootCommand(ctx)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--data-dir", dataDir}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("output missing %q:\n%s", want, output)
	}
}

func TestImportListAndShow(t *testing.T) {
	t.Setenv("TRANSLATOR_PROVIDER", "echo")
	dataDir := t.TempDir()
	fixture := writeFixture(t, t.TempDir())

	out, err := runCLI(t, dataDir, "import", fixture)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	requireContains(t, out, `Book "CLI Book" loaded successfully!`)
	requireContains(t, out, "ID: 1")

	out, err = runCLI(t, dataDir, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "CLI Book")
	requireContains(t, out, "Ann Author")
	requireContains(t, out, "0/2")

	out, err = runCLI(t, dataDir, "show", "1")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "Opening")
	requireContains(t, out, "Language: en")
}

func TestListEmptyLibrary(t *testing.T) {
	t.Setenv("TRANSLATOR_PROVIDER", "echo")
	out, err := runCLI(t, t.TempDir(), "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "No books imported")
}

func TestShowUnknownBook(t *testing.T) {
	t.Setenv("TRANSLATOR_PROVIDER", "echo")
	_, err := runCLI(t, t.TempDir(), "show", "42")
	if !apperrors.IsNotFoundError(err) {
		t.Fatalf("expected not found error, got %v", err)
	}

	if _, err := runCLI(t, t.TempDir(), "show", "abc"); err == nil {
		t.Fatal("expected error for invalid id")
	}
}

func TestTranslateAndExport(t *testing.T) {
	t.Setenv("TRANSLATOR_PROVIDER", "echo")
	dataDir := t.TempDir()
	fixture := writeFixture(t, t.TempDir())
	if _, err := runCLI(t, dataDir, "import", fixture); err != nil {
		t.Fatalf("import: %v", err)
	}

	if _, err := runCLI(t, dataDir, "translate"); err == nil {
		t.Fatal("expected error without --book or --chapter")
	}

	out, err := runCLI(t, dataDir, "translate", "--book", "1")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	requireContains(t, out, "[1/1] Opening")
	requireContains(t, out, `Successfully translated 2 chunks in 1 chapters of book "CLI Book"!`)

	out, err = runCLI(t, dataDir, "translate", "--chapter", "1")
	if err != nil {
		t.Fatalf("translate chapter: %v", err)
	}
	requireContains(t, out, `No new content to translate in chapter "Opening".`)

	out, err = runCLI(t, dataDir, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "100%")

	target := filepath.Join(t.TempDir(), "out.epub")
	out, err = runCLI(t, dataDir, "export", "1", "-o", target)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	requireContains(t, out, "Exported 1 chapters to "+target)
	if info, err := os.Stat(target); err != nil || info.Size() == 0 {
		t.Fatalf("exported file missing: %v", err)
	}
}

func TestGlossaryCommands(t *testing.T) {
	t.Setenv("TRANSLATOR_PROVIDER", "echo")
	dataDir := t.TempDir()
	fixture := writeFixture(t, t.TempDir())
	if _, err := runCLI(t, dataDir, "import", fixture); err != nil {
		t.Fatalf("import: %v", err)
	}

	out, err := runCLI(t, dataDir, "glossary", "list", "1")
	if err != nil {
		t.Fatalf("glossary list: %v", err)
	}
	requireContains(t, out, "Glossary is empty")

	out, err = runCLI(t, dataDir, "glossary", "add", "1", "cat", "кот")
	if err != nil {
		t.Fatalf("glossary add: %v", err)
	}
	requireContains(t, out, "Glossary entry added successfully!")

	if _, err := runCLI(t, dataDir, "glossary", "add", "1", " ", "x"); !apperrors.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	out, err = runCLI(t, dataDir, "glossary", "list", "1")
	if err != nil {
		t.Fatalf("glossary list: %v", err)
	}
	requireContains(t, out, "cat")
	requireContains(t, out, "кот")

	out, err = runCLI(t, dataDir, "glossary", "rm", "1")
	if err != nil {
		t.Fatalf("glossary rm: %v", err)
	}
	requireContains(t, out, "Glossary entry deleted successfully!")
}
