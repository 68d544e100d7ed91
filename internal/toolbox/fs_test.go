package toolbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestSandbox(t *testing.T) *Sandbox {
	t.Helper()
	sb, err := NewSandbox(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return sb
}

func TestSandboxResolve(t *testing.T) {
	sb := newTestSandbox(t)

	got, err := sb.Resolve("notes/today.md")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, sb.Root()) {
		t.Errorf("resolved path %q not under root %q", got, sb.Root())
	}

	_, err = sb.Resolve("../outside.txt")
	var aerr *AccessError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AccessError, got %v", err)
	}

	_, err = sb.Resolve("/etc/passwd")
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AccessError for absolute escape, got %v", err)
	}
}

func TestSandboxAllowedPatterns(t *testing.T) {
	extra := t.TempDir()
	sb, err := NewSandbox(t.TempDir(), []string{filepath.Join(extra, "**")})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := sb.Resolve(filepath.Join(extra, "shared", "data.json")); err != nil {
		t.Errorf("allowed pattern rejected: %v", err)
	}
}

func TestLsTool(t *testing.T) {
	sb := newTestSandbox(t)
	if err := os.MkdirAll(filepath.Join(sb.Root(), "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sb.Root(), "a.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := NewLsTool(sb).InvokableRun(context.Background(), `{}`)
	if err != nil {
		t.Fatal(err)
	}
	if out != "a.txt\nsub/" {
		t.Errorf("unexpected listing: %q", out)
	}
}

func TestReadFileTool(t *testing.T) {
	sb := newTestSandbox(t)
	content := "first\nsecond\nthird\nfourth"
	if err := os.WriteFile(filepath.Join(sb.Root(), "f.txt"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	rt := NewReadFileTool(sb)

	out, err := rt.InvokableRun(context.Background(), `{"file_path":"f.txt"}`)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "1\tfirst") || !strings.Contains(out, "4\tfourth") {
		t.Errorf("unexpected output: %q", out)
	}

	out, err = rt.InvokableRun(context.Background(), `{"file_path":"f.txt","offset":2,"limit":2}`)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "first") || !strings.Contains(out, "second") || strings.Contains(out, "fourth") {
		t.Errorf("offset/limit not honored: %q", out)
	}

	if _, err := rt.InvokableRun(context.Background(), `{"file_path":"missing.txt"}`); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWriteFileToolCreatesParents(t *testing.T) {
	sb := newTestSandbox(t)

	out, err := NewWriteFileTool(sb).InvokableRun(context.Background(),
		`{"file_path":"deep/nested/file.txt","content":"hello"}`)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "5 bytes") {
		t.Errorf("unexpected output: %q", out)
	}

	data, err := os.ReadFile(filepath.Join(sb.Root(), "deep", "nested", "file.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("unexpected content: %q", data)
	}
}

func TestWriteFileToolSandboxed(t *testing.T) {
	sb := newTestSandbox(t)

	_, err := NewWriteFileTool(sb).InvokableRun(context.Background(),
		`{"file_path":"../../escape.txt","content":"x"}`)
	var aerr *AccessError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AccessError, got %v", err)
	}
}

func TestEditFileTool(t *testing.T) {
	sb := newTestSandbox(t)
	path := filepath.Join(sb.Root(), "f.txt")
	if err := os.WriteFile(path, []byte("alpha beta alpha"), 0644); err != nil {
		t.Fatal(err)
	}
	et := NewEditFileTool(sb)

	// Ambiguous match is rejected.
	_, err := et.InvokableRun(context.Background(),
		`{"file_path":"f.txt","old_string":"alpha","new_string":"gamma"}`)
	if err == nil || !strings.Contains(err.Error(), "2 times") {
		t.Fatalf("expected ambiguity error, got %v", err)
	}

	// replace_all fixes it.
	if _, err := et.InvokableRun(context.Background(),
		`{"file_path":"f.txt","old_string":"alpha","new_string":"gamma","replace_all":true}`); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "gamma beta gamma" {
		t.Errorf("unexpected content: %q", data)
	}

	// Unique match replaces once.
	if _, err := et.InvokableRun(context.Background(),
		`{"file_path":"f.txt","old_string":"beta","new_string":"delta"}`); err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "gamma delta gamma" {
		t.Errorf("unexpected content: %q", data)
	}

	_, err = et.InvokableRun(context.Background(),
		`{"file_path":"f.txt","old_string":"zeta","new_string":"x"}`)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestAccessErrorThroughToolBox(t *testing.T) {
	sb := newTestSandbox(t)
	b := New(nil, 0, nil)
	if err := b.Register(context.Background(), NewReadFileTool(sb)); err != nil {
		t.Fatal(err)
	}

	res := b.Invoke(context.Background(), "read_file",
		fmt.Sprintf(`{"file_path":%q}`, "/etc/passwd"))
	var aerr *AccessError
	if !errors.As(res.Err, &aerr) {
		t.Fatalf("expected AccessError from toolbox, got %v", res.Err)
	}
}
