package toolbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

const readFileDefaultLimit = 2000

func toolInfo(name, desc string, params map[string]*schema.ParameterInfo) *schema.ToolInfo {
	info := &schema.ToolInfo{Name: name, Desc: desc}
	if len(params) > 0 {
		info.ParamsOneOf = schema.NewParamsOneOfByParams(params)
	}
	return info
}

// =============================================================================
// ls
// =============================================================================

// LsTool lists a directory inside the sandbox.
type LsTool struct {
	sandbox *Sandbox
}

func NewLsTool(sandbox *Sandbox) *LsTool {
	return &LsTool{sandbox: sandbox}
}

func (t *LsTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolInfo("ls", "List files and directories at a path inside the workspace.",
		map[string]*schema.ParameterInfo{
			"path": {
				Type: schema.String,
				Desc: "Directory to list, relative to the workspace root. Defaults to the root.",
			},
		}), nil
}

func (t *LsTool) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("ls: parse input: %w", err)
	}
	if input.Path == "" {
		input.Path = "."
	}

	dir, err := t.sandbox.Resolve(input.Path)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("ls: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return "(empty directory)", nil
	}
	return strings.Join(names, "\n"), nil
}

// =============================================================================
// read_file
// =============================================================================

// ReadFileTool reads a file inside the sandbox with numbered lines.
type ReadFileTool struct {
	sandbox *Sandbox
}

func NewReadFileTool(sandbox *Sandbox) *ReadFileTool {
	return &ReadFileTool{sandbox: sandbox}
}

func (t *ReadFileTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolInfo("read_file", "Read a file from the workspace. Output is numbered per line.",
		map[string]*schema.ParameterInfo{
			"file_path": {
				Type:     schema.String,
				Desc:     "Path of the file to read.",
				Required: true,
			},
			"offset": {
				Type: schema.Integer,
				Desc: "1-based line to start reading from.",
			},
			"limit": {
				Type: schema.Integer,
				Desc: "Maximum number of lines to return.",
			},
		}), nil
}

func (t *ReadFileTool) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input struct {
		FilePath string `json:"file_path"`
		Offset   int    `json:"offset"`
		Limit    int    `json:"limit"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("read_file: parse input: %w", err)
	}
	if input.FilePath == "" {
		return "", fmt.Errorf("read_file: file_path is required")
	}

	path, err := t.sandbox.Resolve(input.FilePath)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	offset := input.Offset
	if offset < 1 {
		offset = 1
	}
	limit := input.Limit
	if limit <= 0 {
		limit = readFileDefaultLimit
	}
	if offset > len(lines) {
		return "", fmt.Errorf("read_file: offset %d past end of file (%d lines)", offset, len(lines))
	}

	end := offset - 1 + limit
	if end > len(lines) {
		end = len(lines)
	}

	var b strings.Builder
	for i := offset - 1; i < end; i++ {
		fmt.Fprintf(&b, "%6d\t%s\n", i+1, lines[i])
	}
	return b.String(), nil
}

// =============================================================================
// write_file
// =============================================================================

// WriteFileTool writes a file inside the sandbox, creating parents.
type WriteFileTool struct {
	sandbox *Sandbox
}

func NewWriteFileTool(sandbox *Sandbox) *WriteFileTool {
	return &WriteFileTool{sandbox: sandbox}
}

func (t *WriteFileTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolInfo("write_file", "Create or overwrite a file in the workspace.",
		map[string]*schema.ParameterInfo{
			"file_path": {
				Type:     schema.String,
				Desc:     "Path of the file to write.",
				Required: true,
			},
			"content": {
				Type:     schema.String,
				Desc:     "Full content of the file.",
				Required: true,
			},
		}), nil
}

func (t *WriteFileTool) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("write_file: parse input: %w", err)
	}
	if input.FilePath == "" {
		return "", fmt.Errorf("write_file: file_path is required")
	}

	path, err := t.sandbox.Resolve(input.FilePath)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("write_file: %w", err)
	}
	if err := os.WriteFile(path, []byte(input.Content), 0644); err != nil {
		return "", fmt.Errorf("write_file: %w", err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(input.Content), input.FilePath), nil
}

// =============================================================================
// edit_file
// =============================================================================

// EditFileTool replaces an exact string in a file inside the sandbox.
type EditFileTool struct {
	sandbox *Sandbox
}

func NewEditFileTool(sandbox *Sandbox) *EditFileTool {
	return &EditFileTool{sandbox: sandbox}
}

func (t *EditFileTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolInfo("edit_file", "Replace an exact string in a workspace file. The old string must match exactly once unless replace_all is set.",
		map[string]*schema.ParameterInfo{
			"file_path": {
				Type:     schema.String,
				Desc:     "Path of the file to edit.",
				Required: true,
			},
			"old_string": {
				Type:     schema.String,
				Desc:     "Exact text to replace.",
				Required: true,
			},
			"new_string": {
				Type:     schema.String,
				Desc:     "Replacement text.",
				Required: true,
			},
			"replace_all": {
				Type: schema.Boolean,
				Desc: "Replace every occurrence instead of requiring a unique match.",
			},
		}), nil
}

func (t *EditFileTool) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input struct {
		FilePath   string `json:"file_path"`
		OldString  string `json:"old_string"`
		NewString  string `json:"new_string"`
		ReplaceAll bool   `json:"replace_all"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("edit_file: parse input: %w", err)
	}
	if input.FilePath == "" {
		return "", fmt.Errorf("edit_file: file_path is required")
	}
	if input.OldString == "" {
		return "", fmt.Errorf("edit_file: old_string is required")
	}

	path, err := t.sandbox.Resolve(input.FilePath)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("edit_file: %w", err)
	}
	content := string(data)

	count := strings.Count(content, input.OldString)
	if count == 0 {
		return "", fmt.Errorf("edit_file: old_string not found in %s", input.FilePath)
	}
	if count > 1 && !input.ReplaceAll {
		return "", fmt.Errorf("edit_file: old_string matches %d times in %s, pass replace_all or make it unique", count, input.FilePath)
	}

	replaced := strings.Replace(content, input.OldString, input.NewString, -1)
	if !input.ReplaceAll {
		replaced = strings.Replace(content, input.OldString, input.NewString, 1)
	}
	if err := os.WriteFile(path, []byte(replaced), 0644); err != nil {
		return "", fmt.Errorf("edit_file: %w", err)
	}

	if input.ReplaceAll {
		return fmt.Sprintf("replaced %d occurrences in %s", count, input.FilePath), nil
	}
	return fmt.Sprintf("edited %s", input.FilePath), nil
}

var (
	_ tool.InvokableTool = (*LsTool)(nil)
	_ tool.InvokableTool = (*ReadFileTool)(nil)
	_ tool.InvokableTool = (*WriteFileTool)(nil)
	_ tool.InvokableTool = (*EditFileTool)(nil)
)
