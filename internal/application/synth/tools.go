package synth

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/synthloom/core/internal/domain"
)

// FileToolRunner implements Runner's ToolRunner by shelling out to
// python3 for python_exec and handling the remaining file/command tools
// directly, all confined beneath a configured workspace root (spec:
// "All tools accept only paths beneath a configured workspace root;
// paths outside are rejected with a security error").
type FileToolRunner struct {
	workspaceRoot string
	executor      *Executor
	commandTimeout time.Duration
}

// NewFileToolRunner creates a FileToolRunner rooted at workspaceRoot,
// reusing executor for python_exec.
func NewFileToolRunner(workspaceRoot string, executor *Executor, commandTimeout time.Duration) *FileToolRunner {
	if commandTimeout <= 0 {
		commandTimeout = 10 * time.Second
	}
	return &FileToolRunner{workspaceRoot: workspaceRoot, executor: executor, commandTimeout: commandTimeout}
}

// RunTool dispatches call.Tool to the matching handler.
func (f *FileToolRunner) RunTool(ctx context.Context, call domain.ToolCall) (string, error) {
	switch call.Tool {
	case "python_exec":
		return f.runPython(ctx, call.Params)
	case "write_file":
		return f.writeFile(call.Params)
	case "read_file":
		return f.readFile(call.Params)
	case "list_dir":
		return f.listDir(call.Params)
	case "run_command":
		return f.runCommand(ctx, call.Params)
	case "search_files":
		return f.searchFiles(call.Params)
	case "replace_in_file":
		return f.replaceInFile(call.Params)
	default:
		return "", fmt.Errorf("unknown tool: %s", call.Tool)
	}
}

// resolvePath confines path beneath the workspace root, rejecting any
// attempt to escape it (spec's "security error" requirement).
func (f *FileToolRunner) resolvePath(path string) (string, error) {
	joined := filepath.Join(f.workspaceRoot, path)
	cleaned := filepath.Clean(joined)
	rootClean := filepath.Clean(f.workspaceRoot)
	if cleaned != rootClean && !strings.HasPrefix(cleaned, rootClean+string(filepath.Separator)) {
		return "", fmt.Errorf("security error: path %q escapes workspace root", path)
	}
	return cleaned, nil
}

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (f *FileToolRunner) runPython(ctx context.Context, params map[string]any) (string, error) {
	code, ok := stringParam(params, "code")
	if !ok {
		return "", fmt.Errorf("python_exec requires a string 'code' parameter")
	}
	result := f.executor.Execute(ctx, code)
	if result.Err != nil {
		return result.Stdout, fmt.Errorf("python_exec failed: %s", result.Stderr)
	}
	return result.Stdout, nil
}

func (f *FileToolRunner) writeFile(params map[string]any) (string, error) {
	path, ok := stringParam(params, "path")
	if !ok {
		return "", fmt.Errorf("write_file requires a string 'path' parameter")
	}
	content, _ := stringParam(params, "content")
	resolved, err := f.resolvePath(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return "", err
	}
	return "wrote " + path, nil
}

func (f *FileToolRunner) readFile(params map[string]any) (string, error) {
	path, ok := stringParam(params, "path")
	if !ok {
		return "", fmt.Errorf("read_file requires a string 'path' parameter")
	}
	resolved, err := f.resolvePath(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (f *FileToolRunner) listDir(params map[string]any) (string, error) {
	path, ok := stringParam(params, "path")
	if !ok {
		path = "."
	}
	resolved, err := f.resolvePath(path)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return "", err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return strings.Join(names, "\n"), nil
}

func (f *FileToolRunner) runCommand(ctx context.Context, params map[string]any) (string, error) {
	command, ok := stringParam(params, "command")
	if !ok {
		return "", fmt.Errorf("run_command requires a string 'command' parameter")
	}
	ctx, cancel := context.WithTimeout(ctx, f.commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = f.workspaceRoot
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("run_command failed: %s", stderr.String())
	}
	return stdout.String(), nil
}

func (f *FileToolRunner) searchFiles(params map[string]any) (string, error) {
	query, ok := stringParam(params, "query")
	if !ok {
		return "", fmt.Errorf("search_files requires a string 'query' parameter")
	}
	path, _ := stringParam(params, "path")
	if path == "" {
		path = "."
	}
	resolved, err := f.resolvePath(path)
	if err != nil {
		return "", err
	}
	extensions := stringSliceParam(params, "extensions")

	var matches []string
	_ = filepath.Walk(resolved, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if len(extensions) > 0 && !hasAnyExt(p, extensions) {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		if strings.Contains(string(data), query) {
			rel, _ := filepath.Rel(f.workspaceRoot, p)
			matches = append(matches, rel)
		}
		return nil
	})
	return strings.Join(matches, "\n"), nil
}

func (f *FileToolRunner) replaceInFile(params map[string]any) (string, error) {
	path, ok := stringParam(params, "path")
	if !ok {
		return "", fmt.Errorf("replace_in_file requires a string 'path' parameter")
	}
	target, _ := stringParam(params, "target")
	replacement, _ := stringParam(params, "replacement")
	resolved, err := f.resolvePath(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", err
	}
	updated := strings.ReplaceAll(string(data), target, replacement)
	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return "", err
	}
	return "replaced in " + path, nil
}

func stringSliceParam(params map[string]any, key string) []string {
	v, ok := params[key]
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func hasAnyExt(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	for _, e := range extensions {
		if ext == e || ext == "."+strings.TrimPrefix(e, ".") {
			return true
		}
	}
	return false
}
