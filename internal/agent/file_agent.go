package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rand/rlm/internal/repl"
)

const fileAgentInstructions = `You can interact with a workspace on disk through three tools available in the repl environment:
- list_dir(path): list directory entries, one per line; directories carry a trailing slash
- read_file(path): return a file's contents
- write_file(path, contents): create or overwrite a file

Paths are relative to the workspace root. Explore before you edit.`

// NewFileAgent returns an agent whose tools operate on files under root.
// Paths that escape the root are rejected.
func NewFileAgent(root string) (*Agent, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", absRoot)
	}

	fa := &fileAgent{root: absRoot}
	return &Agent{
		Name:         "file",
		Instructions: fileAgentInstructions,
		Tools: map[string]repl.Tool{
			"list_dir":   fa.listDir,
			"read_file":  fa.readFile,
			"write_file": fa.writeFile,
		},
	}, nil
}

type fileAgent struct {
	root string
}

// resolve maps a tool-supplied path into the workspace and rejects
// escapes, including via "..".
func (f *fileAgent) resolve(p string) (string, error) {
	if p == "" {
		p = "."
	}
	abs := filepath.Join(f.root, filepath.Clean("/"+p))
	rel, err := filepath.Rel(f.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q escapes the workspace", p)
	}
	return abs, nil
}

func (f *fileAgent) listDir(args []string) (string, error) {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	abs, err := f.resolve(path)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}

func (f *fileAgent) readFile(args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("read_file: path required")
	}
	abs, err := f.resolve(args[0])
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (f *fileAgent) writeFile(args []string) (string, error) {
	if len(args) < 2 {
		return "", fmt.Errorf("write_file: path and contents required")
	}
	abs, err := f.resolve(args[0])
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(abs, []byte(args[1]), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(args[1]), args[0]), nil
}
