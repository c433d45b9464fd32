package server

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

var treeAllowedExtensions = map[string]bool{
	".md":    true,
	".ps1":   true,
	".js":    true,
	".css":   true,
	".html":  true,
	".cs":    true,
	".razor": true,
}

var treeExcludedDirs = map[string]bool{
	"node_modules": true,
	"bin":          true,
	"obj":          true,
}

type FileNode struct {
	Name      string     `json:"name"`
	Path      string     `json:"path"`
	Type      string     `json:"type"`
	Extension string     `json:"extension,omitempty"`
	Children  []FileNode `json:"children,omitempty"`
}

// buildFileTree walks dirPath collecting files with allowed extensions.
// Directories come before files, both alphabetical; empty directories are
// pruned from the result.
func buildFileTree(dirPath, relativePath string) []FileNode {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		log.Printf("Error reading directory %s: %v", dirPath, err)
		return nil
	}

	var nodes []FileNode
	for _, entry := range entries {
		itemPath := filepath.Join(dirPath, entry.Name())
		itemRel := entry.Name()
		if relativePath != "" {
			itemRel = filepath.Join(relativePath, entry.Name())
		}

		if entry.IsDir() {
			if treeExcludedDirs[entry.Name()] {
				continue
			}
			children := buildFileTree(itemPath, itemRel)
			if len(children) > 0 {
				nodes = append(nodes, FileNode{
					Name:     entry.Name(),
					Path:     itemRel,
					Type:     "directory",
					Children: children,
				})
			}
			continue
		}

		ext := filepath.Ext(entry.Name())
		if treeAllowedExtensions[ext] {
			nodes = append(nodes, FileNode{
				Name:      entry.Name(),
				Path:      itemRel,
				Type:      "file",
				Extension: ext,
			})
		}
	}

	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Type == nodes[j].Type {
			return nodes[i].Name < nodes[j].Name
		}
		return nodes[i].Type == "directory"
	})
	return nodes
}

// FileTree caches the built tree for one root and invalidates the cache when
// fsnotify reports a change anywhere under it. Watching is best-effort: if the
// watcher cannot be created the tree is simply rebuilt on every request.
type FileTree struct {
	mu      sync.Mutex
	root    string
	nodes   []FileNode
	valid   bool
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewFileTree() *FileTree {
	return &FileTree{}
}

func (t *FileTree) Nodes(root string) []FileNode {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.root != root {
		t.closeWatcherLocked()
		t.root = root
		t.valid = false
		t.startWatcherLocked(root)
	}
	if t.valid {
		return t.nodes
	}
	t.nodes = buildFileTree(root, "")
	t.valid = true
	return t.nodes
}

func (t *FileTree) invalidate() {
	t.mu.Lock()
	t.valid = false
	t.mu.Unlock()
}

func (t *FileTree) startWatcherLocked(root string) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("File watcher unavailable: %v", err)
		return
	}
	t.watcher = w
	t.done = make(chan struct{})

	addDirs(w, root)

	done := t.done
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				t.invalidate()
				if ev.Op&fsnotify.Create != 0 {
					if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
						addDirs(w, ev.Name)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("File watcher error: %v", err)
			case <-done:
				return
			}
		}
	}()
}

func addDirs(w *fsnotify.Watcher, root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if treeExcludedDirs[d.Name()] && path != root {
			return filepath.SkipDir
		}
		_ = w.Add(path)
		return nil
	})
}

func (t *FileTree) closeWatcherLocked() {
	if t.watcher != nil {
		close(t.done)
		_ = t.watcher.Close()
		t.watcher = nil
		t.done = nil
	}
}

func (t *FileTree) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeWatcherLocked()
}

// resolveUnderRoot joins a request-supplied relative path onto the configured
// root, refusing anything that would escape it.
func resolveUnderRoot(root, p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.Contains(p, "\x00") {
		return "", fmt.Errorf("invalid path")
	}
	if filepath.IsAbs(p) {
		return "", fmt.Errorf("absolute paths are not allowed")
	}
	cleanRel := filepath.Clean(p)
	if cleanRel == "." || strings.HasPrefix(cleanRel, "..") {
		return "", fmt.Errorf("path traversal is not allowed")
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	targetAbs := filepath.Join(rootAbs, cleanRel)
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path escapes root")
	}
	return targetAbs, nil
}
