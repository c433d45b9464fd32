package server

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTreeFile(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestBuildFileTree_FiltersAndSorts(t *testing.T) {
	root := t.TempDir()
	writeTreeFile(t, root, "readme.md")
	writeTreeFile(t, root, "app.js")
	writeTreeFile(t, root, "image.png")
	writeTreeFile(t, root, "docs/guide.md")
	writeTreeFile(t, root, "node_modules/pkg/index.js")
	writeTreeFile(t, root, "bin/tool.ps1")

	nodes := buildFileTree(root, "")
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d: %+v", len(nodes), nodes)
	}

	if nodes[0].Name != "docs" || nodes[0].Type != "directory" {
		t.Errorf("expected docs directory first, got %+v", nodes[0])
	}
	if len(nodes[0].Children) != 1 || nodes[0].Children[0].Path != filepath.Join("docs", "guide.md") {
		t.Errorf("unexpected docs children: %+v", nodes[0].Children)
	}
	if nodes[1].Name != "app.js" || nodes[1].Extension != ".js" {
		t.Errorf("expected app.js second, got %+v", nodes[1])
	}
	if nodes[2].Name != "readme.md" {
		t.Errorf("expected readme.md third, got %+v", nodes[2])
	}
}

func TestBuildFileTree_PrunesEmptyDirectories(t *testing.T) {
	root := t.TempDir()
	writeTreeFile(t, root, "keep/file.md")
	writeTreeFile(t, root, "drop/photo.png")
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	nodes := buildFileTree(root, "")
	if len(nodes) != 1 || nodes[0].Name != "keep" {
		t.Errorf("expected only keep/ to survive, got %+v", nodes)
	}
}

func TestBuildFileTree_MissingDirectory(t *testing.T) {
	nodes := buildFileTree(filepath.Join(t.TempDir(), "nope"), "")
	if nodes != nil {
		t.Errorf("expected nil for unreadable directory, got %+v", nodes)
	}
}

func TestFileTree_NodesCachesPerRoot(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	writeTreeFile(t, rootA, "a.md")
	writeTreeFile(t, rootB, "b.md")

	tree := NewFileTree()
	defer tree.Close()

	nodes := tree.Nodes(rootA)
	if len(nodes) != 1 || nodes[0].Name != "a.md" {
		t.Fatalf("unexpected tree for rootA: %+v", nodes)
	}
	// Cached result is stable across calls for the same root.
	again := tree.Nodes(rootA)
	if len(again) != 1 || again[0].Name != "a.md" {
		t.Errorf("unexpected cached tree: %+v", again)
	}

	nodes = tree.Nodes(rootB)
	if len(nodes) != 1 || nodes[0].Name != "b.md" {
		t.Errorf("root change must rebuild, got %+v", nodes)
	}
}

func TestFileTree_InvalidateForcesRebuild(t *testing.T) {
	root := t.TempDir()
	writeTreeFile(t, root, "a.md")

	tree := NewFileTree()
	defer tree.Close()

	if n := len(tree.Nodes(root)); n != 1 {
		t.Fatalf("expected 1 node, got %d", n)
	}

	writeTreeFile(t, root, "b.md")
	tree.invalidate()

	if n := len(tree.Nodes(root)); n != 2 {
		t.Errorf("expected rebuild to pick up new file, got %d nodes", n)
	}
}

func TestResolveUnderRoot(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"simple file", "file.md", false},
		{"nested file", filepath.Join("docs", "guide.md"), false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"dot", ".", true},
		{"parent escape", "../outside.md", true},
		{"nested escape", filepath.Join("docs", "..", "..", "secret"), true},
		{"absolute", string(filepath.Separator) + "etc" + string(filepath.Separator) + "passwd", true},
		{"null byte", "a\x00b", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			abs, err := resolveUnderRoot(root, tc.path)
			if tc.wantErr {
				if err == nil {
					t.Errorf("resolveUnderRoot(%q) = %q, expected error", tc.path, abs)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveUnderRoot(%q): %v", tc.path, err)
			}
			rel, err := filepath.Rel(root, abs)
			if err != nil || rel == ".." || filepath.IsAbs(rel) {
				t.Errorf("resolved path %q is not under root %q", abs, root)
			}
		})
	}
}
