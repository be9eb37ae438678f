package scene

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed scenes/*.yaml
var ScenesFS embed.FS

//go:embed scripts/*.tengo
var ScriptsFS embed.FS

// ReadFile returns a scene file from disk if it exists there, otherwise the
// embedded copy of the same name.
func ReadFile(name string) ([]byte, error) {
	if data, err := os.ReadFile(name); err == nil {
		return data, nil
	}
	return ScenesFS.ReadFile(cleanScenePath(name))
}

// ReadScript resolves a driver script the same way, relative to dir first.
func ReadScript(dir, name string) ([]byte, error) {
	if dir != "" {
		if data, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
			return data, nil
		}
	}
	if data, err := os.ReadFile(name); err == nil {
		return data, nil
	}
	return ScriptsFS.ReadFile(cleanScriptPath(name))
}

// List returns the names of the embedded scenes without extension.
func List() []string {
	entries, err := fs.ReadDir(ScenesFS, "scenes")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if isSceneFile(e.Name()) {
			names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		}
	}
	sort.Strings(names)
	return names
}

func cleanScenePath(name string) string {
	s := filepath.ToSlash(name)
	s = strings.TrimPrefix(s, "scenes/")
	if filepath.Ext(s) == "" {
		s += ".yaml"
	}
	return "scenes/" + s
}

func cleanScriptPath(name string) string {
	s := filepath.ToSlash(name)
	if after, ok := strings.CutPrefix(s, "scene/"); ok {
		s = after
	}
	if after, ok := strings.CutPrefix(s, "scripts/"); ok {
		s = after
	}
	return "scripts/" + s
}

func isSceneFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
