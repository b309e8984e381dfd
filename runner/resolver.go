package runner

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	lru "github.com/hashicorp/golang-lru"
)

// pathCacheSize bounds the number of remembered PATH lookups.
const pathCacheSize = 256

// ExecutableFinder translates the logical command of a test into a file path.
type ExecutableFinder interface {
	FindExecutable(dir, command string) (string, error)
}

// buildConfigurations are searched when no configuration type is selected.
var buildConfigurations = []string{"Release", "Debug", "MinSizeRel", "RelWithDebInfo", "Deployment", "Development"}

// ExecutableResolver looks for test executables next to the declared path,
// inside build configuration sub-directories and finally on PATH.
type ExecutableResolver struct {
	ConfigType string

	lookPath  func(string) (string, error)
	pathCache *lru.Cache // command name -> PATH hit, shared by concurrent units
}

// NewExecutableResolver creates a resolver for the given configuration type.
func NewExecutableResolver(configType string) *ExecutableResolver {
	cache, _ := lru.New(pathCacheSize) // only fails for a non-positive size
	return &ExecutableResolver{ConfigType: configType, lookPath: exec.LookPath, pathCache: cache}
}

// FindExecutable returns the first existing candidate for command.
func (r *ExecutableResolver) FindExecutable(dir, command string) (string, error) {
	if command == "" {
		return "", fmt.Errorf("empty command")
	}
	attempted := r.candidates(dir, command)
	for _, candidate := range attempted {
		if isExecutableFile(candidate) {
			return filepath.Clean(candidate), nil
		}
	}
	if !strings.ContainsRune(command, '/') && !strings.ContainsRune(command, filepath.Separator) {
		if found, ok := r.searchPath(command); ok {
			return found, nil
		}
	}
	return "", fmt.Errorf("could not find executable %s, looked in %s", command, strings.Join(attempted, ", "))
}

func (r *ExecutableResolver) searchPath(command string) (string, bool) {
	if r.pathCache != nil {
		if v, ok := r.pathCache.Get(command); ok {
			return v.(string), true
		}
	}
	lookPath := r.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	found, err := lookPath(command)
	if err != nil {
		return "", false
	}
	if r.pathCache != nil {
		r.pathCache.Add(command, found)
	}
	return found, true
}

func (r *ExecutableResolver) candidates(dir, command string) []string {
	path := command
	if !filepath.IsAbs(path) && dir != "" {
		path = filepath.Join(dir, path)
	}
	parent, base := filepath.Split(path)

	configs := buildConfigurations
	if r.ConfigType != "" {
		configs = []string{r.ConfigType}
	}

	var out []string
	add := func(p string) {
		out = append(out, p)
		if runtime.GOOS == "windows" && filepath.Ext(p) == "" {
			out = append(out, p+".exe")
		}
	}
	add(path)
	for _, cfg := range configs {
		add(filepath.Join(parent, cfg, base))
	}
	return out
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0o111 != 0
}
