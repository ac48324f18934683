// Package ffmpeg locates the ffmpeg and ffprobe executables.
package ffmpeg

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

// ErrNotFound is returned when an executable cannot be located.
var ErrNotFound = errors.New("ffmpeg: executable not found")

const (
	FFmpeg  = "ffmpeg"
	FFprobe = "ffprobe"
)

var (
	mu          sync.RWMutex
	customPaths = map[string]string{}
)

// SetPath overrides the location of the named executable. An empty path
// restores the default search.
func SetPath(name, path string) {
	mu.Lock()
	defer mu.Unlock()
	if path == "" {
		delete(customPaths, name)
		return
	}
	customPaths[name] = path
}

// Find searches for the named executable.
// Priority: 1) SetPath, 2) FFMPEG_PATH / FFPROBE_PATH env, 3) PATH, 4) common locations
func Find(name string) (string, error) {
	mu.RLock()
	custom := customPaths[name]
	mu.RUnlock()

	if custom != "" {
		if _, err := os.Stat(custom); err == nil {
			return custom, nil
		}
		return "", fmt.Errorf("%w: custom path %s not found", ErrNotFound, custom)
	}

	envName := strings.ToUpper(name) + "_PATH"
	if envPath := os.Getenv(envName); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		return "", fmt.Errorf("%w: %s %s not found", ErrNotFound, envName, envPath)
	}

	execName := name
	if runtime.GOOS == "windows" {
		execName += ".exe"
	}
	if path, err := exec.LookPath(execName); err == nil {
		return path, nil
	}

	for _, dir := range commonDirs() {
		p := dir + string(os.PathSeparator) + execName
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Available reports whether the named executable can be found.
func Available(name string) bool {
	_, err := Find(name)
	return err == nil
}

func commonDirs() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			`C:\ffmpeg\bin`,
			`C:\Program Files\ffmpeg\bin`,
			`C:\Program Files (x86)\ffmpeg\bin`,
		}
	case "darwin":
		return []string{"/opt/homebrew/bin", "/usr/local/bin", "/usr/bin"}
	default:
		return []string{"/usr/bin", "/usr/local/bin", "/opt/homebrew/bin", "/snap/bin"}
	}
}
