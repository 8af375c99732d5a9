// Package media wraps the external ffmpeg tool used to turn downloaded videos
// into cover images.
package media

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
)

// ErrToolNotFound is returned when no ffmpeg executable can be located.
var ErrToolNotFound = errors.New("ffmpeg executable not found")

// Strategy is one step of the discovery chain.
type Strategy struct {
	Name string
	Find func() (string, bool)
}

// Finder locates ffmpeg. The zero value searches the working directory,
// the user cache dir and PATH.
type Finder struct {
	// Root is the project directory holding local or bundled builds.
	Root string
	// CacheDir is the user-profile cache containing ms-playwright.
	CacheDir string
	// LookPath defaults to exec.LookPath.
	LookPath func(string) (string, error)
}

func exeName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// Strategies returns the ordered discovery chain.
func (f Finder) Strategies() []Strategy {
	root := f.Root
	if root == "" {
		root, _ = os.Getwd()
	}
	cache := f.CacheDir
	if cache == "" {
		cache, _ = os.UserCacheDir()
	}
	lookPath := f.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	return []Strategy{
		{Name: "project-local", Find: func() (string, bool) {
			return firstExecutable(globSorted(filepath.Join(root, "ffmpeg*", "bin", exeName("ffmpeg"))))
		}},
		{Name: "bundled", Find: func() (string, bool) {
			return fromPlaywrightDirs(globSorted(filepath.Join(root, ".playwright-browsers", "ffmpeg-*")))
		}},
		{Name: "user-profile", Find: func() (string, bool) {
			if cache == "" {
				return "", false
			}
			return fromPlaywrightDirs(globSorted(filepath.Join(cache, "ms-playwright", "ffmpeg-*")))
		}},
		{Name: "path", Find: func() (string, bool) {
			p, err := lookPath("ffmpeg")
			return p, err == nil && p != ""
		}},
	}
}

// Find walks the chain and returns the first hit.
func (f Finder) Find() (string, string, error) {
	for _, s := range f.Strategies() {
		if p, ok := s.Find(); ok {
			return p, s.Name, nil
		}
	}
	return "", "", ErrToolNotFound
}

func globSorted(pattern string) []string {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}

// fromPlaywrightDirs prefers the most recent revision directory.
func fromPlaywrightDirs(dirs []string) (string, bool) {
	for i := len(dirs) - 1; i >= 0; i-- {
		d := dirs[i]
		candidates := []string{
			filepath.Join(d, exeName("ffmpeg")),
			filepath.Join(d, "ffmpeg-linux", "ffmpeg"),
			filepath.Join(d, "ffmpeg-mac", "ffmpeg"),
			filepath.Join(d, "ffmpeg-win64.exe"),
		}
		if p, ok := firstExecutable(candidates); ok {
			return p, true
		}
	}
	return "", false
}

func firstExecutable(paths []string) (string, bool) {
	for _, p := range paths {
		if isExecutable(p) {
			return p, true
		}
	}
	return "", false
}

func isExecutable(p string) bool {
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
