package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeExec(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell fakes require a POSIX shell")
	}
}

func noPath(string) (string, error) { return "", errors.New("not on PATH") }

func TestFinderPrefersProjectLocalBuild(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	root := t.TempDir()
	local := filepath.Join(root, "ffmpeg-7.0-full", "bin", "ffmpeg")
	writeExec(t, local, "#!/bin/sh\n")
	writeExec(t, filepath.Join(root, ".playwright-browsers", "ffmpeg-1009", "ffmpeg-linux", "ffmpeg"), "#!/bin/sh\n")

	p, strategy, err := Finder{Root: root, CacheDir: t.TempDir(), LookPath: noPath}.Find()
	require.NoError(t, err)
	require.Equal(t, local, p)
	require.Equal(t, "project-local", strategy)
}

func TestFinderBundledPicksNewestRevision(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	root := t.TempDir()
	writeExec(t, filepath.Join(root, ".playwright-browsers", "ffmpeg-1008", "ffmpeg"), "#!/bin/sh\n")
	newest := filepath.Join(root, ".playwright-browsers", "ffmpeg-1011", "ffmpeg-mac", "ffmpeg")
	writeExec(t, newest, "#!/bin/sh\n")

	p, strategy, err := Finder{Root: root, CacheDir: t.TempDir(), LookPath: noPath}.Find()
	require.NoError(t, err)
	require.Equal(t, newest, p)
	require.Equal(t, "bundled", strategy)
}

func TestFinderUserProfileThenPath(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	cache := t.TempDir()
	profile := filepath.Join(cache, "ms-playwright", "ffmpeg-1010", "ffmpeg-linux", "ffmpeg")
	writeExec(t, profile, "#!/bin/sh\n")

	p, strategy, err := Finder{Root: t.TempDir(), CacheDir: cache, LookPath: noPath}.Find()
	require.NoError(t, err)
	require.Equal(t, profile, p)
	require.Equal(t, "user-profile", strategy)

	p, strategy, err = Finder{
		Root:     t.TempDir(),
		CacheDir: t.TempDir(),
		LookPath: func(string) (string, error) { return "/usr/bin/ffmpeg", nil },
	}.Find()
	require.NoError(t, err)
	require.Equal(t, "/usr/bin/ffmpeg", p)
	require.Equal(t, "path", strategy)
}

func TestFinderNotFound(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	// Non-executable files never qualify.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "ffmpeg", "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ffmpeg", "bin", "ffmpeg"), nil, 0o644))

	_, _, err := Finder{Root: root, CacheDir: t.TempDir(), LookPath: noPath}.Find()
	if runtime.GOOS != "windows" {
		require.ErrorIs(t, err, ErrToolNotFound)
	}
}

func TestExtractFirstFrame(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	dir := t.TempDir()
	bin := filepath.Join(dir, "ffmpeg")
	writeExec(t, bin, "#!/bin/sh\nfor a; do last=\"$a\"; done\nprintf 'jpeg' > \"$last\"\n")

	out := filepath.Join(dir, "clip.jpg")
	ex := NewExtractor(WithBinary(bin))
	require.NoError(t, ex.ExtractFirstFrame(context.Background(), filepath.Join(dir, "clip.mp4"), out, false))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "jpeg", string(data))
}

func TestExtractFirstFrameOverwriteRegeneratesEachCall(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	dir := t.TempDir()
	bin := filepath.Join(dir, "ffmpeg")
	counter := filepath.Join(dir, "calls")
	argsLog := filepath.Join(dir, "args")
	// Each run bumps a counter and writes "frame-<n>" to the output path.
	writeExec(t, bin, "#!/bin/sh\n"+
		"n=$(cat '"+counter+"' 2>/dev/null || echo 0)\n"+
		"n=$((n+1))\n"+
		"echo $n > '"+counter+"'\n"+
		"echo \"$1\" >> '"+argsLog+"'\n"+
		"for a; do last=\"$a\"; done\n"+
		"printf 'frame-%s' $n > \"$last\"\n")

	out := filepath.Join(dir, "clip.jpg")
	require.NoError(t, os.WriteFile(out, []byte("stale"), 0o600))
	ex := NewExtractor(WithBinary(bin))

	for _, want := range []string{"frame-1", "frame-2"} {
		require.NoError(t, ex.ExtractFirstFrame(context.Background(), filepath.Join(dir, "clip.mp4"), out, true))
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		require.Equal(t, want, string(data))
	}

	flags, err := os.ReadFile(argsLog)
	require.NoError(t, err)
	require.Equal(t, "-y\n-y\n", string(flags))
}

func TestExtractFirstFrameNoOpWhenPresent(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	dir := t.TempDir()
	out := filepath.Join(dir, "clip.jpg")
	require.NoError(t, os.WriteFile(out, []byte("keep"), 0o600))

	ex := NewExtractor(WithBinary(filepath.Join(dir, "missing-ffmpeg")))
	require.NoError(t, ex.ExtractFirstFrame(context.Background(), "in.mp4", out, false))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "keep", string(data))
}

func TestExtractFirstFrameFailureCarriesOutput(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	dir := t.TempDir()
	bin := filepath.Join(dir, "ffmpeg")
	writeExec(t, bin, "#!/bin/sh\necho 'moov atom not found' >&2\nexit 1\n")

	err := NewExtractor(WithBinary(bin)).ExtractFirstFrame(context.Background(), "broken.mp4", filepath.Join(dir, "x.jpg"), true)
	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	require.Contains(t, extractErr.Output, "moov atom not found")
}

func TestExtractFirstFrameEmptyOutput(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	dir := t.TempDir()
	bin := filepath.Join(dir, "ffmpeg")
	writeExec(t, bin, "#!/bin/sh\nexit 0\n")

	err := NewExtractor(WithBinary(bin)).ExtractFirstFrame(context.Background(), "a.mp4", filepath.Join(dir, "x.jpg"), true)
	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
}

func TestExtractorWithoutToolReportsNotFound(t *testing.T) {
	t.Parallel()

	ex := NewExtractor(WithFinder(Finder{Root: t.TempDir(), CacheDir: t.TempDir(), LookPath: noPath}))
	err := ex.ExtractFirstFrame(context.Background(), "a.mp4", filepath.Join(t.TempDir(), "x.jpg"), false)
	require.ErrorIs(t, err, ErrToolNotFound)
}
