package crawler

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDetectPlatform(t *testing.T) {
	t.Parallel()

	require.Equal(t, PlatformDouyin, DetectPlatform("https://www.douyin.com/video/123"))
	require.Equal(t, PlatformDouyin, DetectPlatform("https://v.douyin.com/ie1oNqK8/"))
	require.Equal(t, PlatformToutiao, DetectPlatform("https://m.toutiao.com/is/yUQq2dpR7d0/"))
	require.Equal(t, PlatformSelfAuthored, DetectPlatform("my idea for a video"))
	require.Equal(t, PlatformSelfAuthored, DetectPlatform("https://www.ixigua.com/123"))
}

func TestParsePlatform(t *testing.T) {
	t.Parallel()

	p, ok := ParsePlatform(" Douyin ")
	require.True(t, ok)
	require.Equal(t, PlatformDouyin, p)
	_, ok = ParsePlatform("bilibili")
	require.False(t, ok)
}

func TestSafeStem(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	require.Equal(t, "hello_world_abcdef12", SafeStem("hello world!?", now, "abcdef1234567890"))
	require.Equal(t, "video_1700000000_abcdef12", SafeStem("***", now, "abcdef1234567890"))
	require.Equal(t, "视频标题", SafeStem("视频/标题", now, ""))

	long := strings.Repeat("a", 80)
	require.Equal(t, strings.Repeat("a", 50)+"_deadbeef", SafeStem(long, now, "deadbeef"))
}

func TestManagedFileURLRoundTrip(t *testing.T) {
	t.Parallel()

	rel := ManagedPath(MediaPrefix, "clip_1234.jpg")
	u := ManagedFileURL(rel)
	require.True(t, strings.HasPrefix(u, "/getFile?filename="))

	got, ok := FilenameFromURL(u)
	require.True(t, ok)
	require.Equal(t, "creative_collection/clip_1234.jpg", got)
	require.Equal(t, "creative_collection/clip_1234.mp4", SiblingPath(got, ".mp4"))

	_, ok = FilenameFromURL("https://cdn.example.com/cover.jpg")
	require.False(t, ok)
	_, ok = FilenameFromURL("/getFile?other=1")
	require.False(t, ok)
}

func TestNormalizeMediaURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://cdn.example.com/v.mp4", NormalizeMediaURL("//cdn.example.com/v.mp4"))
	require.Equal(t, "http://x/v.mp4", NormalizeMediaURL(" http://x/v.mp4 "))
	require.Equal(t, "https://cdn.example.com/v.mp4", NormalizeMediaURL("cdn.example.com/v.mp4"))
	require.Empty(t, NormalizeMediaURL("  "))
}

func TestDedupeStrings(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a", "b", "c"}, DedupeStrings([]string{" a", "b", "", "a", "c", "b "}))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "你好", Truncate("你好世界", 2))
	require.Equal(t, "abc", Truncate("abc", 30))
}
