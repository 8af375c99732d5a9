package publish

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creative-collector/internal/crawler"
)

func TestMachineFollowsHappyPath(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	for _, s := range []State{
		StateSessionValidated, StateUploading, StateMetadataFilled,
		StateScheduleSet, StateSubmitted, StatePublished,
	} {
		require.NoError(t, m.To(s))
	}
	require.True(t, m.State().Terminal())
	require.Len(t, m.Trace(), 7)
	require.ErrorIs(t, m.To(StateFailed), ErrIllegalTransition)
}

func TestMachineRejectsSkippedStates(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	require.ErrorIs(t, m.To(StateSubmitted), ErrIllegalTransition)
	require.Equal(t, StateIdle, m.State())
	require.NoError(t, m.To(StateFailed))
}

func TestUploadJobValidate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	account := filepath.Join(dir, "account.json")
	require.NoError(t, os.WriteFile(video, []byte("x"), 0o600))

	job := UploadJob{Title: "t", FilePath: video, AccountFile: account}
	require.ErrorIs(t, job.Validate(), crawler.ErrSessionInvalid)

	require.NoError(t, os.WriteFile(account, []byte("{}"), 0o600))
	require.NoError(t, job.Validate())

	job.ThumbnailPath = filepath.Join(dir, "missing.png")
	require.Error(t, job.Validate())

	require.Error(t, UploadJob{AccountFile: account}.Validate())
}

func TestUploadJobNormalizesTitleAndTags(t *testing.T) {
	t.Parallel()

	job := UploadJob{
		Title: "一二三四五六七八九十一二三四五六七八九十一二三四五六七八九十多出来的",
		Tags:  []string{"#美食", "旅行", " #美食 ", "", "#"},
	}
	require.Equal(t, 30, len([]rune(job.DisplayTitle())))
	require.Equal(t, []string{"美食", "旅行"}, job.CleanTags())
}
