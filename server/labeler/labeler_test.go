package labeler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/jerseyid/pkg/nn"
	"github.com/cyclopcam/jerseyid/pkg/roster"
	"github.com/cyclopcam/jerseyid/server/pipeline"
	"github.com/cyclopcam/jerseyid/server/tracker"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

// fakeProcessor reports #7 on every frame, and #9 only on the first frame
type fakeProcessor struct {
	frames int
	team   string
}

func (f *fakeProcessor) ProcessFrame(frame *cimg.Image, ctx pipeline.Context) []tracker.TrackedPlayer {
	f.frames++
	f.team = ctx.Team
	tracks := []tracker.TrackedPlayer{
		{ID: "a", JerseyNumber: "7", Confidence: 0.8, CurrentBox: nn.MakeRectXYXY(10, 10, 30, 40), RosterMatch: &roster.Profile{Name: "Ana"}},
		{ID: "b", JerseyNumber: "9", Confidence: 0.6, CurrentBox: nn.MakeRectXYXY(50, 10, 70, 40)},
	}
	if f.frames > 1 {
		tracks[1].DisappearedFrames = f.frames - 1
	}
	return tracks
}

func writeJPEG(t *testing.T, fn string) {
	img := cimg.NewImage(96, 64, cimg.PixelFormatRGB)
	jpg, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, 90, 0))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(fn, jpg, 0644))
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "b.jpg"))
	writeJPEG(t, filepath.Join(dir, "a.JPEG"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "c.jpg"), 0755))

	files, err := ListImages(dir)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "a.JPEG"), filepath.Join(dir, "b.jpg")}, files)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"001.jpg", "002.jpg", "003.jpg"} {
		writeJPEG(t, filepath.Join(dir, name))
	}
	files, err := ListImages(dir)
	require.NoError(t, err)

	proc := &fakeProcessor{}
	annotated := filepath.Join(dir, "annotated")
	labels, err := Run(logs.NewTestingLog(t), proc, pipeline.Context{Team: "Hawks"}, "jerseynum_320_320", files, Options{AnnotatedDir: annotated})
	require.NoError(t, err)
	require.Equal(t, 3, proc.frames)
	require.Equal(t, "Hawks", proc.team)

	require.Equal(t, "jerseynum_320_320", labels.Model)
	require.Len(t, labels.Images, 3)
	first := labels.Images[0]
	require.Equal(t, "001.jpg", first.Image)
	require.Equal(t, 96, first.Width)
	require.Equal(t, 64, first.Height)
	require.Len(t, first.Objects, 2)
	require.Equal(t, "a", first.Objects[0].TrackID)
	require.Equal(t, "7", first.Objects[0].Number)

	// #9 is out of sight after the first image
	for _, il := range labels.Images[1:] {
		require.Len(t, il.Objects, 1)
		require.Equal(t, "7", il.Objects[0].Number)
	}

	for _, name := range []string{"001.png", "002.png", "003.png"} {
		st, err := os.Stat(filepath.Join(annotated, name))
		require.NoError(t, err)
		require.Greater(t, st.Size(), int64(0))
	}
}

func TestRunBadImage(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "broken.jpg")
	require.NoError(t, os.WriteFile(fn, []byte("not a jpeg"), 0644))
	_, err := Run(logs.NewTestingLog(t), &fakeProcessor{}, pipeline.Context{}, "m", []string{fn}, Options{})
	require.ErrorContains(t, err, "broken.jpg")
}

func TestAnnotate(t *testing.T) {
	img := cimg.NewImage(100, 60, cimg.PixelFormatRGB)
	players := []tracker.TrackedPlayer{{JerseyNumber: "7", CurrentBox: nn.MakeRectXYXY(20, 20, 60, 50)}}
	rgba := Annotate(img, players).Image()
	// The box outline is yellow for a player with no profile
	r, g, b, _ := rgba.At(20, 35).RGBA()
	require.Greater(t, r, uint32(0x8000))
	require.Greater(t, g, uint32(0x8000))
	require.Less(t, b, uint32(0x8000))
	// Inside the box is untouched
	r, g, b, _ = rgba.At(40, 35).RGBA()
	require.Equal(t, []uint32{0, 0, 0}, []uint32{r, g, b})
}
