package preview_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shythm/road-cctv-recanalyzer/internal/output"
	"github.com/shythm/road-cctv-recanalyzer/internal/preview"
	"github.com/shythm/road-cctv-recanalyzer/internal/taskmodel"
	"github.com/shythm/road-cctv-recanalyzer/internal/vision"
	"github.com/shythm/road-cctv-recanalyzer/internal/vision/visiontest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*preview.Service, *output.Catalog) {
	t.Helper()
	dbDir := t.TempDir()
	outputsPath := t.TempDir()
	outputs, err := output.Open(dbDir, outputsPath)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(outputsPath, "rec1.mp4"), []byte("fake"), 0o644))
	require.NoError(t, outputs.Save(&taskmodel.Output{Name: "rec1.mp4", Type: taskmodel.MediaVideoMP4, TaskID: "t1"}))
	require.NoError(t, os.WriteFile(filepath.Join(outputsPath, "trk1.csv"), []byte("frame,objid\n"), 0o644))
	require.NoError(t, outputs.Save(&taskmodel.Output{Name: "trk1.csv", Type: taskmodel.MediaTextDetection, TaskID: "t2"}))

	frames := []vision.Frame{{Index: 0}, {Index: 1}, {Index: 2}}
	svc := &preview.Service{
		Outputs:     outputs,
		OutputsPath: outputsPath,
		OpenDecoder: func(path string) (vision.Decoder, error) {
			return &visiontest.Decoder{VideoInfo: vision.VideoInfo{TotalFrames: len(frames)}, Frames: frames}, nil
		},
		JPEG: visiontest.JPEGEncoder{},
	}
	return svc, outputs
}

func TestThumbnailReturnsFirstFrameByDefault(t *testing.T) {
	svc, _ := setup(t)
	jpg, err := svc.Thumbnail("rec1.mp4", false)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-frame-0", string(jpg))
}

func TestThumbnailRejectsNonVideoOutput(t *testing.T) {
	svc, _ := setup(t)
	_, err := svc.Thumbnail("trk1.csv", false)
	require.Error(t, err)
	assert.True(t, taskmodel.IsValidation(err))
}

func TestThumbnailRejectsUnknownOutput(t *testing.T) {
	svc, _ := setup(t)
	_, err := svc.Thumbnail("missing.mp4", false)
	require.Error(t, err)
	assert.True(t, taskmodel.IsNotFound(err))
}
