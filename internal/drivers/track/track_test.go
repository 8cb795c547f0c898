package track_test

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/shythm/road-cctv-recanalyzer/internal/drivers/track"
	"github.com/shythm/road-cctv-recanalyzer/internal/output"
	"github.com/shythm/road-cctv-recanalyzer/internal/taskmodel"
	"github.com/shythm/road-cctv-recanalyzer/internal/vision"
	"github.com/shythm/road-cctv-recanalyzer/internal/vision/visiontest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeControl struct {
	canceled bool
	progress []float64
}

func (c *fakeControl) Canceled() bool     { return c.canceled }
func (c *fakeControl) Progress(p float64) { c.progress = append(c.progress, p) }

func setup(t *testing.T) (*track.Driver, *output.Catalog, string) {
	t.Helper()
	dbDir := t.TempDir()
	outputsPath := t.TempDir()

	outputs, err := output.Open(dbDir, outputsPath)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(outputsPath, "rec1.mp4"), []byte("fake"), 0o644))
	require.NoError(t, outputs.Save(&taskmodel.Output{
		Name:   "rec1.mp4",
		Type:   taskmodel.MediaVideoMP4,
		TaskID: "rec1",
		Metadata: map[string]string{
			"cctv": "demo", "startat": "2026-01-01T00:00:00Z", "endat": "2026-01-01T00:00:05Z",
		},
	}))

	frames := []vision.Frame{{Index: 0}, {Index: 1}, {Index: 2}}
	dec := &visiontest.Decoder{VideoInfo: vision.VideoInfo{FPS: 30, TotalFrames: len(frames)}, Frames: frames}
	enc := &visiontest.Encoder{}
	det := &visiontest.Detector{PerFrame: [][]vision.Detection{
		{{X1: 0, Y1: 0, X2: 10, Y2: 10, Confidence: 0.9, ClassID: 1}},
		{},
		{{X1: 5, Y1: 5, X2: 15, Y2: 15, Confidence: 0.8, ClassID: 1}},
	}}
	trk := &visiontest.Tracker{PerFrame: [][]vision.TrackedObject{
		{{TrackID: 1, ClassID: 1, Det: vision.Detection{X1: 0, Y1: 0, X2: 10, Y2: 10}}},
		{},
		{{TrackID: 1, ClassID: 1, Det: vision.Detection{X1: 5, Y1: 5, X2: 15, Y2: 15}}},
	}}

	d := &track.Driver{
		Outputs:     outputs,
		OutputsPath: outputsPath,
		OpenDecoder: func(path string) (vision.Decoder, error) { return dec, nil },
		OpenEncoder: func(path string, info vision.VideoInfo) (vision.Encoder, error) { return enc, nil },
		Detector:    det,
		NewTracker:  func() vision.Tracker { return trk },
		Annotator:   visiontest.Annotator{},
	}
	return d, outputs, outputsPath
}

func TestTrackDriverProducesCSVAndVideo(t *testing.T) {
	d, outputs, outputsPath := setup(t)

	task := &taskmodel.Task{ID: "trk1", Name: track.Name, Params: map[string]string{"targetname": "rec1.mp4"}}
	ctl := &fakeControl{}
	err := d.Run(context.Background(), task, ctl)
	require.NoError(t, err)

	csvOut, err := outputs.GetByName("trk1.csv")
	require.NoError(t, err)
	assert.Equal(t, taskmodel.MediaTextDetection, csvOut.Type)
	assert.Equal(t, "demo", csvOut.Metadata["cctv"])

	videoOut, err := outputs.GetByName("trk1.mp4")
	require.NoError(t, err)
	assert.Equal(t, taskmodel.MediaVideoMP4, videoOut.Type)

	f, err := os.Open(filepath.Join(outputsPath, "trk1.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"frame", "objid", "clsid", "x", "y"}, rows[0])
	assert.Len(t, rows, 3) // header + 2 tracked rows (frame 1 has no track)
}

func TestTrackDriverCancelStopsBeforeRegisteringOutputs(t *testing.T) {
	d, outputs, _ := setup(t)

	task := &taskmodel.Task{ID: "trk2", Name: track.Name, Params: map[string]string{"targetname": "rec1.mp4"}}
	ctl := &fakeControl{canceled: true}
	err := d.Run(context.Background(), task, ctl)
	require.Error(t, err)
	assert.True(t, taskmodel.IsCancel(err))

	_, err = outputs.GetByName("trk2.csv")
	assert.True(t, taskmodel.IsNotFound(err))
}

func TestTrackDriverRejectsInvalidConfidence(t *testing.T) {
	d, _, _ := setup(t)

	task := &taskmodel.Task{ID: "trk3", Name: track.Name, Params: map[string]string{"targetname": "rec1.mp4", "confidence": "not-a-number"}}
	ctl := &fakeControl{}
	err := d.Run(context.Background(), task, ctl)
	require.Error(t, err)
	assert.True(t, taskmodel.IsValidation(err))
}
