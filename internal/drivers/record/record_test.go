package record_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shythm/road-cctv-recanalyzer/internal/ffmpegrun"
	"github.com/shythm/road-cctv-recanalyzer/internal/drivers/record"
	"github.com/shythm/road-cctv-recanalyzer/internal/output"
	"github.com/shythm/road-cctv-recanalyzer/internal/stream"
	"github.com/shythm/road-cctv-recanalyzer/internal/taskmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeControl struct {
	canceled bool
	progress []float64
}

func (c *fakeControl) Canceled() bool { return c.canceled }
func (c *fakeControl) Progress(p float64) {
	c.progress = append(c.progress, p)
}

func itsServer(t *testing.T, cctvURL string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"response": map[string]any{
				"data": []map[string]any{{
					"cctvurl": cctvURL, "coordx": "127.0", "coordy": "37.5",
					"cctvname": "demo", "cctvformat": "HLS", "cctvtype": "1",
				}},
			},
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func setup(t *testing.T, runnerBin string) (*record.Driver, *output.Catalog) {
	t.Helper()
	dbDir := t.TempDir()
	outputsPath := t.TempDir()

	streams, err := stream.Open(dbDir)
	require.NoError(t, err)
	_, err = streams.Add("demo", 127.0, 37.5)
	require.NoError(t, err)

	its := itsServer(t, "https://example.com/stream.m3u8")
	t.Cleanup(its.Close)
	resolver := stream.NewResolverWithEndpoint("key", time.Second, its.URL)

	outputs, err := output.Open(dbDir, outputsPath)
	require.NoError(t, err)

	runner, err := ffmpegrun.NewRunner(runnerBin)
	require.NoError(t, err)

	d := record.New(streams, resolver, outputs, outputsPath, runner, 10*time.Millisecond)
	return d, outputs
}

func TestRecordDriverSucceeds(t *testing.T) {
	d, outputs := setup(t, "true")

	now := time.Now()
	task := &taskmodel.Task{
		ID:   "rec1",
		Name: record.Name,
		Params: map[string]string{
			"cctv":    "demo",
			"startat": now.Add(-time.Second).Format(time.RFC3339),
			"endat":   now.Add(2 * time.Second).Format(time.RFC3339),
		},
	}

	ctl := &fakeControl{}
	err := d.Run(context.Background(), task, ctl)
	require.NoError(t, err)

	got, err := outputs.GetByName("rec1.mp4")
	require.NoError(t, err)
	assert.Equal(t, taskmodel.MediaVideoMP4, got.Type)
}

func TestRecordDriverFailsOnNonZeroExit(t *testing.T) {
	d, outputs := setup(t, "false")

	now := time.Now()
	task := &taskmodel.Task{
		ID:   "rec2",
		Name: record.Name,
		Params: map[string]string{
			"cctv":    "demo",
			"startat": now.Add(-time.Second).Format(time.RFC3339),
			"endat":   now.Add(2 * time.Second).Format(time.RFC3339),
		},
	}

	ctl := &fakeControl{}
	err := d.Run(context.Background(), task, ctl)
	require.Error(t, err)
	assert.False(t, taskmodel.IsCancel(err))

	_, err = outputs.GetByName("rec2.err")
	require.NoError(t, err)
}

func TestRecordDriverRejectsPastWindow(t *testing.T) {
	d, _ := setup(t, "true")

	now := time.Now()
	task := &taskmodel.Task{
		ID:   "rec3",
		Name: record.Name,
		Params: map[string]string{
			"cctv":    "demo",
			"startat": now.Add(-2 * time.Second).Format(time.RFC3339),
			"endat":   now.Add(-time.Second).Format(time.RFC3339),
		},
	}

	ctl := &fakeControl{}
	err := d.Run(context.Background(), task, ctl)
	require.Error(t, err)
	assert.True(t, taskmodel.IsValidation(err))
}

func TestRecordDriverCancelDuringWait(t *testing.T) {
	d, _ := setup(t, "true")

	now := time.Now()
	task := &taskmodel.Task{
		ID:   "rec4",
		Name: record.Name,
		Params: map[string]string{
			"cctv":    "demo",
			"startat": now.Add(time.Hour).Format(time.RFC3339),
			"endat":   now.Add(2 * time.Hour).Format(time.RFC3339),
		},
	}

	ctl := &fakeControl{canceled: true}
	err := d.Run(context.Background(), task, ctl)
	require.Error(t, err)
	assert.True(t, taskmodel.IsCancel(err))
}
