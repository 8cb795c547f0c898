// Package track implements the object-tracking driver of spec.md §4.6:
// run a detector and tracker over every frame of an existing recording,
// write an annotated video and a detection table, and carry the
// source recording's metadata through to both outputs.
//
// Grounded on spec.md §4.6 and the narrow external-collaborator
// contract of internal/vision, since the vision library bindings and
// video codec bindings themselves are out of scope (spec.md §1); the
// analogous original_source wiring lives in
// original_source/cctv_recanalyzer/http/cctvrecorder.py.
package track

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/shythm/road-cctv-recanalyzer/internal/output"
	"github.com/shythm/road-cctv-recanalyzer/internal/supervisor"
	"github.com/shythm/road-cctv-recanalyzer/internal/taskmodel"
	"github.com/shythm/road-cctv-recanalyzer/internal/vision"
)

// Name is the driver label.
const Name = "cctv-track"

// DefaultConfidence is used when the confidence parameter is absent.
const DefaultConfidence = 0.6

// Driver implements supervisor.Driver for the tracking workflow. The
// decoder/encoder/detector/tracker/annotator are all external
// collaborators injected by the caller, per internal/vision's contract.
type Driver struct {
	Outputs     *output.Catalog
	OutputsPath string
	OpenDecoder func(path string) (vision.Decoder, error)
	OpenEncoder func(path string, info vision.VideoInfo) (vision.Encoder, error)
	Detector    vision.Detector
	NewTracker  func() vision.Tracker
	Annotator   vision.Annotator
}

// Run executes the tracking workflow described in spec.md §4.6.
func (d *Driver) Run(ctx context.Context, t *taskmodel.Task, ctl supervisor.Control) error {
	targetname := t.Params["targetname"]
	confidence := DefaultConfidence
	if raw, ok := t.Params["confidence"]; ok && raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return taskmodel.NewValidation("confidence is not a valid number")
		}
		confidence = parsed
	}

	srcOutput, err := d.Outputs.GetByName(targetname)
	if err != nil {
		return err
	}

	decoder, err := d.OpenDecoder(filepath.Join(d.OutputsPath, targetname))
	if err != nil {
		return taskmodel.NewExternal("failed to open target video", err)
	}
	defer decoder.Close()

	info := decoder.Info()

	videoPath := filepath.Join(d.OutputsPath, t.ID+".mp4")
	encoder, err := d.OpenEncoder(videoPath, info)
	if err != nil {
		return taskmodel.NewExternal("failed to open tracking output video", err)
	}
	defer encoder.Close()

	csvPath := filepath.Join(d.OutputsPath, t.ID+".csv")
	csvFile, err := os.Create(csvPath)
	if err != nil {
		return taskmodel.NewExternal("failed to open detection table", err)
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	defer w.Flush()
	if err := w.Write([]string{"frame", "objid", "clsid", "x", "y"}); err != nil {
		return taskmodel.NewExternal("failed to write detection table header", err)
	}

	tracker := d.NewTracker()

	for frameIdx := 0; ; frameIdx++ {
		if ctl.Canceled() {
			return taskmodel.NewCancel("tracking canceled by request")
		}

		frame, ok, err := decoder.Read()
		if err != nil {
			return taskmodel.NewExternal("failed to decode frame", err)
		}
		if !ok {
			break
		}

		detections, err := d.Detector.Detect(frame, confidence)
		if err != nil {
			return taskmodel.NewExternal("object detection failed", err)
		}

		tracks, err := tracker.Update(detections)
		if err != nil {
			return taskmodel.NewExternal("object tracking failed", err)
		}

		for _, tr := range tracks {
			cx := (tr.Det.X1 + tr.Det.X2) / 2
			cy := (tr.Det.Y1 + tr.Det.Y2) / 2
			if err := w.Write([]string{
				strconv.Itoa(frameIdx),
				strconv.Itoa(tr.TrackID),
				strconv.Itoa(tr.ClassID),
				strconv.FormatFloat(cx, 'f', -1, 64),
				strconv.FormatFloat(cy, 'f', -1, 64),
			}); err != nil {
				return taskmodel.NewExternal("failed to write detection row", err)
			}
		}

		annotated, err := d.Annotator.Annotate(frame, tracks)
		if err != nil {
			return taskmodel.NewExternal("frame annotation failed", err)
		}
		if err := encoder.Write(annotated); err != nil {
			return taskmodel.NewExternal("failed to write annotated frame", err)
		}

		if info.TotalFrames > 0 {
			ctl.Progress(float64(frameIdx) / float64(info.TotalFrames))
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return taskmodel.NewExternal("failed to flush detection table", err)
	}

	metadata := map[string]string{
		"cctv":       srcOutput.Metadata["cctv"],
		"startat":    srcOutput.Metadata["startat"],
		"endat":      srcOutput.Metadata["endat"],
		"fps":        strconv.FormatFloat(info.FPS, 'f', -1, 64),
		"confidence": strconv.FormatFloat(confidence, 'f', -1, 64),
		"targetname": targetname,
	}

	if err := d.Outputs.Save(&taskmodel.Output{
		Name:     t.ID + ".csv",
		Type:     taskmodel.MediaTextDetection,
		Desc:     fmt.Sprintf("%s detection table", metadata["cctv"]),
		TaskID:   t.ID,
		Metadata: metadata,
	}); err != nil {
		return err
	}
	if err := d.Outputs.Save(&taskmodel.Output{
		Name:     t.ID + ".mp4",
		Type:     taskmodel.MediaVideoMP4,
		Desc:     fmt.Sprintf("%s tracking video", metadata["cctv"]),
		TaskID:   t.ID,
		Metadata: metadata,
	}); err != nil {
		return err
	}

	ctl.Progress(1.0)
	return nil
}
