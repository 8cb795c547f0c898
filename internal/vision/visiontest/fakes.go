// Package visiontest provides in-memory fakes of the vision package's
// collaborator interfaces, used by the track and analyze driver tests
// so they never depend on a real decoder/detector/tracker/encoder.
package visiontest

import (
	"errors"
	"fmt"

	"github.com/shythm/road-cctv-recanalyzer/internal/vision"
)

// Decoder is a fake vision.Decoder that replays a fixed set of frames.
type Decoder struct {
	VideoInfo vision.VideoInfo
	Frames    []vision.Frame
	pos       int
	closed    bool
}

func (d *Decoder) Info() vision.VideoInfo { return d.VideoInfo }

func (d *Decoder) Read() (vision.Frame, bool, error) {
	if d.pos >= len(d.Frames) {
		return vision.Frame{}, false, nil
	}
	f := d.Frames[d.pos]
	d.pos++
	return f, true, nil
}

func (d *Decoder) Seek(frameIndex int) error {
	if frameIndex < 0 || frameIndex > len(d.Frames) {
		return errors.New("seek out of range")
	}
	d.pos = frameIndex
	return nil
}

func (d *Decoder) Close() error {
	d.closed = true
	return nil
}

// Closed reports whether Close was called, for test assertions.
func (d *Decoder) Closed() bool { return d.closed }

// Encoder is a fake vision.Encoder that records every written frame.
type Encoder struct {
	Written []vision.Frame
	closed  bool
}

func (e *Encoder) Write(f vision.Frame) error {
	e.Written = append(e.Written, f)
	return nil
}

func (e *Encoder) Close() error {
	e.closed = true
	return nil
}

func (e *Encoder) Closed() bool { return e.closed }

// Detector is a fake vision.Detector returning a scripted detection
// list per call, indexed by call order.
type Detector struct {
	PerFrame [][]vision.Detection
	calls    int
}

func (d *Detector) Detect(_ vision.Frame, _ float64) ([]vision.Detection, error) {
	if d.calls >= len(d.PerFrame) {
		return nil, nil
	}
	out := d.PerFrame[d.calls]
	d.calls++
	return out, nil
}

// Tracker is a fake vision.Tracker returning a scripted tracked-object
// list per call, indexed by call order.
type Tracker struct {
	PerFrame [][]vision.TrackedObject
	calls    int
}

func (t *Tracker) Update(_ []vision.Detection) ([]vision.TrackedObject, error) {
	if t.calls >= len(t.PerFrame) {
		return nil, nil
	}
	out := t.PerFrame[t.calls]
	t.calls++
	return out, nil
}

// Annotator is a fake vision.Annotator that returns the frame unchanged.
type Annotator struct{}

func (Annotator) Annotate(f vision.Frame, _ []vision.TrackedObject) (vision.Frame, error) {
	return f, nil
}

// TrailAnnotator is a fake vision.TrailAnnotator that returns the frame
// unchanged.
type TrailAnnotator struct{}

func (TrailAnnotator) AnnotateTrails(f vision.Frame, _ map[string][]vision.Point) (vision.Frame, error) {
	return f, nil
}

// Warper is a fake vision.Warper that returns the frame unchanged
// except for its recorded width/height.
type Warper struct{}

func (Warper) Warp(f vision.Frame, _ [9]float64, width, height int) (vision.Frame, error) {
	f.Width, f.Height = width, height
	return f, nil
}

// JPEGEncoder is a fake vision.JPEGEncoder that returns a fixed byte
// slice tagged with the encoded frame's index, so tests can assert
// which frame was picked without a real image codec.
type JPEGEncoder struct{}

func (JPEGEncoder) EncodeJPEG(f vision.Frame) ([]byte, error) {
	return []byte(fmt.Sprintf("jpeg-frame-%d", f.Index)), nil
}
