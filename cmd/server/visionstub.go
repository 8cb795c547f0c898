package main

// The vision library bindings and video codec bindings are explicitly
// out of scope (spec.md §1): this service defines the narrow
// collaborator contract in internal/vision and tests every driver
// against internal/vision/visiontest's fakes, but wiring a real
// detector/tracker/codec library is left to the deployment that
// plugs one in. These stubs satisfy the production wiring surface so
// the server starts and the Record pipeline (which needs none of
// them) runs end to end; any Track/Analyze/preview request fails with
// a clear External error until a real implementation replaces them.

import (
	"github.com/shythm/road-cctv-recanalyzer/internal/taskmodel"
	"github.com/shythm/road-cctv-recanalyzer/internal/vision"
)

var errVisionUnimplemented = taskmodel.NewExternal("no vision library binding is configured for this deployment", nil)

func openDecoderStub(path string) (vision.Decoder, error) {
	return nil, errVisionUnimplemented
}

func openEncoderStub(path string, info vision.VideoInfo) (vision.Encoder, error) {
	return nil, errVisionUnimplemented
}

type detectorStub struct{}

func (detectorStub) Detect(vision.Frame, float64) ([]vision.Detection, error) {
	return nil, errVisionUnimplemented
}

type trackerStub struct{}

func (trackerStub) Update([]vision.Detection) ([]vision.TrackedObject, error) {
	return nil, errVisionUnimplemented
}

func newTrackerStub() vision.Tracker { return trackerStub{} }

type annotatorStub struct{}

func (annotatorStub) Annotate(vision.Frame, []vision.TrackedObject) (vision.Frame, error) {
	return vision.Frame{}, errVisionUnimplemented
}

type trailAnnotatorStub struct{}

func (trailAnnotatorStub) AnnotateTrails(vision.Frame, map[string][]vision.Point) (vision.Frame, error) {
	return vision.Frame{}, errVisionUnimplemented
}

type warperStub struct{}

func (warperStub) Warp(vision.Frame, [9]float64, int, int) (vision.Frame, error) {
	return vision.Frame{}, errVisionUnimplemented
}

type jpegEncoderStub struct{}

func (jpegEncoderStub) EncodeJPEG(vision.Frame) ([]byte, error) {
	return nil, errVisionUnimplemented
}
