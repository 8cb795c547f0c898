// Package vision declares the narrow interfaces the Track and Analyze
// drivers use to reach the vision library bindings and video
// encoder/decoder bindings that spec.md §1 explicitly keeps out of
// scope ("treated as external collaborators, §6 specifies their
// interfaces" — these are the Go shape of that contract, grounded on
// cxumol-FFwebAPI/task.FFmpegRunner's pattern of injecting an external
// capability as a single-method interface).
package vision

// Detection is one object found in a single frame by a Detector.
type Detection struct {
	X1, Y1, X2, Y2 float64 // bounding box corners, pixel coordinates
	Confidence     float64
	ClassID        int
}

// TrackedObject is a confirmed track emitted by a Tracker for a single
// frame: a stable identity plus the detection it currently owns.
type TrackedObject struct {
	TrackID int
	ClassID int
	Det     Detection
}

// Frame is a single decoded video frame. Pix is opaque to this
// package's consumers (callers pass it straight through to Encoder/
// Detector implementations); its layout is whatever the concrete
// decoder/detector pair agrees on.
type Frame struct {
	Index  int
	Width  int
	Height int
	Pix    []byte
}

// VideoInfo describes a source video's static properties.
type VideoInfo struct {
	Width       int
	Height      int
	FPS         float64
	TotalFrames int
}

// Decoder reads frames sequentially from a video file.
type Decoder interface {
	Info() VideoInfo
	// Read returns the next frame, or ok=false once the stream is
	// exhausted. An error is only returned for unrecoverable decode
	// failures.
	Read() (frame Frame, ok bool, err error)
	// Seek repositions the decoder to the given zero-based frame index,
	// used only by the preview thumbnail path.
	Seek(frameIndex int) error
	Close() error
}

// Encoder writes frames sequentially to a video file.
type Encoder interface {
	Write(frame Frame) error
	Close() error
}

// Detector runs object detection on a single frame at the given
// confidence threshold.
type Detector interface {
	Detect(frame Frame, confidence float64) ([]Detection, error)
}

// Tracker consumes one frame's detections and returns the confirmed
// tracks for that frame, maintaining identity across calls.
type Tracker interface {
	Update(detections []Detection) ([]TrackedObject, error)
}

// JPEGEncoder encodes a single frame as a JPEG image, used by the
// preview thumbnail endpoint.
type JPEGEncoder interface {
	EncodeJPEG(frame Frame) ([]byte, error)
}

// Annotator draws a frame's confirmed tracks (bounding boxes, trails)
// onto a copy of the frame before it is handed to an Encoder.
type Annotator interface {
	Annotate(frame Frame, tracks []TrackedObject) (Frame, error)
}

// TrailAnnotator draws per-object trail polylines onto a warped,
// top-down frame, used by the Analyze driver.
type TrailAnnotator interface {
	AnnotateTrails(frame Frame, points map[string][]Point) (Frame, error)
}

// Warper applies a 3x3 projective transform (row-major) to an entire
// frame, producing a width x height top-down image, the Go-side
// equivalent of cv2.warpPerspective.
type Warper interface {
	Warp(frame Frame, matrix [9]float64, width, height int) (Frame, error)
}

// Point is a pixel coordinate on an annotated frame.
type Point struct {
	X, Y int
}
