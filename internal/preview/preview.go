// Package preview implements the video thumbnail endpoint of spec.md
// §6 ("GET /output/video/preview/{name}?random=bool"), grounded on
// original_source/cctv_recanalyzer/srv/video_output_info.py's
// get_video_frame: open the file, seek to a frame, decode it, encode
// as JPEG.
package preview

import (
	"math/rand"
	"path/filepath"

	"github.com/shythm/road-cctv-recanalyzer/internal/output"
	"github.com/shythm/road-cctv-recanalyzer/internal/taskmodel"
	"github.com/shythm/road-cctv-recanalyzer/internal/vision"
)

// Service serves a single decoded-and-encoded frame from an existing
// video/mp4 output.
type Service struct {
	Outputs     *output.Catalog
	OutputsPath string
	OpenDecoder func(path string) (vision.Decoder, error)
	JPEG        vision.JPEGEncoder
}

// Thumbnail returns name's first frame, or a random frame when random
// is true, encoded as JPEG. name must name an existing video/mp4
// output.
func (s *Service) Thumbnail(name string, random bool) ([]byte, error) {
	out, err := s.Outputs.GetByName(name)
	if err != nil {
		return nil, err
	}
	if out.Type != taskmodel.MediaVideoMP4 {
		return nil, taskmodel.NewValidation("output " + name + " is not a video")
	}

	dec, err := s.OpenDecoder(filepath.Join(s.OutputsPath, name))
	if err != nil {
		return nil, taskmodel.NewExternal("failed to open video for preview", err)
	}
	defer dec.Close()

	frameIndex := 0
	if random {
		info := dec.Info()
		if info.TotalFrames > 0 {
			frameIndex = rand.Intn(info.TotalFrames)
		}
	}
	if err := dec.Seek(frameIndex); err != nil {
		return nil, taskmodel.NewExternal("failed to seek video for preview", err)
	}

	frame, ok, err := dec.Read()
	if err != nil {
		return nil, taskmodel.NewExternal("failed to read video frame for preview", err)
	}
	if !ok {
		return nil, taskmodel.NewExternal("video has no frames to preview", nil)
	}

	jpg, err := s.JPEG.EncodeJPEG(frame)
	if err != nil {
		return nil, taskmodel.NewExternal("failed to encode preview frame", err)
	}
	return jpg, nil
}
