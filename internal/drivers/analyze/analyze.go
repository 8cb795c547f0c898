// Package analyze implements the tracking-data analysis driver of
// spec.md §4.7: rectify a region of interest into a top-down metric
// plane, transform a detection table into that plane, interpolate
// gaps, compute per-object speed, and render an annotated top-down
// video.
//
// Grounded on
// original_source/cctv_recanalyzer/srv/cctv_tracking_analysis.py
// (find_closest_rectangle, interpolate_persp_data, the speed formula,
// and the trail-drawing render loop), reimplemented against
// internal/geometry for the perspective math and internal/vision for
// the frame decode/warp/encode steps that stay out of scope as vision
// library bindings (spec.md §1).
package analyze

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/shythm/road-cctv-recanalyzer/internal/geometry"
	"github.com/shythm/road-cctv-recanalyzer/internal/output"
	"github.com/shythm/road-cctv-recanalyzer/internal/supervisor"
	"github.com/shythm/road-cctv-recanalyzer/internal/taskmodel"
	"github.com/shythm/road-cctv-recanalyzer/internal/vision"
)

// Name is the driver label.
const Name = "cctv-analyze"

const speedWindowFrames = 5

// Driver implements supervisor.Driver for the analysis workflow.
type Driver struct {
	Outputs     *output.Catalog
	OutputsPath string
	OpenDecoder func(path string) (vision.Decoder, error)
	OpenEncoder func(path string, info vision.VideoInfo) (vision.Encoder, error)
	Warper      vision.Warper
	Trails      vision.TrailAnnotator
}

type detRow struct {
	Frame int
	ObjID string
	ClsID string
	X, Y  float64
}

type analyzedRow struct {
	Frame          int
	ObjID          string
	ClsID          string
	X, Y           float64
	PerspX, PerspY float64
	Speed          *float64
}

// Run executes the six-step algorithm of spec.md §4.7. No partial
// output file or catalog entry survives a failed or canceled run.
func (d *Driver) Run(ctx context.Context, t *taskmodel.Task, ctl supervisor.Control) (err error) {
	csvPath := filepath.Join(d.OutputsPath, t.ID+".csv")
	videoPath := filepath.Join(d.OutputsPath, t.ID+".mp4")
	defer func() {
		if err != nil {
			_ = os.Remove(csvPath)
			_ = os.Remove(videoPath)
		}
	}()

	roadwidth, perr := strconv.ParseFloat(t.Params["roadwidth"], 64)
	if perr != nil || roadwidth <= 0 {
		err = taskmodel.NewValidation("roadwidth must be a positive number")
		return
	}
	roadheight, perr := strconv.ParseFloat(t.Params["roadheight"], 64)
	if perr != nil || roadheight <= 0 {
		err = taskmodel.NewValidation("roadheight must be a positive number")
		return
	}

	lt, lb, rt, rb, perr := parseROI(t.Params["roi"])
	if perr != nil {
		err = taskmodel.NewValidation("roi is not a valid 4-point JSON array: " + perr.Error())
		return
	}

	dst, w, h := geometry.ClosestRectangle(lt, lb, rt, rb, roadheight/roadwidth)
	if w <= 0 || h <= 0 {
		err = taskmodel.NewValidation("roi describes a degenerate rectangle")
		return
	}

	homography, herr := geometry.NewHomography([4]geometry.Point{lt, lb, rt, rb}, dst)
	if herr != nil {
		err = taskmodel.NewExternal("failed to solve perspective transform", herr)
		return
	}

	trackdata := t.Params["trackdata"]
	srcOutput, gerr := d.Outputs.GetByName(trackdata)
	if gerr != nil {
		err = gerr
		return
	}

	fps := 30.0
	if raw, ok := srcOutput.Metadata["fps"]; ok && raw != "" {
		if parsed, ferr := strconv.ParseFloat(raw, 64); ferr == nil && parsed > 0 {
			fps = parsed
		}
	}
	targetname := srcOutput.Metadata["targetname"]

	rows, rerr := readDetections(filepath.Join(d.OutputsPath, trackdata))
	if rerr != nil {
		err = taskmodel.NewExternal("failed to read detection table", rerr)
		return
	}

	analyzed := transformAndFilter(rows, homography, w, h)
	analyzed = interpolateGaps(analyzed)
	sortRows(analyzed)
	computeSpeed(analyzed, roadheight, float64(h), fps)

	if werr := writeAnalyzedCSV(csvPath, analyzed); werr != nil {
		err = taskmodel.NewExternal("failed to write analysed table", werr)
		return
	}

	ctl.Progress(0.5)

	if rerr := d.renderTrailVideo(ctx, ctl, targetname, videoPath, homography, w, h, fps, analyzed); rerr != nil {
		err = rerr
		return
	}

	metadata := srcOutput.Metadata
	if err = d.Outputs.Save(&taskmodel.Output{
		Name:     t.ID + ".csv",
		Type:     taskmodel.MediaTextCSV,
		Desc:     fmt.Sprintf("%s tracking analysis", metadata["cctv"]),
		TaskID:   t.ID,
		Metadata: metadata,
	}); err != nil {
		_ = d.Outputs.Delete(t.ID)
		return
	}
	if err = d.Outputs.Save(&taskmodel.Output{
		Name:     t.ID + ".mp4",
		Type:     taskmodel.MediaVideoMP4,
		Desc:     fmt.Sprintf("%s top-down tracking video", metadata["cctv"]),
		TaskID:   t.ID,
		Metadata: metadata,
	}); err != nil {
		_ = d.Outputs.Delete(t.ID)
		return
	}

	ctl.Progress(1.0)
	return nil
}

func parseROI(raw string) (lt, lb, rt, rb geometry.Point, err error) {
	var pts [4][2]float64
	if err = json.Unmarshal([]byte(raw), &pts); err != nil {
		return
	}
	lt = geometry.Point{X: pts[0][0], Y: pts[0][1]}
	lb = geometry.Point{X: pts[1][0], Y: pts[1][1]}
	rt = geometry.Point{X: pts[2][0], Y: pts[2][1]}
	rb = geometry.Point{X: pts[3][0], Y: pts[3][1]}
	return
}

func readDetections(path string) ([]detRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 1 {
		return nil, nil
	}

	var rows []detRow
	for _, rec := range records[1:] {
		if len(rec) < 5 {
			continue
		}
		frame, err := strconv.Atoi(rec[0])
		if err != nil {
			continue
		}
		x, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			continue
		}
		y, err := strconv.ParseFloat(rec[4], 64)
		if err != nil {
			continue
		}
		rows = append(rows, detRow{Frame: frame, ObjID: rec[1], ClsID: rec[2], X: x, Y: y})
	}
	return rows, nil
}

func transformAndFilter(rows []detRow, h *geometry.Homography, w, height int) []analyzedRow {
	out := make([]analyzedRow, 0, len(rows))
	for _, r := range rows {
		p := h.Transform(geometry.Point{X: r.X, Y: r.Y})
		if p.X < 0 || p.X >= float64(w) || p.Y < 0 || p.Y >= float64(height) {
			continue
		}
		out = append(out, analyzedRow{
			Frame: r.Frame, ObjID: r.ObjID, ClsID: r.ClsID,
			X: r.X, Y: r.Y, PerspX: p.X, PerspY: p.Y,
		})
	}
	return out
}

// interpolateGaps expands each object's frame range to every integer
// frame between its min and max observation, forward/back-filling
// clsid and linearly interpolating x, y, perspx, perspy, matching
// interpolate_persp_data.
func interpolateGaps(rows []analyzedRow) []analyzedRow {
	byObj := map[string][]analyzedRow{}
	for _, r := range rows {
		byObj[r.ObjID] = append(byObj[r.ObjID], r)
	}

	var result []analyzedRow
	for objID, objRows := range byObj {
		sort.Slice(objRows, func(i, j int) bool { return objRows[i].Frame < objRows[j].Frame })
		minFrame, maxFrame := objRows[0].Frame, objRows[len(objRows)-1].Frame
		n := maxFrame - minFrame + 1

		has := make([]bool, n)
		clsid := make([]string, n)
		x := make([]float64, n)
		y := make([]float64, n)
		px := make([]float64, n)
		py := make([]float64, n)

		for _, r := range objRows {
			idx := r.Frame - minFrame
			has[idx] = true
			clsid[idx] = r.ClsID
			x[idx] = r.X
			y[idx] = r.Y
			px[idx] = r.PerspX
			py[idx] = r.PerspY
		}

		ffillBfillStrings(clsid, has)
		hasCopy := append([]bool(nil), has...)
		linearFill(x, hasCopy)
		hasCopy = append([]bool(nil), has...)
		linearFill(y, hasCopy)
		hasCopy = append([]bool(nil), has...)
		linearFill(px, hasCopy)
		hasCopy = append([]bool(nil), has...)
		linearFill(py, hasCopy)

		for i := 0; i < n; i++ {
			result = append(result, analyzedRow{
				Frame: minFrame + i, ObjID: objID, ClsID: clsid[i],
				X: x[i], Y: y[i], PerspX: px[i], PerspY: py[i],
			})
		}
	}
	return result
}

func ffillBfillStrings(values []string, has []bool) {
	last := ""
	for i := range values {
		if has[i] {
			last = values[i]
		} else if last != "" {
			values[i] = last
		}
	}
	last = ""
	for i := len(values) - 1; i >= 0; i-- {
		if has[i] {
			last = values[i]
		} else if values[i] == "" {
			values[i] = last
		}
	}
}

// linearFill interpolates values at indices where has[i] is false,
// using the nearest known neighbors on either side; indices beyond the
// outermost known value copy that value (bfill/ffill at the edges).
func linearFill(values []float64, has []bool) {
	n := len(values)
	i := 0
	for i < n {
		if has[i] {
			i++
			continue
		}
		j := i - 1
		k := i + 1
		for k < n && !has[k] {
			k++
		}
		switch {
		case j >= 0 && k < n:
			for x := i; x < k; x++ {
				frac := float64(x-j) / float64(k-j)
				values[x] = values[j] + frac*(values[k]-values[j])
			}
		case j < 0 && k < n:
			for x := i; x < k; x++ {
				values[x] = values[k]
			}
		case j >= 0 && k >= n:
			for x := i; x < n; x++ {
				values[x] = values[j]
			}
		}
		i = k
	}
}

func sortRows(rows []analyzedRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ObjID != rows[j].ObjID {
			return rows[i].ObjID < rows[j].ObjID
		}
		return rows[i].Frame < rows[j].Frame
	})
}

// computeSpeed implements spec.md §4.7 step 5's 5-frame window formula.
// Because interpolateGaps made each object's frames contiguous, the
// window's positional offset equals its frame offset.
func computeSpeed(rows []analyzedRow, roadheight, roiHeight, fps float64) {
	meterPerPixel := roadheight / roiHeight
	deltaTime := float64(speedWindowFrames) / fps

	start := 0
	for start < len(rows) {
		end := start
		for end < len(rows) && rows[end].ObjID == rows[start].ObjID {
			end++
		}
		for i := start; i < end; i++ {
			if i-start < speedWindowFrames {
				continue
			}
			delta := rows[i].PerspY - rows[i-speedWindowFrames].PerspY
			speed := delta * (meterPerPixel / deltaTime) * 3.6
			rows[i].Speed = &speed
		}
		start = end
	}
}

func writeAnalyzedCSV(path string, rows []analyzedRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"frame", "objid", "clsid", "x", "y", "perspx", "perspy", "speed"}); err != nil {
		return err
	}
	for _, r := range rows {
		speed := ""
		if r.Speed != nil {
			speed = strconv.FormatFloat(*r.Speed, 'f', 3, 64)
		}
		if err := w.Write([]string{
			strconv.Itoa(r.Frame), r.ObjID, r.ClsID,
			strconv.FormatFloat(r.X, 'f', -1, 64), strconv.FormatFloat(r.Y, 'f', -1, 64),
			strconv.FormatFloat(r.PerspX, 'f', -1, 64), strconv.FormatFloat(r.PerspY, 'f', -1, 64),
			speed,
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (d *Driver) renderTrailVideo(_ context.Context, ctl supervisor.Control, targetname, videoPath string, h *geometry.Homography, w, height int, fps float64, rows []analyzedRow) error {
	byFrame := map[int]map[string]vision.Point{}
	for _, r := range rows {
		if byFrame[r.Frame] == nil {
			byFrame[r.Frame] = map[string]vision.Point{}
		}
		byFrame[r.Frame][r.ObjID] = vision.Point{X: int(r.PerspX), Y: int(r.PerspY)}
	}

	decoder, err := d.OpenDecoder(filepath.Join(d.OutputsPath, targetname))
	if err != nil {
		return taskmodel.NewExternal("failed to open source video", err)
	}
	defer decoder.Close()

	encoder, err := d.OpenEncoder(videoPath, vision.VideoInfo{Width: w, Height: height, FPS: fps})
	if err != nil {
		return taskmodel.NewExternal("failed to open analysis output video", err)
	}
	defer encoder.Close()

	matrix := h.Matrix3x3()
	trailHistory := map[string][]vision.Point{}

	for frameIdx := 0; ; frameIdx++ {
		if ctl.Canceled() {
			return taskmodel.NewCancel("analysis canceled by request")
		}

		frame, ok, derr := decoder.Read()
		if derr != nil {
			return taskmodel.NewExternal("failed to decode source frame", derr)
		}
		if !ok {
			break
		}

		warped, werr := d.Warper.Warp(frame, matrix, w, height)
		if werr != nil {
			return taskmodel.NewExternal("failed to warp frame", werr)
		}

		current := byFrame[frameIdx]
		for id := range trailHistory {
			if _, ok := current[id]; !ok {
				delete(trailHistory, id)
			}
		}
		for id, p := range current {
			trailHistory[id] = append(trailHistory[id], p)
		}

		annotated, aerr := d.Trails.AnnotateTrails(warped, trailHistory)
		if aerr != nil {
			return taskmodel.NewExternal("failed to draw trails", aerr)
		}
		if werr := encoder.Write(annotated); werr != nil {
			return taskmodel.NewExternal("failed to write analysis frame", werr)
		}
	}
	return nil
}
