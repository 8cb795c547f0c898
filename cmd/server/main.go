// Command server wires every package in this module into the running
// process: config → catalogs/registry → supervisor → drivers →
// facades → HTTP router → graceful shutdown.
//
// Grounded on cxumol-FFwebAPI/main.go's shape (signal.NotifyContext,
// background service start, http.Server.Shutdown), extended to also
// drain the supervisor's in-flight task workers.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shythm/road-cctv-recanalyzer/internal/config"
	"github.com/shythm/road-cctv-recanalyzer/internal/drivers/analyze"
	"github.com/shythm/road-cctv-recanalyzer/internal/drivers/record"
	"github.com/shythm/road-cctv-recanalyzer/internal/drivers/track"
	"github.com/shythm/road-cctv-recanalyzer/internal/facade"
	"github.com/shythm/road-cctv-recanalyzer/internal/ffmpegrun"
	"github.com/shythm/road-cctv-recanalyzer/internal/httpapi"
	"github.com/shythm/road-cctv-recanalyzer/internal/logx"
	"github.com/shythm/road-cctv-recanalyzer/internal/output"
	"github.com/shythm/road-cctv-recanalyzer/internal/preview"
	"github.com/shythm/road-cctv-recanalyzer/internal/registry"
	"github.com/shythm/road-cctv-recanalyzer/internal/stream"
	"github.com/shythm/road-cctv-recanalyzer/internal/supervisor"
	"github.com/shythm/road-cctv-recanalyzer/internal/taskmodel"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logx.Configure(cfg.LogLevel)
	l := logx.Component("main")

	if err := os.MkdirAll(cfg.JSONDBStorage, 0o755); err != nil {
		l.Fatal().Err(err).Msg("failed to create db storage directory")
	}
	if err := os.MkdirAll(cfg.TaskOutputPath, 0o755); err != nil {
		l.Fatal().Err(err).Msg("failed to create task output directory")
	}

	reg, err := registry.Open(cfg.JSONDBStorage)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to open task registry")
	}
	outputs, err := output.Open(cfg.JSONDBStorage, cfg.TaskOutputPath)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to open output catalog")
	}
	streams, err := stream.Open(cfg.JSONDBStorage)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to open stream catalog")
	}

	runner, err := ffmpegrun.NewRunner(cfg.FFBin)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialize ffmpeg runner")
	}
	resolver := stream.NewResolver(cfg.ITSAPIKey, cfg.ITSTimeout)

	sup := supervisor.New(reg, 64)

	recordDriver := record.New(streams, resolver, outputs, cfg.TaskOutputPath, runner, cfg.RecordPollInterval)
	trackDriver := &track.Driver{
		Outputs:     outputs,
		OutputsPath: cfg.TaskOutputPath,
		OpenDecoder: openDecoderStub,
		OpenEncoder: openEncoderStub,
		Detector:    detectorStub{},
		NewTracker:  newTrackerStub,
		Annotator:   annotatorStub{},
	}
	analyzeDriver := &analyze.Driver{
		Outputs:     outputs,
		OutputsPath: cfg.TaskOutputPath,
		OpenDecoder: openDecoderStub,
		OpenEncoder: openEncoderStub,
		Warper:      warperStub{},
		Trails:      trailAnnotatorStub{},
	}

	recordFacade := facade.New(record.Name, []taskmodel.ParamMeta{
		{Name: "cctv", Desc: "stream catalog entry name", Accept: []string{taskmodel.PrimitiveStr}},
		{Name: "startat", Desc: "recording window start", Accept: []string{taskmodel.PrimitiveDatetime}},
		{Name: "endat", Desc: "recording window end", Accept: []string{taskmodel.PrimitiveDatetime}},
	}, reg, outputs, sup, recordDriver, nil)

	trackGuard := facade.NewCPUGuard(100 - cfg.TrackThrottleCPU)
	trackQueue := facade.NewTrackQueue(reg, sup, trackGuard, 5*time.Second)
	trackFacade := facade.New(track.Name, []taskmodel.ParamMeta{
		{Name: "targetname", Desc: "name of an existing video/mp4 output", Accept: []string{taskmodel.MediaVideoMP4}},
		{Name: "confidence", Desc: "detector confidence threshold", Accept: []string{taskmodel.PrimitiveFloat}, Optional: true},
	}, reg, outputs, sup, trackDriver, trackQueue.Submit)

	analyzeFacade := facade.New(analyze.Name, []taskmodel.ParamMeta{
		{Name: "trackdata", Desc: "name of an existing text/detection output", Accept: []string{taskmodel.MediaTextDetection}},
		{Name: "roi", Desc: "JSON array of four (x,y) pixel points: lt, lb, rt, rb", Accept: []string{taskmodel.PrimitiveJSON}},
		{Name: "roadwidth", Desc: "real-world road width in metres", Accept: []string{taskmodel.PrimitiveFloat}},
		{Name: "roadheight", Desc: "real-world road height in metres", Accept: []string{taskmodel.PrimitiveFloat}},
	}, reg, outputs, sup, analyzeDriver, nil)

	facades := map[string]*facade.Facade{
		httpapi.KindRecord:   recordFacade,
		httpapi.KindTracking: trackFacade,
		httpapi.KindAnalysis: analyzeFacade,
	}

	previewSvc := &preview.Service{
		Outputs:     outputs,
		OutputsPath: cfg.TaskOutputPath,
		OpenDecoder: openDecoderStub,
		JPEG:        jpegEncoderStub{},
	}

	router := httpapi.NewRouter(streams, outputs, previewSvc, facades)
	srv := &http.Server{
		Addr:    ":" + cfg.ListenPort,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sup.Run(gctx, 30*time.Second) })
	g.Go(func() error {
		l.Info().Str("port", cfg.ListenPort).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	<-gctx.Done()
	stop()
	l.Info().Msg("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("server forced to shutdown")
	}

	if err := g.Wait(); err != nil {
		l.Error().Err(err).Msg("background service exited with error")
	}
	l.Info().Msg("server exited")
}
