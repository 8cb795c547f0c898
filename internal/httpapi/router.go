package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/shythm/road-cctv-recanalyzer/internal/facade"
	"github.com/shythm/road-cctv-recanalyzer/internal/output"
	"github.com/shythm/road-cctv-recanalyzer/internal/preview"
	"github.com/shythm/road-cctv-recanalyzer/internal/stream"
)

// Kind path segments accepted by /task/{kind} and /task/{kind}/..., per
// spec.md §6's literal "record|tracking|analysis" set.
const (
	KindRecord   = "record"
	KindTracking = "tracking"
	KindAnalysis = "analysis"
)

// NewRouter builds the complete HTTP surface of spec.md §6. facades
// must be keyed by KindRecord/KindTracking/KindAnalysis.
func NewRouter(streams *stream.Catalog, outputs *output.Catalog, previewSvc *preview.Service, facades map[string]*facade.Facade) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), AccessLog(), gin.Recovery())

	h := NewHandler(streams, outputs, previewSvc, facades)

	r.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	r.GET("/stream", h.listStreams)
	r.POST("/stream", h.addStream)
	r.DELETE("/stream/:cctvname", h.deleteStream)

	task := r.Group("/task/:kind")
	{
		task.GET("", h.listTasks)
		task.POST("/start", h.startTask)
		task.POST("/stop/:taskid", h.stopTask)
		task.DELETE("/:taskid", h.deleteTask)
	}

	out := r.Group("/output")
	{
		out.GET("", h.listOutputs)
		out.GET("/name/:name", h.getOutputByName)
		out.GET("/video/preview/:name", h.previewOutput)
		out.GET("/:taskid", h.getOutputsByTaskID)
		out.DELETE("/:taskid", h.deleteOutputsByTaskID)
	}

	return r
}
