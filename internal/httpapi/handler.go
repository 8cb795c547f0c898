// Package httpapi implements the HTTP surface of spec.md §6 on top of
// gin, grounded on cxumol-FFwebAPI/api/{router,handler,middleware}.go's
// shape: a thin Handler wrapping the domain layer, a central error-to-
// status translator, and a router that wires middleware once.
package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shythm/road-cctv-recanalyzer/internal/facade"
	"github.com/shythm/road-cctv-recanalyzer/internal/output"
	"github.com/shythm/road-cctv-recanalyzer/internal/preview"
	"github.com/shythm/road-cctv-recanalyzer/internal/stream"
	"github.com/shythm/road-cctv-recanalyzer/internal/taskmodel"
)

// Handler holds every domain collaborator the HTTP layer needs. It
// never touches the registry or output catalog directly for task
// operations — those go through the per-kind Facade.
type Handler struct {
	streams *stream.Catalog
	outputs *output.Catalog
	preview *preview.Service
	// facades maps the path's {kind} segment (record|tracking|analysis)
	// to the facade that owns that driver.
	facades map[string]*facade.Facade
}

// NewHandler builds a Handler. facades must contain exactly the three
// kind keys the router dispatches on.
func NewHandler(streams *stream.Catalog, outputs *output.Catalog, previewSvc *preview.Service, facades map[string]*facade.Facade) *Handler {
	return &Handler{streams: streams, outputs: outputs, preview: previewSvc, facades: facades}
}

func (h *Handler) facadeFor(c *gin.Context) (*facade.Facade, bool) {
	kind := c.Param("kind")
	f, ok := h.facades[kind]
	if !ok {
		writeError(c, taskmodel.NewValidation("unknown task kind: "+kind))
		return nil, false
	}
	return f, true
}

// writeError is the single place a domain error becomes an HTTP
// response, per spec.md §6's "Error mapping" / §7's propagation policy.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case taskmodel.IsNotFound(err):
		status = http.StatusNotFound
	case taskmodel.IsValidation(err):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"message": err.Error()})
}

// --- Stream endpoints (spec.md §6) ---

func (h *Handler) listStreams(c *gin.Context) {
	c.JSON(http.StatusOK, h.streams.GetAll())
}

func (h *Handler) addStream(c *gin.Context) {
	name := c.Query("cctvname")
	coordXStr := c.Query("coordx")
	coordYStr := c.Query("coordy")
	if name == "" || coordXStr == "" || coordYStr == "" {
		writeError(c, taskmodel.NewValidation("cctvname, coordx and coordy are required"))
		return
	}
	coordX, err := strconv.ParseFloat(coordXStr, 64)
	if err != nil {
		writeError(c, taskmodel.NewValidation("coordx is not numeric: "+coordXStr))
		return
	}
	coordY, err := strconv.ParseFloat(coordYStr, 64)
	if err != nil {
		writeError(c, taskmodel.NewValidation("coordy is not numeric: "+coordYStr))
		return
	}

	s, err := h.streams.Add(name, coordX, coordY)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) deleteStream(c *gin.Context) {
	name := c.Param("cctvname")
	s, err := h.streams.Delete(name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// --- Task endpoints (spec.md §6) ---

func (h *Handler) listTasks(c *gin.Context) {
	f, ok := h.facadeFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, f.List())
}

func (h *Handler) startTask(c *gin.Context) {
	f, ok := h.facadeFor(c)
	if !ok {
		return
	}
	params := map[string]string{}
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	t, err := f.Start(params)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) stopTask(c *gin.Context) {
	f, ok := h.facadeFor(c)
	if !ok {
		return
	}
	if err := f.Stop(c.Param("taskid")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) deleteTask(c *gin.Context) {
	f, ok := h.facadeFor(c)
	if !ok {
		return
	}
	if err := f.Delete(c.Param("taskid")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// --- Output endpoints (spec.md §6) ---

func (h *Handler) listOutputs(c *gin.Context) {
	c.JSON(http.StatusOK, h.outputs.GetAll())
}

func (h *Handler) getOutputByName(c *gin.Context) {
	o, err := h.outputs.GetByName(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) getOutputsByTaskID(c *gin.Context) {
	c.JSON(http.StatusOK, h.outputs.GetByTaskID(c.Param("taskid")))
}

func (h *Handler) deleteOutputsByTaskID(c *gin.Context) {
	if err := h.outputs.Delete(c.Param("taskid")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) previewOutput(c *gin.Context) {
	random, _ := strconv.ParseBool(c.Query("random"))
	jpg, err := h.preview.Thumbnail(c.Param("name"), random)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", jpg)
}
