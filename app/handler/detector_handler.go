package handler

import (
	"net/http"

	"loadsentry/pkg/detector"
	"loadsentry/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// DetectorHandler exposes the engine to the load controller and operator
// tooling.
type DetectorHandler struct {
	engine   *detector.Engine
	manager  *detector.Manager
	upgrader websocket.Upgrader

	verdictCh chan *detector.Verdict
}

// NewDetectorHandler creates detector handler and subscribes to published
// verdicts for the websocket stream.
func NewDetectorHandler(engine *detector.Engine, manager *detector.Manager, publisher *detector.Publisher) *DetectorHandler {
	h := &DetectorHandler{
		engine:  engine,
		manager: manager,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		verdictCh: make(chan *detector.Verdict, 16),
	}
	publisher.Subscribe(func(v *detector.Verdict) {
		select {
		case h.verdictCh <- v:
		default:
			// slow consumer, drop; the status endpoint always has the latest
		}
	})
	return h
}

// GetStatus returns the last published verdict
// @Summary Get detection status
// @Produce json
// @Success 200 {object} detector.Verdict
// @Router /v1/detector/status [get]
func (h *DetectorHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Status())
}

// GetDetected returns only the boolean verdict, for cheap polling
// @Summary Get detection flag
// @Produce json
// @Router /v1/detector/detected [get]
func (h *DetectorHandler) GetDetected(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"detected": h.engine.IsDetected()})
}

// Detect runs one detection tick with caller-supplied inputs
// @Summary Run one detection tick
// @Accept json
// @Produce json
// @Success 200 {object} detector.Verdict
// @Router /v1/detector/detect [post]
func (h *DetectorHandler) Detect(c *gin.Context) {
	var req detector.DetectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.MetricFile == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "metricFile is required"})
		return
	}

	// record only: this handler runs the tick itself, so waking the control
	// loop would evaluate the same sample twice
	h.manager.RecordLoad(req.CurrentLoad)
	verdict := h.engine.Detect(c.Request.Context(), req)
	c.JSON(http.StatusOK, verdict)
}

// SetLoad records the load controller's current offered load
// @Summary Update current offered load
// @Accept json
// @Router /v1/detector/load [post]
func (h *DetectorHandler) SetLoad(c *gin.Context) {
	var req struct {
		CurrentLoad int `json:"currentLoad"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.manager.SetLoad(req.CurrentLoad)
	c.JSON(http.StatusOK, gin.H{"currentLoad": req.CurrentLoad})
}

// Stream pushes every published verdict over a websocket
// @Summary Stream verdicts
// @Router /v1/detector/ws [get]
func (h *DetectorHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// send current state immediately so the client does not wait a tick
	if err := conn.WriteJSON(h.engine.Status()); err != nil {
		return
	}

	for {
		select {
		case v := <-h.verdictCh:
			if err := conn.WriteJSON(v); err != nil {
				return
			}
		case <-c.Request.Context().Done():
			return
		}
	}
}
