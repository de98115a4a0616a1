// Package portal is the configuration web portal: a small status page,
// JSON endpoints over the candata controls, definition upload/download and
// Prometheus metrics.
package portal

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"candash-go/bus"
	"candash-go/errcode"
	"candash-go/services/candata"
	"candash-go/types"
	"candash-go/x/mathx"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const defaultMaxUpload = 16 << 10

type Options struct {
	Listen          string
	MaxUploadBytes  int64
	DefinitionsPath string // where accepted uploads are persisted; empty = not persisted
	Mode            string // gin mode
	RequestTimeout  time.Duration
}

type Server struct {
	conn    *bus.Connection
	opts    Options
	log     *logrus.Entry
	engine  *gin.Engine
	metrics *metrics

	mu       sync.Mutex
	revision string
}

func New(conn *bus.Connection, opts Options, log *logrus.Entry) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = time.Second
	}
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	if log == nil {
		log = logrus.WithField("svc", "portal")
	}
	s := &Server{conn: conn, opts: opts, log: log, metrics: newMetrics()}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.accessLog())
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/", s.handleIndex)
	r.GET("/params", s.handleDownload)
	r.POST("/upload", s.handleUpload)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.reg, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/params", s.handleParams)
		api.GET("/cells", s.handleCells)
		api.POST("/params/:id/read", s.handleRead)
		api.POST("/params/:id/write", s.handleWrite)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.metrics.watch(ctx, s.conn)

	srv := &http.Server{
		Addr:         s.opts.Listen,
		Handler:      s.engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	go func() {
		s.log.WithField("listen", s.opts.Listen).Info("portal listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("portal stopped")
		}
	}()
	return nil
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": c.Writer.Status(),
			"ms":     time.Since(start).Milliseconds(),
		}).Debug("http")
	}
}

// request sends a control request to candata and waits for the reply.
func (s *Server) request(c *gin.Context, verb string, payload any) (any, error) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.RequestTimeout)
	defer cancel()
	reply, err := s.conn.RequestWait(ctx, s.conn.NewMessage(candata.CtrlTopic(verb), payload, false))
	if err != nil {
		return nil, err
	}
	if er, ok := reply.Payload.(types.ErrorReply); ok {
		return nil, errcode.Code(er.Error)
	}
	return reply.Payload, nil
}

func (s *Server) snapshot(c *gin.Context) (types.Snapshot, bool) {
	p, err := s.request(c, candata.CtrlSnapshot, nil)
	if err != nil {
		fail(c, err)
		return types.Snapshot{}, false
	}
	snap, ok := p.(types.Snapshot)
	if !ok {
		fail(c, errcode.InvalidPayload)
	}
	return snap, ok
}

func (s *Server) handleStatus(c *gin.Context) {
	if snap, ok := s.snapshot(c); ok {
		s.mu.Lock()
		rev := s.revision
		s.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"status": snap.Status, "revision": rev})
	}
}

func (s *Server) handleParams(c *gin.Context) {
	if snap, ok := s.snapshot(c); ok {
		c.JSON(http.StatusOK, snap.Params)
	}
}

func (s *Server) handleCells(c *gin.Context) {
	if snap, ok := s.snapshot(c); ok {
		c.JSON(http.StatusOK, snap.Cells)
	}
}

func (s *Server) handleDownload(c *gin.Context) {
	p, err := s.request(c, candata.CtrlDefinitions, nil)
	if err != nil {
		fail(c, err)
		return
	}
	dr, ok := p.(types.DefinitionsReply)
	if !ok {
		fail(c, errcode.InvalidPayload)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="params.json"`)
	c.Data(http.StatusOK, "application/json", dr.Doc)
}

func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)
	doc, err := s.readUpload(c)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.metrics.uploads.WithLabelValues("too_large").Inc()
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"ok": false, "error": errcode.TooLarge})
			return
		}
		s.metrics.uploads.WithLabelValues("bad_request").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": errcode.InvalidPayload, "msg": err.Error()})
		return
	}

	p, err := s.request(c, candata.CtrlLoad, types.LoadRequest{Doc: doc})
	if err != nil {
		fail(c, err)
		return
	}
	lr, _ := p.(types.LoadReply)
	if !lr.OK {
		s.metrics.uploads.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": lr.Error, "msg": lr.Msg})
		return
	}
	if err := s.persist(doc); err != nil {
		s.log.WithError(err).Error("definitions loaded but not saved")
		s.metrics.uploads.WithLabelValues("unsaved").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": errcode.Error, "msg": err.Error()})
		return
	}

	rev := uuid.NewString()
	s.mu.Lock()
	s.revision = rev
	s.mu.Unlock()
	s.metrics.uploads.WithLabelValues("ok").Inc()
	s.log.WithFields(logrus.Fields{"count": lr.Count, "revision": rev}).Info("definitions uploaded")
	c.JSON(http.StatusOK, gin.H{"ok": true, "count": lr.Count, "revision": rev})
}

// readUpload accepts a multipart "file" field or a raw JSON body.
func (s *Server) readUpload(c *gin.Context) ([]byte, error) {
	if c.ContentType() == "multipart/form-data" {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, err
		}
		if fh.Size > s.opts.MaxUploadBytes {
			return nil, &http.MaxBytesError{Limit: s.opts.MaxUploadBytes}
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	}
	return io.ReadAll(c.Request.Body)
}

// persist writes doc next to the target and renames it into place, so a
// failed write never leaves a truncated definitions file.
func (s *Server) persist(doc []byte) error {
	path := s.opts.DefinitionsPath
	if path == "" {
		return nil
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".params-*.json")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

func paramID(c *gin.Context) (uint16, bool) {
	n, err := strconv.ParseUint(c.Param("id"), 10, 16)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": errcode.InvalidParams})
		return 0, false
	}
	return uint16(n), true
}

func (s *Server) handleRead(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if _, err := s.request(c, candata.CtrlRead, types.ReadRequest{ID: id}); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"ok": true})
}

type writeBody struct {
	Value *int32 `json:"value"`
}

// handleWrite clamps the value to the parameter's bounds, as the on-device
// editor does, before queueing it.
func (s *Server) handleWrite(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var body writeBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Value == nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": errcode.InvalidPayload})
		return
	}
	snap, ok := s.snapshot(c)
	if !ok {
		return
	}
	var target *types.ParamValue
	for i := range snap.Params {
		if snap.Params[i].ID == id {
			target = &snap.Params[i]
			break
		}
	}
	if target == nil {
		fail(c, errcode.NotFound)
		return
	}
	v := mathx.Clamp(*body.Value, target.Min, target.Max)
	if _, err := s.request(c, candata.CtrlWrite, types.WriteRequest{ID: id, Value: v}); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"ok": true, "value": v})
}

func fail(c *gin.Context, err error) {
	code := errcode.Of(err)
	status := http.StatusInternalServerError
	switch code {
	case errcode.NotFound:
		status = http.StatusNotFound
	case errcode.NotEditable:
		status = http.StatusForbidden
	case errcode.QueueFull, errcode.Busy:
		status = http.StatusServiceUnavailable
	case errcode.Timeout:
		status = http.StatusGatewayTimeout
	case errcode.InvalidParams, errcode.InvalidPayload:
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"ok": false, "error": code})
}
