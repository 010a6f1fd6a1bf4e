// Package server is the web front end of the vision demo.
// Every upload request gets its own scratch area, runs the inference engine
// synchronously, and renders the results as an HTML page.
package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/visiondemo/pkg/chart"
	"github.com/cyclopcam/visiondemo/pkg/engine"
	"github.com/cyclopcam/visiondemo/pkg/videox"
	"github.com/cyclopcam/visiondemo/server/config"
	"github.com/cyclopcam/visiondemo/server/staging"
	"github.com/julienschmidt/httprouter"
)

// Backends are the external programs that the server depends on.
// Any nil field is filled in with the default implementation.
type Backends struct {
	Classifier engine.Classifier
	Detector   engine.VideoDetector
	MakeGIF    func(ctx context.Context, src, dst string) error
	Transcode  func(ctx context.Context, src, dst string) error
	Duration   func(ctx context.Context, filename string) (time.Duration, error)
}

type Server struct {
	Log              logs.Log
	ShutdownComplete chan error // Receives one value when Shutdown() has finished

	cfg        *config.Config
	catalog    *engine.Catalog
	staging    *staging.Staging
	backends   Backends
	chartStyle chart.Style
	pages      map[string]*template.Template
	signalIn   chan os.Signal
	httpServer *http.Server
	httpRouter *httprouter.Router

	shutdownOnce sync.Once
}

// NewServer validates the configuration, checks which models are installed,
// and prepares the HTTP routes. If backends is nil, the inference engine
// is launched as an external program, and video conversion uses ffmpeg.
func NewServer(log logs.Log, cfg *config.Config, backends *Backends) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	catalog := engine.NewCatalog(cfg.ModelDir)
	for _, missing := range catalog.Missing() {
		log.Warnf("Model weights not found: %v", missing)
	}

	stage, err := staging.NewStaging(log, cfg.StagingDir, cfg.StagingMaxAge())
	if err != nil {
		return nil, err
	}

	b := Backends{}
	if backends != nil {
		b = *backends
	}
	if b.Classifier == nil || b.Detector == nil {
		exe, err := engine.NewExecEngine(log, cfg.Engine.Command, cfg.ModelDir, cfg.Engine.MaxJobs, cfg.EngineTimeout())
		if err != nil {
			return nil, err
		}
		if b.Classifier == nil {
			b.Classifier = exe
		}
		if b.Detector == nil {
			b.Detector = exe
		}
	}
	if b.MakeGIF == nil {
		gifOpt := videox.GIFOptions{
			FPS:   cfg.Video.GIFFramesPerSecond,
			Width: cfg.Video.GIFWidth,
		}
		b.MakeGIF = func(ctx context.Context, src, dst string) error {
			return videox.MakeGIF(ctx, src, dst, gifOpt)
		}
	}
	if b.Transcode == nil {
		b.Transcode = videox.TranscodeSeekable
	}
	if b.Duration == nil {
		b.Duration = videox.ExtractVideoDuration
	}

	pages, err := loadPages()
	if err != nil {
		return nil, err
	}

	s := &Server{
		Log:              log,
		ShutdownComplete: make(chan error, 1),
		cfg:              cfg,
		catalog:          catalog,
		staging:          stage,
		backends:         b,
		chartStyle:       chart.DefaultStyle(),
		pages:            pages,
	}
	if err := s.setupHttpRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

// Handler exposes the router, so that tests can drive it with httptest
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

// ListenHTTP blocks until the server is shut down.
// addr example: ":8080"
func (s *Server) ListenHTTP(addr string) error {
	s.Log.Infof("Listening on %v", addr)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.httpRouter,
		ReadHeaderTimeout: 30 * time.Second,
	}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) ListenForKillSignals() {
	s.Log.Infof("ListenForKillSignals starting")
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. ListenForKillSignals will exit after shutdown", sig.String())
			s.Shutdown()
		} else {
			// This path gets hit when Shutdown() is called by something other than ourselves, and Shutdown() closes the signalIn channel.
			s.Log.Infof("signalIn closed. ListenForKillSignals will exit now")
		}
	}()
}

// Shutdown waits for in-flight requests to finish.
// Detection jobs can take minutes, so we wait longer than a typical API server would.
// Only the first call does anything, so a kill signal and the caller may both call Shutdown.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(s.shutdown)
}

func (s *Server) shutdown() {
	s.Log.Infof("Shutdown")
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
	}

	var err error
	if s.httpServer != nil {
		s.Log.Infof("Closing HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err = s.httpServer.Shutdown(ctx)
	}
	if err != nil {
		s.Log.Warnf("Shutdown complete, with error: %v", err)
		err = fmt.Errorf("Shutdown: %w", err)
	} else {
		s.Log.Infof("Shutdown complete")
	}
	s.ShutdownComplete <- err
}
