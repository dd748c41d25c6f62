// Package viewer assembles the camera, the pipeline and its outputs into one service.
package viewer

import (
	"context"
	"errors"
	"sync"

	"github.com/edgeviewer/edgeviewer/pkg/camera"
	"github.com/edgeviewer/edgeviewer/pkg/config"
	"github.com/edgeviewer/edgeviewer/pkg/display"
	"github.com/edgeviewer/edgeviewer/pkg/export"
	"github.com/edgeviewer/edgeviewer/pkg/logger"
	"github.com/edgeviewer/edgeviewer/pkg/monitoring"
	"github.com/edgeviewer/edgeviewer/pkg/network/httpx"
	"github.com/edgeviewer/edgeviewer/pkg/payload"
	"github.com/edgeviewer/edgeviewer/pkg/pipeline"
	"github.com/edgeviewer/edgeviewer/pkg/service"
	"github.com/edgeviewer/edgeviewer/pkg/stream"
	"github.com/edgeviewer/edgeviewer/pkg/transform"
	"github.com/hashicorp/go-multierror"
)

type Viewer struct {
	conf     config.ViewerConfig
	pipe     *pipeline.Pipeline
	renderer *display.Renderer
	hub      *stream.Hub
	cam      camera.Source
	server   *httpx.Server
	mon      *monitoring.Monitoring
	services service.Group

	ctx    context.Context
	cancel context.CancelFunc
	log    *logger.Logger
}

func New(conf config.ViewerConfig, log *logger.Logger) (*Viewer, error) {
	mode, err := pipeline.ParseMode(conf.Pipeline.Mode)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	v := &Viewer{conf: conf, ctx: ctx, cancel: cancel, log: log}

	exp, err := exporters(ctx, conf.Export, log)
	if err != nil {
		cancel()
		return nil, err
	}

	tr := transform.New()
	tr.LowThreshold, tr.HighThreshold = conf.Pipeline.LowThreshold, conf.Pipeline.HighThreshold

	v.pipe = pipeline.New(pipeline.Options{
		SlotCapacity:   conf.Pipeline.SlotCapacity,
		BroadcastQueue: conf.Broadcast.Queue,
		LiveBroadcast:  !conf.Pipeline.ExportOnly,
		AutoLive:       !conf.Pipeline.StayFrozen,
		InitialMode:    mode,
		StopTimeout:    conf.Pipeline.StopTimeout,
		Worker: pipeline.WorkerOptions{
			MinInterval: conf.Pipeline.MinInterval,
			BusyWait:    conf.Pipeline.BusyWait,
			IdleWait:    conf.Pipeline.IdleWait,
			FrozenWait:  conf.Pipeline.FrozenWait,
		},
	}, tr, payload.JPEGEncoder{Quality: conf.Broadcast.Quality, Scale: conf.Broadcast.Scale}, exp, log)

	v.renderer = display.New(v.pipe.Display(), v.pipe.Monitor(), display.Options{
		Refresh: conf.Display.Refresh,
		Quality: conf.Display.Quality,
	}, log)

	v.hub = stream.NewHub(v.pipe, v.pipe.Broadcast(), v.renderer, stream.Options{
		SendQueue:   conf.Broadcast.SendQueue,
		PongTime:    conf.Broadcast.PongTime,
		SaveTimeout: conf.Pipeline.SaveTimeout,
	}, log)
	v.pipe.AddStateListener(v.hub)

	v.cam = newCamera(conf.Camera, log)

	v.server, err = httpx.NewServer(conf.Server.Address,
		func(*httpx.Server) httpx.Handler { return v.hub.Routes(httpx.NewServeMux("")) },
		httpx.WithTLS(conf.Server.HttpsCert, conf.Server.HttpsKey),
		httpx.WithPortRoll(conf.Server.PortRoll),
		httpx.WithLogger(log),
	)
	if err != nil {
		cancel()
		return nil, err
	}

	if conf.Monitoring.IsEnabled() {
		reg := monitoring.NewRegistry()
		if err = v.pipe.Register(reg); err != nil {
			cancel()
			_ = v.server.Close()
			return nil, err
		}
		if v.mon, err = monitoring.New(conf.Monitoring, reg, log); err != nil {
			cancel()
			_ = v.server.Close()
			return nil, err
		}
	}

	v.services.Add(&pipeService{p: v.pipe, ctx: ctx}, &renderService{r: v.renderer, ctx: ctx}, v.server)
	if v.mon != nil {
		v.services.Add(v.mon)
	}
	return v, nil
}

func exporters(ctx context.Context, conf config.Export, log *logger.Logger) (pipeline.Exporter, error) {
	file, err := export.NewFile(conf.Dir, conf.Name, conf.Label, log)
	if err != nil {
		return nil, err
	}
	if !conf.HasS3() {
		return file, nil
	}
	s3, err := export.NewS3(ctx, conf.S3.Endpoint, conf.S3.Bucket, conf.S3.Key, conf.S3.Secret, conf.S3.Secure, log)
	if err != nil {
		return nil, err
	}
	return export.Multi{file, s3.WithName(conf.Name, conf.Label)}, nil
}

func newCamera(conf config.Camera, log *logger.Logger) camera.Source {
	if conf.Source == "dir" {
		return camera.NewDir(conf.Dir, conf.Replay, log)
	}
	p := camera.NewPattern(conf.Width, conf.Height, conf.Fps, conf.Burst, log)
	p.Rotation = conf.Rotation
	return p
}

// Start runs every service and then opens the camera.
func (v *Viewer) Start() error {
	v.services.Start()
	if err := v.cam.Start(v.ctx, func(f pipeline.RawFrame) { v.pipe.Push(f) }); err != nil {
		return multierror.Append(err, v.services.Stop())
	}
	v.log.Info().Str("addr", v.server.Addr).Str("mode", v.pipe.Mode().String()).Msg("Viewer started")
	return nil
}

// Stop closes the camera first so nothing new enters the pipeline.
// A pipeline that doesn't stop in time is reported but never blocks the shutdown.
func (v *Viewer) Stop() error {
	v.cam.Stop()
	v.hub.Close()
	err := v.services.Stop()
	v.cancel()
	if errors.Is(err, pipeline.ErrStopTimeout) {
		v.log.Warn().Err(err).Msg("Pipeline stop timed out")
	}
	return err
}

func (v *Viewer) Addr() string                       { return v.server.Addr }
func (v *Viewer) Pipeline() *pipeline.Pipeline       { return v.pipe }
func (v *Viewer) Monitoring() *monitoring.Monitoring { return v.mon }

type pipeService struct {
	p   *pipeline.Pipeline
	ctx context.Context
}

func (s *pipeService) Run()           { s.p.Start(s.ctx) }
func (s *pipeService) Stop() error    { return s.p.Stop() }
func (s *pipeService) String() string { return "pipeline" }

type renderService struct {
	r      *display.Renderer
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (s *renderService) Run() {
	var ctx context.Context
	ctx, s.cancel = context.WithCancel(s.ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.r.Run(ctx)
	}()
}

func (s *renderService) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

func (s *renderService) String() string { return "display" }
