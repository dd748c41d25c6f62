// Package stream serves the pipeline broadcast to websocket viewers
// and takes their commands.
package stream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/edgeviewer/edgeviewer/pkg/com"
	"github.com/edgeviewer/edgeviewer/pkg/logger"
	"github.com/edgeviewer/edgeviewer/pkg/network/websocket"
	"github.com/edgeviewer/edgeviewer/pkg/payload"
	"github.com/edgeviewer/edgeviewer/pkg/pipeline"
)

const welcome = "edgeviewer stream"

// Controller is the part of the pipeline driven by viewers.
type Controller interface {
	Freeze() error
	Retake() error
	ConfirmSave(ctx context.Context) error
	ConfirmExport() error
	SetMode(m pipeline.Mode) pipeline.Mode
	Status() pipeline.Status
}

// Snapshotter gives the last locally rendered image.
type Snapshotter interface {
	JPEG() ([]byte, time.Time, bool)
}

type Options struct {
	SendQueue   int
	PongTime    time.Duration
	SaveTimeout time.Duration
}

// Hub keeps websocket viewers subscribed to the broadcast sink.
type Hub struct {
	ctl      Controller
	cast     *pipeline.BroadcastSink
	display  Snapshotter
	upgrader websocket.Upgrader
	opts     Options
	viewers  com.NetMap[*websocket.Connection]
	log      *logger.Logger
}

func NewHub(ctl Controller, cast *pipeline.BroadcastSink, display Snapshotter, opts Options, log *logger.Logger) *Hub {
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 10 * time.Second
	}
	return &Hub{
		ctl:      ctl,
		cast:     cast,
		display:  display,
		upgrader: websocket.DefaultUpgrader,
		opts:     opts,
		viewers:  com.NewNetMap[*websocket.Connection](),
		log:      log.Stage("hub"),
	}
}

// ServeStream upgrades the request and subscribes the new viewer.
func (h *Hub) ServeStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, websocket.Options{SendQueue: h.opts.SendQueue, PongTime: h.opts.PongTime}, h.log)
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade")
		return
	}
	conn.OnMessage = func(message []byte, _ error) { h.handle(conn, message) }
	conn.Listen()

	if data, err := payload.NewConnected(welcome); err == nil {
		_ = conn.TrySend(data)
	}
	st := h.ctl.Status()
	if data, err := payload.NewStateChange(st.State, st.Mode); err == nil {
		_ = conn.TrySend(data)
	}

	h.viewers.Add(conn)
	h.cast.Subscribe(conn)
	h.log.Info().Str(logger.ClientField, conn.Id().Short()).Str("addr", r.RemoteAddr).Msg("Viewer connected")

	go func() {
		<-conn.Done()
		h.cast.Unsubscribe(conn)
		h.viewers.Remove(conn)
		h.log.Info().Str(logger.ClientField, conn.Id().Short()).Msg("Viewer left")
	}()
}

func (h *Hub) handle(conn *websocket.Connection, message []byte) {
	cmd, err := payload.ParseCommand(message)
	if err == nil {
		err = h.Exec(cmd)
	}
	if err == nil {
		return
	}
	h.log.Debug().Err(err).Str(logger.ClientField, conn.Id().Short()).Str("action", cmd.Action).Msg("Command failed")
	if data, err := payload.NewError(cmd.Action, err); err == nil {
		_ = conn.TrySend(data)
	}
}

// Exec runs a viewer command against the pipeline.
func (h *Hub) Exec(cmd payload.Command) error {
	switch cmd.Action {
	case payload.ActionFreeze:
		return h.ctl.Freeze()
	case payload.ActionRetake:
		return h.ctl.Retake()
	case payload.ActionSave:
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.SaveTimeout)
		defer cancel()
		return h.ctl.ConfirmSave(ctx)
	case payload.ActionExport:
		return h.ctl.ConfirmExport()
	case payload.ActionMode:
		m, err := pipeline.ParseMode(cmd.Mode)
		if err != nil {
			return errors.Join(payload.ErrBadCommand, err)
		}
		if old := h.ctl.SetMode(m); old != m {
			h.log.Info().Str("mode", m.String()).Str("was", old.String()).Msg("Mode changed")
		}
		return nil
	}
	return payload.ErrBadCommand
}

// OnStateChange tells every viewer about a capture state change.
func (h *Hub) OnStateChange(state pipeline.CaptureState, mode pipeline.Mode) {
	data, err := payload.NewStateChange(state.String(), mode.String())
	if err != nil {
		h.log.Error().Err(err).Msg("State change encode")
		return
	}
	h.cast.Notify(data)
}

func (h *Hub) Viewers() int { return h.viewers.Len() }

// Close drops all the viewers and waits until their connections are done.
func (h *Hub) Close() {
	viewers := h.viewers.Values()
	for _, v := range viewers {
		v.Close()
	}
	for _, v := range viewers {
		v.Wait()
	}
}
