package monitoring

import (
	"fmt"
	"net/http"
	"net/http/pprof"

	"github.com/edgeviewer/edgeviewer/pkg/config"
	"github.com/edgeviewer/edgeviewer/pkg/logger"
	"github.com/edgeviewer/edgeviewer/pkg/network/httpx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Monitoring struct {
	conf     config.Monitoring
	registry *prometheus.Registry
	server   *httpx.Server
	log      *logger.Logger
}

// NewRegistry makes a registry with the standard process and Go collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New creates new monitoring service serving metrics of the registry.
func New(conf config.Monitoring, reg *prometheus.Registry, log *logger.Logger) (*Monitoring, error) {
	log = log.Stage("monitoring")
	serv, err := httpx.NewServer(
		fmt.Sprintf(":%d", conf.Port),
		func(serv *httpx.Server) httpx.Handler { return Handler(conf, reg) },
		httpx.WithPortRoll(true),
		httpx.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	if conf.ProfilingEnabled {
		log.Info().Msgf("Profiling is enabled at %v", serv.Addr+conf.URLPrefix+"/debug/pprof")
	}
	if conf.MetricEnabled {
		log.Info().Msgf("Prometheus metric is enabled at %v", serv.Addr+conf.URLPrefix+"/metrics")
	}
	return &Monitoring{conf: conf, registry: reg, server: serv, log: log}, nil
}

// Handler routes pprof and metrics under the configured prefix.
func Handler(conf config.Monitoring, reg *prometheus.Registry) http.Handler {
	h := httpx.NewServeMux(conf.URLPrefix)
	if conf.ProfilingEnabled {
		h.HandleFunc("/debug/pprof/", pprof.Index)
		h.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		h.HandleFunc("/debug/pprof/profile", pprof.Profile)
		h.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		h.HandleFunc("/debug/pprof/trace", pprof.Trace)
		// pprof handler for custom pprof path needs to be explicitly specified
		for _, p := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
			h.Handle("/debug/pprof/"+p, pprof.Handler(p))
		}
	}
	if conf.MetricEnabled {
		h.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	return h
}

func (m *Monitoring) Run() {
	m.log.Info().Msgf("Starting monitoring server at %v", m.server.Addr)
	m.server.Run()
}

func (m *Monitoring) Stop() error {
	m.log.Info().Msg("Shutting down monitoring server")
	return m.server.Stop()
}

func (m *Monitoring) Addr() string { return m.server.Addr }

func (m *Monitoring) String() string {
	return fmt.Sprintf("monitoring::%s:%d", m.conf.URLPrefix, m.conf.Port)
}
