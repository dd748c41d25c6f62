package httpx

import (
	"time"

	"github.com/edgeviewer/edgeviewer/pkg/logger"
)

type (
	Options struct {
		// HttpsCert and HttpsKey enable TLS when both are set.
		HttpsCert       string
		HttpsKey        string
		PortRoll        bool
		IdleTimeout     time.Duration
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		Logger          *logger.Logger
	}
	Option func(*Options)
)

func (o *Options) override(options ...Option) {
	for _, opt := range options {
		opt(o)
	}
}

func (o *Options) IsHttps() bool { return o.HttpsCert != "" && o.HttpsKey != "" }

func WithPortRoll(roll bool) Option { return func(opts *Options) { opts.PortRoll = roll } }
func WithLogger(log *logger.Logger) Option {
	return func(opts *Options) { opts.Logger = log }
}
func WithTLS(cert, key string) Option {
	return func(opts *Options) { opts.HttpsCert, opts.HttpsKey = cert, key }
}

// WithWriteTimeout should stay zero for servers with long-lived streams.
func WithWriteTimeout(t time.Duration) Option {
	return func(opts *Options) { opts.WriteTimeout = t }
}
