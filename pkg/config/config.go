// Package config has the application configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

type ViewerConfig struct {
	Pipeline   Pipeline
	Broadcast  Broadcast
	Display    Display
	Camera     Camera
	Export     Export
	Server     Server
	Monitoring Monitoring
	Debug      bool
	// Console switches the logs into the human-readable format.
	Console bool
}

type Pipeline struct {
	SlotCapacity int    `default:"3"`
	Mode         string `default:"edges"`
	// ExportOnly stops the continuous broadcast,
	// viewers then get only the explicitly exported frames.
	ExportOnly bool
	// StayFrozen keeps the saved snapshot on screen after a save.
	StayFrozen    bool
	MinInterval   time.Duration `default:"33ms"`
	BusyWait      time.Duration `default:"5ms"`
	IdleWait      time.Duration `default:"10ms"`
	FrozenWait    time.Duration `default:"50ms"`
	StopTimeout   time.Duration `default:"1s"`
	SaveTimeout   time.Duration `default:"10s"`
	LowThreshold  int           `default:"50"`
	HighThreshold int           `default:"150"`
}

type Broadcast struct {
	Queue     int `default:"3"`
	Quality   int `default:"85"`
	Scale     float64
	SendQueue int           `default:"3"`
	PongTime  time.Duration `default:"60s"`
}

type Display struct {
	Refresh time.Duration `default:"100ms"`
	Quality int           `default:"85"`
}

type Camera struct {
	// Source is either pattern or dir.
	Source   string  `default:"pattern"`
	Width    int     `default:"640"`
	Height   int     `default:"480"`
	Fps      float64 `default:"30"`
	Burst    int     `default:"1"`
	Rotation int
	Dir      string `default:"frames"`
	Replay   bool
}

type Export struct {
	Dir   string `default:"exports"`
	Name  string `default:"frame_%ms%"`
	Label bool
	S3    struct {
		Endpoint string
		Bucket   string
		Key      string
		Secret   string
		Secure   bool
	}
}

func (e *Export) HasS3() bool { return e.S3.Endpoint != "" && e.S3.Bucket != "" }

type Server struct {
	Address   string `default:":8080"`
	HttpsCert string
	HttpsKey  string
	PortRoll  bool
}

type Monitoring struct {
	Port             int `default:"6601"`
	URLPrefix        string
	MetricEnabled    bool `json:"metric_enabled"`
	ProfilingEnabled bool `json:"profiling_enabled"`
}

func (c *Monitoring) IsEnabled() bool { return c.MetricEnabled || c.ProfilingEnabled }

var (
	sources = []string{"pattern", "dir"}
	modes   = []string{"raw", "edges", "grayscale"}
)

// NewViewerConfig loads the config file (or --conf) with env overrides
// and then applies the command line flags on top.
func NewViewerConfig(args []string) (conf ViewerConfig, err error) {
	if err = LoadConfig(&conf, confPath(args)); err != nil {
		return conf, err
	}
	if err = conf.ParseFlags(args); err != nil {
		return conf, err
	}
	conf.fixValues()
	return conf, conf.Validate()
}

// ParseFlags updates config values from passed runtime flags.
// Flag defaults are the current config values.
func (c *ViewerConfig) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("edgeviewer", pflag.ContinueOnError)
	fs.StringVar(&c.Server.Address, "address", c.Server.Address, "HTTP server address (host:port)")
	fs.StringVar(&c.Pipeline.Mode, "mode", c.Pipeline.Mode, "Processing mode: "+strings.Join(modes, ", "))
	fs.StringVar(&c.Camera.Source, "camera", c.Camera.Source, "Camera source: "+strings.Join(sources, ", "))
	fs.StringVar(&c.Camera.Dir, "camera.dir", c.Camera.Dir, "Directory watched by the dir camera")
	fs.IntVar(&c.Monitoring.Port, "monitoring.port", c.Monitoring.Port, "Monitoring server port")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "Debug logs")
	fs.BoolVar(&c.Console, "console", c.Console, "Human-readable logs")
	fs.String("conf", "", "Set custom configuration file path")
	return fs.Parse(args)
}

// confPath finds the --conf value without failing on other flags.
func confPath(args []string) string {
	fs := pflag.NewFlagSet("conf", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	path := fs.String("conf", "", "")
	_ = fs.Parse(args)
	return *path
}

// fixValues tries to fix some values otherwise hard to set externally.
func (c *ViewerConfig) fixValues() {
	c.Pipeline.Mode = strings.ToLower(strings.TrimSpace(c.Pipeline.Mode))
	c.Camera.Source = strings.ToLower(strings.TrimSpace(c.Camera.Source))
	if c.Broadcast.Scale < 0 || c.Broadcast.Scale > 1 {
		c.Broadcast.Scale = 0
	}
}

func (c *ViewerConfig) Validate() error {
	var errs []error
	if !contains(modes, c.Pipeline.Mode) {
		errs = append(errs, fmt.Errorf("unknown mode %q", c.Pipeline.Mode))
	}
	if !contains(sources, c.Camera.Source) {
		errs = append(errs, fmt.Errorf("unknown camera source %q", c.Camera.Source))
	}
	if c.Pipeline.LowThreshold > c.Pipeline.HighThreshold {
		errs = append(errs, errors.New("edge low threshold is above the high one"))
	}
	return errors.Join(errs...)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
