package main

import (
	"errors"
	"os"

	"github.com/edgeviewer/edgeviewer/pkg/config"
	"github.com/edgeviewer/edgeviewer/pkg/logger"
	xos "github.com/edgeviewer/edgeviewer/pkg/os"
	"github.com/edgeviewer/edgeviewer/pkg/viewer"
	"github.com/spf13/pflag"
)

var Version = "?"

func main() {
	conf, err := config.NewViewerConfig(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}

	var log *logger.Logger
	if conf.Console {
		log = logger.NewConsole(conf.Debug, "v", false)
	} else {
		log = logger.New(conf.Debug)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}

	v, err := viewer.New(conf, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init")
	}
	if err = v.Start(); err != nil {
		log.Fatal().Err(err).Msg("start")
	}

	<-xos.ExpectTermination()
	if err = v.Stop(); err != nil {
		log.Error().Err(err).Msg("service shutdown errors")
	}
}
