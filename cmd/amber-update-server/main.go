package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	log "github.com/sirupsen/logrus"

	"github.com/ambercms/amber-update/configs"
	"github.com/ambercms/amber-update/internal/pkg/core"
	"github.com/ambercms/amber-update/internal/pkg/utils/logutils"
)

func main() {
	var (
		app        = kingpin.New("amber-update-server", "The Amber CMS self-update engine")
		configPath = app.Flag("config", "Path to the server config file").Default("config.yaml").Envar("AMBER_UPDATE_CONFIG").String()
		host       = app.Flag("host", "Hostname to listen on").Default("127.0.0.1").Envar("AMBER_UPDATE_HOST").String()
		httpPort   = app.Flag("http-port", "HTTP port to listen on").Default("8080").Envar("AMBER_UPDATE_PORT").Uint16()
		logLevel   = app.Flag("log-level", "Log-Level, must be one of [DEBUG, INFO, WARN, ERROR]").Default("INFO").Envar("LOG_LEVEL").Enum("DEBUG", "INFO", "WARN", "ERROR", "debug", "info", "warn", "error")
		logFormat  = app.Flag("log-format", "Log-Format, must be one of [TEXT, JSON]").Default("TEXT").Envar("LOG_FORMAT").Enum("TEXT", "JSON")
	)
	app.HelpFlag.Short('h')
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logutils.SetLogLevel(*logLevel)
	logutils.SetLogFormat(*logFormat)

	configFile, err := configs.LoadConfigFile(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	server, err := core.New(configs.ServerConfig{
		ConfigFile: configFile,
		CliOpts: configs.CliOpts{
			Host:           *host,
			HTTPPort:       *httpPort,
			LogLevel:       *logLevel,
			LogFormat:      *logFormat,
			ConfigFilePath: *configPath,
		},
	})
	if err != nil {
		log.WithError(err).Fatal("failed to initialize server")
	}
	if err := server.Start(); err != nil {
		log.WithError(err).Fatal("failed to start server")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.WithError(err).Error("shutdown did not complete cleanly")
	}
}
