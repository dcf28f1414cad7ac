package main

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/troian/healthcheck"
	"go.uber.org/zap"

	"github.com/fleetmq/fleetmq"
	"github.com/fleetmq/fleetmq/configuration"
	"github.com/fleetmq/fleetmq/transport"
)

var logger *zap.SugaredLogger

// those are provided at compile time

// GitCommit SHA hash
var GitCommit string

// BuildDate build date
var BuildDate string

// Version application version
var Version string

func loadMqttListeners(lCfg *configuration.ListenersConfig) ([]interface{}, error) {
	var listeners []interface{}

	for name, ls := range lCfg.MQTT {
		for port, cfg := range ls {
			host := lCfg.DefaultAddr
			if len(cfg.Host) > 0 {
				host = cfg.Host
			}

			tCfg := &transport.Config{
				Host: host,
				Port: strconv.Itoa(port),
			}

			switch name {
			case "tcp":
				listeners = append(listeners, transport.NewConfigTCP(tCfg))
			case "ws":
				wsConfig := transport.NewConfigWS(tCfg)
				wsConfig.Path = cfg.Path
				listeners = append(listeners, wsConfig)
			default:
				logger.Warn("unknown mqtt listener type: ", name)
			}
		}
	}

	return listeners, nil
}

func main() {
	defer func() {
		logger.Info("service stopped")

		if r := recover(); r != nil {
			logger.Panic(r)
		}
	}()

	logger = configuration.GetLogger().Named("fleetmq")

	logger.Info("starting service...")
	logger.Info("\n\tbuild info:\n",
		"\t\tcommit : ", GitCommit, "\n",
		"\t\tbuild date : ", BuildDate, "\n",
		"\t\tversion : ", Version, "\n")

	config := configuration.ReadConfig()
	if config == nil {
		return
	}

	configuration.ConfigureLoggers(&config.System.Log)

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(5000)) // nolint: errcheck

	listenerStatus := func(id string, status string) {
		logger.Info("listener state: ", "id: ", id, " status: ", status)
	}

	srv, err := fleetmq.NewServer(fleetmq.Config{
		Broker:          config.Broker,
		Health:          health,
		TransportStatus: listenerStatus,
	})
	if err != nil {
		logger.Error("server create", zap.Error(err))
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/", srv.Handler())
	mux.HandleFunc("/live", health.LiveEndpoint)
	mux.HandleFunc("/ready", health.ReadyEndpoint)

	httpServer := &http.Server{
		Addr:    config.Listeners.HTTP,
		Handler: mux,
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Panic("http server panic", zap.Any("panic", r))
			}
		}()

		logger.Info("starting http server on " + httpServer.Addr)
		httpServer.ListenAndServe() // nolint: errcheck
		logger.Info("stopped http server on " + httpServer.Addr)
	}()

	var listeners []interface{}

	if listeners, err = loadMqttListeners(&config.Listeners); err != nil {
		logger.Error("loading listeners", zap.Error(err))
		return
	}

	if len(listeners) == 0 {
		logger.Error("no mqtt listeners")
		return
	}

	logger.Info("starting mqtt listeners")
	for _, l := range listeners {
		if err = srv.ListenAndServe(l); err != nil {
			logger.Error("listen and serve", zap.Error(err))
			break
		}
	}

	if err == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		logger.Info("service received signal: ", sig.String())
	}

	if err = srv.Shutdown(); err != nil {
		logger.Error("shutdown server", zap.Error(err))
	}

	httpServer.Shutdown(context.Background()) // nolint: errcheck
}
