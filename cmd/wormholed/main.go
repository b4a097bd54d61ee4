package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/tacusci/logging/v2"
	"github.com/takama/daemon"
	"github.com/tauraamui/wormhole/pkg/config"
	"github.com/tauraamui/wormhole/pkg/configdef"
	db "github.com/tauraamui/wormhole/pkg/database"
	"github.com/tauraamui/wormhole/pkg/log"
	"github.com/tauraamui/wormhole/pkg/video/videobackend"
	"github.com/tauraamui/wormhole/pkg/wormhole"
)

const (
	name        = "wormhole"
	description = "Wormhole service daemon which serves video feeds as MJPEG streams"
)

type Service struct {
	daemon.Daemon
}

// Setup creates the default config and the session history database.
func (service *Service) Setup() (string, error) {
	log.Info("Setting up wormhole service...")

	err := config.DefaultCreator().Create()
	if err != nil {
		if !errors.Is(err, configdef.ErrConfigAlreadyExists) {
			return "", err
		}
		log.Error(err.Error())
	}

	err = db.Setup()
	if err != nil {
		if !errors.Is(err, db.ErrDBAlreadyExists) {
			return "", err
		}
		log.Error(err.Error())
	}

	return "Setup successful...", nil
}

func (service *Service) RemoveSetup() (string, error) {
	log.Info("Removing setup for wormhole service...")
	if err := db.Destroy(); err != nil {
		log.Error("unable to delete database file: %s", err.Error())
	}

	if err := config.DefaultDestroyer().Destroy(); err != nil {
		log.Error("unable to delete config file: %s", err.Error())
	}

	return "Removing setup successful...", nil
}

func (service *Service) Manage() (string, error) {
	usage := "Usage: wormholed setup | remove-setup | install | remove | start | stop | status"

	if len(os.Args) > 1 {
		command := os.Args[1]
		switch command {
		case "setup":
			return service.Setup()
		case "remove-setup":
			return service.RemoveSetup()
		case "install":
			return service.Install()
		case "remove":
			return service.Remove()
		case "start":
			return service.Start()
		case "stop":
			return service.Stop()
		case "status":
			return service.Status()
		default:
			return usage, nil
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	log.Info("Starting wormhole...")

	values, err := config.DefaultResolver().Resolve()
	if err != nil {
		return "", err
	}

	backend := os.Getenv("WORMHOLE_VIDEO_BACKEND")
	if len(backend) == 0 {
		backend = values.Backend
	}

	server, err := wormhole.NewServer(resolvedConfig(values), videobackend.Resolve(backend))
	if err != nil {
		return "", err
	}

	ctx, cancelStartup := context.WithCancel(context.Background())
	go startupServer(ctx, server)

	killSignal := <-interrupt
	fmt.Print("\r")
	log.Error("Received signal: %s", killSignal)

	cancelStartup()
	log.Info("Shutting down server...")
	<-server.Shutdown()

	return "Shutdown successful... BYE! 👋", nil
}

type resolvedConfig configdef.Values

func (rc resolvedConfig) Resolve() (configdef.Values, error) {
	return configdef.Values(rc), nil
}

func startupServer(ctx context.Context, server *wormhole.Server) {
	connectToSources(ctx, server)
	server.SetupProcesses()
	server.RunProcesses()
	if err := server.Serve(ctx); err != nil {
		log.Error(err.Error())
	}
}

func connectToSources(ctx context.Context, server *wormhole.Server) {
	errs := server.ConnectWithCancel(ctx)
	for _, err := range errs {
		log.Error(err.Error())
	}
}

func init() {
	logging.CallbackLabelLevel = 5
	logging.ColorLogLevelLabelOnly = true
	log.SetLevel(os.Getenv("WORMHOLE_LOGGING_LEVEL"))
}

func main() {
	daemonType := daemon.SystemDaemon
	if runtime.GOOS == "darwin" {
		daemonType = daemon.UserAgent
	}

	srv, err := daemon.New(name, description, daemonType)
	if err != nil {
		logging.Error(err.Error()) //nolint
		os.Exit(1)
	}

	service := &Service{srv}
	status, err := service.Manage()
	if err != nil {
		logging.Error(err.Error()) //nolint
		os.Exit(1)
	}

	logging.Info(status) //nolint
}
