package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Schera-ole/hostagent/internal/agent"
	"github.com/Schera-ole/hostagent/internal/collector"
	internalerrors "github.com/Schera-ole/hostagent/internal/errors"
	"github.com/Schera-ole/hostagent/internal/logger"
)

// Process exit codes.
const (
	exitOK          = 0
	exitBadConfig   = 1
	exitNoToken     = 2
	exitCredentials = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	fmt.Printf("hostagent v%s\n", agent.Version)

	agentConfig, err := agent.NewAgentConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse configuration: %v\n", err)
		return exitBadConfig
	}

	log, err := logger.New(agentConfig.LogLevel, agentConfig.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return exitBadConfig
	}
	defer log.Sync()

	token, err := agent.LoadToken(agentConfig.ConfigDir)
	if err != nil {
		log.Errorw("cannot load agent token", "error", err)
		return exitCode(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	a := agent.New(agentConfig, token, collector.NewHost(agent.Version, log), log)
	runErr := a.Run(ctx)
	stop()
	if !a.Stop() {
		log.Warn("shutdown exceeded its time bound")
	}
	if runErr != nil {
		log.Errorw("agent stopped with error", "error", runErr)
	}
	return exitCode(runErr)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, internalerrors.ErrTokenMissing):
		return exitNoToken
	case errors.Is(err, internalerrors.ErrFatalAuth):
		return exitCredentials
	default:
		return exitBadConfig
	}
}

