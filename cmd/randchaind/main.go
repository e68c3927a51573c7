// Copyright (c) 2017-2020 The randchain developers
// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/randchain/randchaind/config"
	"github.com/randchain/randchaind/log"
	"github.com/randchain/randchaind/node"
	"github.com/randchain/randchaind/version"
)

func main() {
	// Use all processor cores.
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Block processing can cause bursty allocations.  This limits the
	// garbage collector from excessively overallocating during bursts.
	debug.SetGCPercent(20)

	// Work around defer not working after os.Exit().
	if err := randchaindMain(); err != nil {
		os.Exit(1)
	}
}

// randchaindMain is the real main function for randchaind.  It is necessary
// to work around the fact that deferred functions do not run when os.Exit()
// is called.
func randchaindMain() error {
	// Load configuration and parse command line.
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.ShowVersion {
		fmt.Printf("randchaind version %s (Go version %s)\n",
			version.String(), runtime.Version())
		return nil
	}

	// Initialize logging before anything else emits output.
	if logFile := cfg.LogFile(); logFile != "" {
		if err := log.InitLogRotator(logFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return err
		}
		defer log.CloseLogRotator()
	}
	if err := log.ParseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	srvrLog := log.Root()
	srvrLog.Infof("Version %s (Go version %s)", version.String(),
		runtime.Version())
	srvrLog.Infof("Home dir: %s", cfg.HomeDir)
	srvrLog.Infof("Active network: %s", cfg.ActiveParams.Name)

	// Get a channel that will be closed when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// another subsystem.
	interrupt := interruptListener()
	defer srvrLog.Info("Shutdown complete")

	// Return now if an interrupt signal was triggered.
	if interruptRequested(interrupt) {
		return nil
	}

	n, err := node.NewNode(cfg)
	if err != nil {
		srvrLog.Errorf("Failed to assemble node: %v", err)
		return err
	}
	if err := n.Start(); err != nil {
		srvrLog.Errorf("Failed to start node: %v", err)
		return err
	}
	defer func() {
		if err := n.Stop(); err != nil {
			srvrLog.Errorf("Failed to stop node: %v", err)
		}
	}()

	// Wait until the interrupt signal is received from an OS signal or
	// shutdown is requested through another subsystem.
	<-interrupt
	return nil
}
