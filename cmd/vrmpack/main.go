// Package main is the entry point for vrmpack, a polygon reducer for VRM and
// GLB avatars.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/Faultbox/vrmpack/internal/config"
	"github.com/Faultbox/vrmpack/internal/logger"
	"github.com/Faultbox/vrmpack/internal/pack"
	"github.com/Faultbox/vrmpack/pkg/scene"
)

const version = "0.1"

// Exit statuses.
const (
	exitOK = iota
	exitFailure
	exitParse
	exitBufferLoad
	exitMalformed
	exitLayout
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = printUsage

	if err := config.ParseFlags(); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitFailure
	}

	if config.VersionOnly() {
		fmt.Printf("vrmpack %s\n", version)
		return exitOK
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return exitFailure
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		return exitFailure
	}
	defer logger.Sync()

	logger.Sugar.Debugf("Config: %+v", cfg)

	if path := config.WriteConfigPath(); path != "" {
		if err := cfg.SaveTo(path); err != nil {
			logger.Error("failed to write config", zap.String("path", path), zap.Error(err))
			return exitFailure
		}
		logger.Info("config written", zap.String("path", path))
	}

	input, output := config.InputPath(), config.OutputPath()
	if input == "" || output == "" {
		if config.WriteConfigPath() != "" {
			return exitOK
		}
		printUsage()
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := pack.Run(ctx, input, output, cfg.Settings(), pack.Meshopt{})
	if err != nil {
		logger.Error("pack failed", zap.String("input", input), zap.Error(err))
		return exitStatus(err)
	}

	if n := len(report.Warnings); n > 0 {
		logger.Warn("input has structural warnings", zap.Int("count", n))
	}

	if cfg.Logging.Verbose > 0 {
		fmt.Printf("%s: %d -> %d triangles, %d -> %d buffer bytes\n",
			output, report.Before.Triangles, report.After.Triangles,
			report.Before.BufferBytes, report.After.BufferBytes)
	}
	return exitOK
}

func exitStatus(err error) int {
	switch {
	case errors.Is(err, scene.ErrParse):
		return exitParse
	case errors.Is(err, scene.ErrBufferLoad):
		return exitBufferLoad
	case errors.Is(err, pack.ErrMalformedAsset):
		return exitMalformed
	case errors.Is(err, pack.ErrLayoutInvariant):
		return exitLayout
	default:
		return exitFailure
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `vrmpack %s - polygon reducer for VRM and GLB avatars

Usage: vrmpack [options] -i input -o output

Basics:
  -i file         Input file to process (.vrm, .glb, .gltf)
  -o file         Output file path (.vrm, .glb)

Simplification:
  -si R           Simplify meshes to achieve the ratio R (0 < R <= 1; default 1)
  -sa             Aggressively simplify to the target ratio disregarding quality

Miscellaneous:
  -v              Verbose output (print version when used without other options)
  -vv             Very verbose output, one line per mesh and buffer view
  -config file    Config file (default ./vrmpack.yaml or the user config dir)
  -debug          Enable debug logging
  -log-file file  Also write logs to this file
  -dump-json      Write <output>.pre.json and <output>.post.json scene dumps
  -workers N      Parallel mesh reductions (0 = one per CPU)
  -write-config f Write the effective config to f
  -h              Display this help and exit

Exit status:
  0 success, 1 other failure, 2 parse error, 3 buffer load error,
  4 malformed asset, 5 layout invariant violation
`, version)
}
