package config

import (
	"flag"
	"math"
	"os"
)

var (
	flagConfig      = flag.String("config", "", "Path to config file")
	flagInput       = flag.String("i", "", "Input file to process (.vrm, .glb, .gltf)")
	flagOutput      = flag.String("o", "", "Output file path (.vrm, .glb)")
	flagThreshold   = flag.Float64("si", math.NaN(), "Simplify meshes to achieve the ratio R (0 < R <= 1)")
	flagAggressive  = flag.Bool("sa", false, "Aggressively simplify to the target ratio disregarding quality")
	flagVerbose     = flag.Bool("v", false, "Verbose output (print version when used without other options)")
	flagVeryVerbose = flag.Bool("vv", false, "Very verbose output")
	flagDebug       = flag.Bool("debug", false, "Enable debug logging")
	flagLogFile     = flag.String("log-file", "", "Also write logs to this file")
	flagDumpJSON    = flag.Bool("dump-json", false, "Write pre/post scene JSON next to the output")
	flagWorkers     = flag.Int("workers", -1, "Parallel mesh reductions (0 = one per CPU)")
	flagWriteConfig = flag.String("write-config", "", "Write the effective config to this path")
)

// ParseFlags parses command-line flags. Call this early in main().
// Unknown options are returned as an error instead of exiting, so the caller
// picks the exit status.
func ParseFlags() error {
	flag.CommandLine.Init(os.Args[0], flag.ContinueOnError)
	return flag.CommandLine.Parse(os.Args[1:])
}

// ConfigPath returns the explicit config path if provided via -config flag.
func ConfigPath() string {
	return expand(*flagConfig)
}

// InputPath returns the -i flag value.
func InputPath() string {
	return expand(*flagInput)
}

// OutputPath returns the -o flag value.
func OutputPath() string {
	return expand(*flagOutput)
}

// WriteConfigPath returns the -write-config flag value.
func WriteConfigPath() string {
	return expand(*flagWriteConfig)
}

// VersionOnly reports whether the tool was asked only for its version
// (a bare -v).
func VersionOnly() bool {
	return *flagVerbose && flag.NFlag() == 1 && flag.NArg() == 0
}

// applyFlags applies CLI flag overrides to the config. An explicit -si is
// applied as given, so out-of-range ratios reach Validate.
func applyFlags(cfg *Config) {
	if !math.IsNaN(*flagThreshold) {
		cfg.Simplify.Threshold = *flagThreshold
	}
	if *flagAggressive {
		cfg.Simplify.Aggressive = true
	}
	if *flagVerbose && cfg.Logging.Verbose < 1 {
		cfg.Logging.Verbose = 1
	}
	if *flagVeryVerbose {
		cfg.Logging.Verbose = 2
	}
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagLogFile != "" {
		cfg.Logging.LogFile = *flagLogFile
	}
	if *flagDumpJSON {
		cfg.Output.DumpJSON = true
	}
	if *flagWorkers >= 0 {
		cfg.Simplify.Workers = *flagWorkers
	}
}
