package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/astrokit/orbitfit/internal/config"
	"github.com/astrokit/orbitfit/internal/fit"
	"github.com/astrokit/orbitfit/internal/mcmc"
	"github.com/astrokit/orbitfit/pkg/constants"
	"github.com/astrokit/orbitfit/pkg/datafile"
	"github.com/astrokit/orbitfit/pkg/derived"
	"github.com/astrokit/orbitfit/pkg/observations"
	"github.com/astrokit/orbitfit/pkg/orbit"
	"github.com/astrokit/orbitfit/pkg/output"
	"github.com/astrokit/orbitfit/pkg/params"
	"github.com/astrokit/orbitfit/pkg/residuals"
)

// initializeLogger creates a zap logger based on configuration and CLI override
func initializeLogger(loggingConfig config.LoggingConfig, logLevelOverride string) (*zap.Logger, error) {
	// Determine log level (CLI override takes precedence)
	level := loggingConfig.Level
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	if level == "" {
		level = "info"
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	format := loggingConfig.Format
	if format == "" {
		format = "console"
	}

	var zapConfig zap.Config
	switch format {
	case "console":
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zapLevel)
	case "json":
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zapLevel)
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}

	if loggingConfig.OutputFile != "" {
		if dir := filepath.Dir(loggingConfig.OutputFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory %s: %v", dir, err)
			}
		}
		if file, err := os.OpenFile(loggingConfig.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %v", loggingConfig.OutputFile, err)
		} else {
			_ = file.Close()
		}
		zapConfig.OutputPaths = []string{loggingConfig.OutputFile}
		zapConfig.ErrorOutputPaths = []string{loggingConfig.OutputFile}
	}

	return zapConfig.Build()
}

// loadDataSet reads the observation files named in the configuration.
func loadDataSet(conf *config.Configuration) (*observations.DataSet, error) {
	var rv1, rv2 []observations.RV
	var as []observations.AS
	var err error

	if conf.Data.RV1File != "" {
		if rv1, err = datafile.ReadRV(conf.Data.RV1File); err != nil {
			return nil, fmt.Errorf("primary RV data: %w", err)
		}
	}
	if conf.Data.RV2File != "" {
		if rv2, err = datafile.ReadRV(conf.Data.RV2File); err != nil {
			return nil, fmt.Errorf("secondary RV data: %w", err)
		}
	}
	if conf.Data.ASFile != "" {
		if as, err = datafile.ReadAS(conf.Data.ASFile, conf.Data.PolarAS); err != nil {
			return nil, fmt.Errorf("astrometric data: %w", err)
		}
	}
	return observations.NewDataSet(rv1, rv2, as)
}

func run(logger *zap.Logger, conf *config.Configuration, doMCMC bool, outputFormat string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	data, err := loadDataSet(conf)
	if err != nil {
		return err
	}
	mode, err := data.Mode()
	if err != nil {
		return err
	}
	guess, flags, err := conf.GuessVector()
	if err != nil {
		return err
	}

	logger.Info("data loaded",
		zap.String("mode", mode.String()),
		zap.Int("rv1", len(data.RV1())),
		zap.Int("rv2", len(data.RV2())),
		zap.Int("astrometry", len(data.AS())),
	)

	space, err := params.NewSpace(guess, flags, mode, data.HasAstrometry())
	if err != nil {
		return err
	}
	solver := orbit.Solver{
		Tolerance:     conf.Fit.KeplerTolerance,
		MaxIterations: conf.Fit.KeplerMaxIter,
	}
	model, err := residuals.NewModel(data, conf.AstrometricWeight(), solver)
	if err != nil {
		return err
	}

	engine := fit.NewEngine(logger, fit.Settings{
		MaxIterations: conf.Fit.MaxIterations,
		Tolerance:     conf.Fit.Tolerance,
	})
	result, err := engine.Fit(ctx, model, space)
	if err != nil {
		return fmt.Errorf("fit failed: %w", err)
	}

	calc := derived.NewCalculator(result.Params, mode, data.HasAstrometry())

	var sample *mcmc.Result
	if doMCMC {
		sampler := mcmc.NewEngine(logger, mcmc.Settings{
			Walkers: conf.MCMC.Walkers,
			Steps:   conf.MCMC.Steps,
			Burn:    conf.MCMC.Burn,
			Seed:    conf.MCMC.Seed,
		}, nil)
		sample, err = sampler.Sample(ctx, model, space, result.Params)
		if err != nil {
			return fmt.Errorf("sampling failed: %w", err)
		}
		if conf.Output.ChainFile != "" {
			if err := os.WriteFile(conf.Output.ChainFile, []byte(output.ChainCSV(sample)), 0644); err != nil {
				return fmt.Errorf("writing chain file: %w", err)
			}
			logger.Info("chain written", zap.String("file", conf.Output.ChainFile))
		}
	}

	switch outputFormat {
	case constants.OutputFormatCSV:
		output.CsvFormat(result)
	default:
		output.PrettyFormat(result, calc.All(), sample)
	}
	return nil
}

func main() {
	configLocation := flag.String("config", constants.DefaultConfigFile, "path to configuration file")
	outputFormatFlag := flag.String("output-format", "", "type of output override: pretty, csv")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	doMCMC := flag.Bool("mcmc", false, "run MCMC posterior sampling after the fit")
	flag.Parse()

	conf, err := config.LoadConfiguration(*configLocation)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load configuration at %s\", \"error\": \"%v\"}\n", *configLocation, err)
		os.Exit(1)
	}

	logger, err := initializeLogger(conf.Logging, *logLevel)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	outputFormat := conf.Output.Format
	if *outputFormatFlag != "" {
		outputFormat = *outputFormatFlag
	}
	if outputFormat == "" {
		outputFormat = constants.OutputFormatPretty
	}

	if err := run(logger, conf, *doMCMC || conf.MCMC.Enabled, outputFormat); err != nil {
		logger.Error("run failed", zap.Error(err))
		os.Exit(1)
	}
}
