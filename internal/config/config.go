// Package config defines the data structures related to configuration and
// includes functions for loading and validating the config file.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/astrokit/orbitfit/pkg/params"
)

// Configuration holds all configuration for orbitfit: where the observation
// files live, the parameter guesses with their free flags, and the fit,
// sampler and logging settings.
type Configuration struct {
	Data    DataConfig       `yaml:"data"`
	Guesses map[string]Guess `yaml:"guesses"`
	Fit     FitConfig        `yaml:"fit,omitempty"`
	MCMC    MCMCConfig       `yaml:"mcmc,omitempty"`
	Logging LoggingConfig    `yaml:"logging,omitempty"`
	Output  OutputConfig     `yaml:"output,omitempty"`
}

// DataConfig points at the plain-text observation files. Any file may be
// omitted; the fit mode follows from which ones are present.
type DataConfig struct {
	RV1File string `yaml:"rv1File,omitempty"` // primary RV series
	RV2File string `yaml:"rv2File,omitempty"` // secondary RV series
	ASFile  string `yaml:"asFile,omitempty"`  // astrometric series
	// PolarAS indicates the astrometric file carries separation and
	// position angle rather than east/north coordinates.
	PolarAS bool `yaml:"polarAS,omitempty"`
}

// Guess is one parameter's initial value and whether the optimizer may vary it.
type Guess struct {
	Value float64 `yaml:"value"`
	Free  bool    `yaml:"free"`
}

// FitConfig tunes the minimizer and the residual construction.
type FitConfig struct {
	// AstrometricWeight scales astrometric residuals relative to RV
	// residuals. Defaults to 1 (no reweighting).
	AstrometricWeight *float64 `yaml:"astrometricWeight,omitempty"`
	MaxIterations     int      `yaml:"maxIterations,omitempty"`
	Tolerance         float64  `yaml:"tolerance,omitempty"`
	KeplerTolerance   float64  `yaml:"keplerTolerance,omitempty"`
	KeplerMaxIter     int      `yaml:"keplerMaxIterations,omitempty"`
}

// MCMCConfig tunes the posterior sampling stage.
type MCMCConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Walkers int    `yaml:"walkers,omitempty"`
	Steps   int    `yaml:"steps,omitempty"`
	Burn    int    `yaml:"burn,omitempty"`
	Seed    uint64 `yaml:"seed,omitempty"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty"`      // debug, info, warn, error
	Format     string `yaml:"format,omitempty"`     // json, console
	OutputFile string `yaml:"outputFile,omitempty"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty"` // pretty, csv
	// ChainFile receives the MCMC chain as CSV when sampling is enabled.
	ChainFile string `yaml:"chainFile,omitempty"`
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there.
func LoadConfiguration(configPath string) (*Configuration, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()

	viper.SetConfigType("yml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}

	var configuration Configuration
	err := viper.Unmarshal(&configuration)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}

	configuration.applyDefaults()
	if err := configuration.Validate(); err != nil {
		return nil, err
	}

	return &configuration, nil
}

func (conf *Configuration) applyDefaults() {
	if conf.Fit.MaxIterations == 0 {
		conf.Fit.MaxIterations = 200
	}
	if conf.Fit.KeplerTolerance == 0 {
		conf.Fit.KeplerTolerance = 1e-12
	}
	if conf.Fit.KeplerMaxIter == 0 {
		conf.Fit.KeplerMaxIter = 50
	}
	if conf.MCMC.Walkers == 0 {
		conf.MCMC.Walkers = 100
	}
	if conf.MCMC.Steps == 0 {
		conf.MCMC.Steps = 1000
	}
}

// AstrometricWeight returns the configured weight or the default of 1.
func (conf *Configuration) AstrometricWeight() float64 {
	if conf.Fit.AstrometricWeight == nil {
		return 1
	}
	return *conf.Fit.AstrometricWeight
}

// Validate checks the configuration for inconsistencies that would only
// surface mid-fit otherwise.
func (conf *Configuration) Validate() error {
	if conf.Data.RV1File == "" && conf.Data.RV2File == "" && conf.Data.ASFile == "" {
		return fmt.Errorf("no data files configured; need at least one of rv1File, rv2File, asFile")
	}
	if w := conf.AstrometricWeight(); w < 0 {
		return fmt.Errorf("astrometricWeight %v cannot be negative", w)
	}
	if conf.MCMC.Burn < 0 {
		return fmt.Errorf("mcmc burn %d cannot be negative", conf.MCMC.Burn)
	}
	if conf.MCMC.Enabled && conf.MCMC.Burn >= conf.MCMC.Steps {
		return fmt.Errorf("mcmc burn %d must be smaller than steps %d", conf.MCMC.Burn, conf.MCMC.Steps)
	}
	for name := range conf.Guesses {
		if _, err := params.SlotByName(name); err != nil {
			return fmt.Errorf("guesses: %w", err)
		}
	}
	return nil
}

// GuessVector converts the guess map into the parameter vector and free
// flags the fit consumes. Parameters missing from the config default to zero
// and fixed.
func (conf *Configuration) GuessVector() (params.Parameters, params.FreeFlags, error) {
	var vec [params.NumSlots]float64
	var flags params.FreeFlags
	for name, g := range conf.Guesses {
		slot, err := params.SlotByName(name)
		if err != nil {
			return params.Parameters{}, flags, err
		}
		vec[slot] = g.Value
		flags[slot] = g.Free
	}
	p := params.FromVector(vec)
	if err := p.Validate(); err != nil {
		return params.Parameters{}, flags, err
	}
	return p, flags, nil
}
