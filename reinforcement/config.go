package reinforcement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds the parameters of a policy iteration run.
type Config struct {
	// DiscountRate (gamma) weighs successor values, in (0,1].
	DiscountRate float64
	// MaxOuterIterations caps the evaluate/improve rounds.
	MaxOuterIterations int
	// MaxInnerIterations caps the sweeps of each policy evaluation.
	MaxInnerIterations int
	// InnerTolerance is the sup-norm delta under which evaluation has converged.
	InnerTolerance float64
	// OuterTolerance is the elementwise closeness under which successive policies are equal.
	OuterTolerance float64
	// TieTolerance is how far below the best action-value an action may be and still tie.
	TieTolerance float64
	// WarmStart seeds each evaluation with the previous one's values instead of zeros.
	WarmStart bool
	// Workers is the number of goroutines sweeping states; 1 is fully sequential.
	Workers int
	// Strict turns non-convergence of either loop into ErrNonConvergence.
	Strict bool
	// KeepActionValues retains the last Q matrix in the Result.
	KeepActionValues bool
	// Trace records the norm of V before every evaluation sweep.
	Trace bool
	// Verbose logs every outer iteration.
	Verbose bool
	// Logger receives warnings and progress; nil means log.Default().
	Logger *log.Logger
}

// DefaultConfig returns the classic parameters: gamma 0.9, 1000 outer and inner
// iterations, an inner tolerance of 1e-6.
func DefaultConfig() Config {
	return Config{
		DiscountRate:       0.9,
		MaxOuterIterations: 1000,
		MaxInnerIterations: 1000,
		InnerTolerance:     1e-6,
		OuterTolerance:     1e-8,
		TieTolerance:       1e-12,
		WarmStart:          true,
		Workers:            1,
	}
}

// ErrInvalidConfig is returned for parameters outside their domains.
var ErrInvalidConfig error = errors.New("invalid config")

// Validate checks every parameter domain.
func (cfg *Config) Validate() error {
	switch {
	case !validDiscountRate(cfg.DiscountRate):
		return fmt.Errorf("%w: discount rate %v not in (0,1]", ErrInvalidConfig, cfg.DiscountRate)
	case cfg.MaxOuterIterations <= 0:
		return fmt.Errorf("%w: max outer iterations %d", ErrInvalidConfig, cfg.MaxOuterIterations)
	case cfg.MaxInnerIterations <= 0:
		return fmt.Errorf("%w: max inner iterations %d", ErrInvalidConfig, cfg.MaxInnerIterations)
	case !(cfg.InnerTolerance > 0):
		return fmt.Errorf("%w: inner tolerance %v", ErrInvalidConfig, cfg.InnerTolerance)
	case !(cfg.OuterTolerance > 0):
		return fmt.Errorf("%w: outer tolerance %v", ErrInvalidConfig, cfg.OuterTolerance)
	case !(cfg.TieTolerance >= 0):
		return fmt.Errorf("%w: tie tolerance %v", ErrInvalidConfig, cfg.TieTolerance)
	case cfg.Workers <= 0:
		return fmt.Errorf("%w: workers %d", ErrInvalidConfig, cfg.Workers)
	}
	return nil
}

func validDiscountRate(gamma float64) bool {
	return gamma > 0 && gamma <= 1
}

func (cfg *Config) logger() *log.Logger {
	if cfg.Logger == nil {
		return log.Default()
	}
	return cfg.Logger
}

// OuterConfig is the versioned envelope of a config file: a kind and its definition.
type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// TrainingConfig is the on-disk form of a run: hyper parameters as key/val pairs,
// boolean algorithm switches as strings, and an optional deadline.
// Viper lower-cases the map keys it reads, so fields use yaml's lower-case defaults
// and switch names are matched case-insensitively.
type TrainingConfig struct {
	// HyperParams is a key-val pair of param names and their value.
	HyperParams []HyperParameter
	// Algorithm holds the solver switches: warmStart, strict, keepActionValues, trace, verbose.
	Algorithm map[string]string
	// TrainingDeadline is a duration describing when to abandon the run.
	TrainingDeadline map[string]string
}

type HyperParameter struct {
	Key string  `yaml:"key"`
	Val float64 `yaml:"val"`
}

func (cfg *TrainingConfig) GetHyperParamOrDefault(param string, defaultVal float64) float64 {
	for _, kvp := range cfg.HyperParams {
		if kvp.Key == param {
			return kvp.Val
		}
	}
	return defaultVal
}

// getCountOrDefault is GetHyperParamOrDefault for counts, which must be whole numbers.
func (cfg *TrainingConfig) getCountOrDefault(param string, defaultVal int) (int, error) {
	val := cfg.GetHyperParamOrDefault(param, float64(defaultVal))
	if val != math.Trunc(val) || math.Abs(val) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s must be a whole number, got %v", ErrInvalidConfig, param, val)
	}
	return int(val), nil
}

func (cfg *TrainingConfig) getSwitchOrDefault(name string, defaultVal bool) (bool, error) {
	for key, val := range cfg.Algorithm {
		if !strings.EqualFold(key, name) {
			continue
		}
		on, err := strconv.ParseBool(val)
		if err != nil {
			return false, fmt.Errorf("%w: algorithm.%s: %v", ErrInvalidConfig, name, err)
		}
		return on, nil
	}
	return defaultVal, nil
}

// SolverConfig resolves the file's parameters over DefaultConfig and validates the result.
func (cfg *TrainingConfig) SolverConfig() (Config, error) {
	solver := DefaultConfig()
	solver.DiscountRate = cfg.GetHyperParamOrDefault("gamma", solver.DiscountRate)
	solver.InnerTolerance = cfg.GetHyperParamOrDefault("innerTolerance", solver.InnerTolerance)
	solver.OuterTolerance = cfg.GetHyperParamOrDefault("outerTolerance", solver.OuterTolerance)
	solver.TieTolerance = cfg.GetHyperParamOrDefault("tieTolerance", solver.TieTolerance)

	counts := []struct {
		name string
		dst  *int
	}{
		{"maxOuterIterations", &solver.MaxOuterIterations},
		{"maxInnerIterations", &solver.MaxInnerIterations},
		{"workers", &solver.Workers},
	}
	for _, count := range counts {
		n, err := cfg.getCountOrDefault(count.name, *count.dst)
		if err != nil {
			return Config{}, err
		}
		*count.dst = n
	}

	switches := []struct {
		name string
		dst  *bool
	}{
		{"warmStart", &solver.WarmStart},
		{"strict", &solver.Strict},
		{"keepActionValues", &solver.KeepActionValues},
		{"trace", &solver.Trace},
		{"verbose", &solver.Verbose},
	}
	for _, sw := range switches {
		on, err := cfg.getSwitchOrDefault(sw.name, *sw.dst)
		if err != nil {
			return Config{}, err
		}
		*sw.dst = on
	}

	if err := solver.Validate(); err != nil {
		return Config{}, err
	}
	return solver, nil
}

// WithTrainingDeadline returns a context extended by the training deadline, if one is specified.
func (cfg *TrainingConfig) WithTrainingDeadline(
	ctx context.Context,
) (context.Context, context.CancelFunc, error) {
	if val, ok := cfg.TrainingDeadline["duration"]; ok {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: trainingDeadline.duration: %v", ErrInvalidConfig, err)
		}
		innerCtx, cancel := context.WithTimeout(ctx, duration)
		return innerCtx, cancel, nil
	}
	defaultCtx, cancel := context.WithCancel(ctx)
	return defaultCtx, cancel, nil
}

// FromYaml reads the {kind, def} envelope with viper, then round-trips def through
// yaml to decode it into a TrainingConfig.
func FromYaml(path string) (*TrainingConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))
	var err error
	if err = vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	outerConfig := &OuterConfig{}
	if err = vp.Unmarshal(outerConfig); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}

	var spec []byte
	if spec, err = yaml.Marshal(outerConfig.Def); err != nil {
		return nil, err
	}

	innerConfig := &TrainingConfig{}
	if err = yaml.Unmarshal(spec, innerConfig); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	return innerConfig, nil
}
