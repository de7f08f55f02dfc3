package reinforcement

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

const testConfig = `
kind: policyIteration
def:
  hyperParams:
    - key: gamma
      val: 0.95
    - key: maxOuterIterations
      val: 50
    - key: innerTolerance
      val: 1.0e-8
    - key: workers
      val: 4
  algorithm:
    warmStart: "false"
    strict: "true"
  trainingDeadline:
    duration: 2s
`

func writeConfig(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfig(t *testing.T) {
	Convey("When loading a yaml config", t, func() {
		trainingConfig, err := FromYaml(writeConfig(t, testConfig))
		So(err, ShouldBeNil)

		Convey("Hyper parameters override the defaults", func() {
			cfg, err := trainingConfig.SolverConfig()
			So(err, ShouldBeNil)
			So(cfg.DiscountRate, ShouldEqual, 0.95)
			So(cfg.MaxOuterIterations, ShouldEqual, 50)
			So(cfg.InnerTolerance, ShouldEqual, 1e-8)
			So(cfg.Workers, ShouldEqual, 4)
			So(cfg.MaxInnerIterations, ShouldEqual, DefaultConfig().MaxInnerIterations)
		})

		Convey("Algorithm switches are parsed", func() {
			cfg, err := trainingConfig.SolverConfig()
			So(err, ShouldBeNil)
			So(cfg.WarmStart, ShouldBeFalse)
			So(cfg.Strict, ShouldBeTrue)
			So(cfg.Verbose, ShouldBeFalse)
		})

		Convey("The training deadline bounds the context", func() {
			ctx, cancel, err := trainingConfig.WithTrainingDeadline(context.Background())
			So(err, ShouldBeNil)
			defer cancel()
			deadline, ok := ctx.Deadline()
			So(ok, ShouldBeTrue)
			So(time.Until(deadline), ShouldBeLessThanOrEqualTo, 2*time.Second)
		})
	})

	Convey("When the config is unusable", t, func() {
		Convey("Missing files are an error", func() {
			_, err := FromYaml(filepath.Join(t.TempDir(), "missing.yaml"))
			So(err, ShouldNotBeNil)
		})

		Convey("Out of range parameters are rejected", func() {
			trainingConfig := &TrainingConfig{
				HyperParams: []HyperParameter{{Key: "gamma", Val: 1.5}},
			}
			_, err := trainingConfig.SolverConfig()
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("Fractional counts are rejected", func() {
			for _, key := range []string{"workers", "maxOuterIterations", "maxInnerIterations"} {
				trainingConfig := &TrainingConfig{
					HyperParams: []HyperParameter{{Key: key, Val: 1.5}},
				}
				_, err := trainingConfig.SolverConfig()
				So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
			}
		})

		Convey("Malformed switches are rejected", func() {
			trainingConfig := &TrainingConfig{
				Algorithm: map[string]string{"strict": "sometimes"},
			}
			_, err := trainingConfig.SolverConfig()
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("Malformed deadlines are rejected", func() {
			trainingConfig := &TrainingConfig{
				TrainingDeadline: map[string]string{"duration": "soon"},
			}
			_, _, err := trainingConfig.WithTrainingDeadline(context.Background())
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		})
	})

	Convey("Without a deadline the context is only cancellable", t, func() {
		ctx, cancel, err := (&TrainingConfig{}).WithTrainingDeadline(context.Background())
		So(err, ShouldBeNil)
		_, ok := ctx.Deadline()
		So(ok, ShouldBeFalse)
		cancel()
		So(ctx.Err(), ShouldEqual, context.Canceled)
	})

	Convey("The default config is valid", t, func() {
		cfg := DefaultConfig()
		So(cfg.Validate(), ShouldBeNil)
		cfg.Workers = 0
		So(errors.Is(cfg.Validate(), ErrInvalidConfig), ShouldBeTrue)
	})
}
