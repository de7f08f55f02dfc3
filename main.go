/*
Policyiter solves known finite MDPs by policy iteration: full evaluation of the current
policy followed by greedy improvement, until the policy stops changing. The bundled
problems are the FrozenLake grid worlds and a line world. The solver can be watched live
in the browser, and its convergence charted or exported.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"policyiter/models"
	"policyiter/reinforcement"
	"policyiter/report"
	"policyiter/server"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// lineLength is the number of states of the --map=line world.
const lineLength = 8

var errUnknownMap = errors.New("unknown map")

func init() {
	pflag.String("config", "", "yaml config of the solver's hyper parameters; defaults are used if empty")
	pflag.String("map", "4x4", "the problem to solve: 4x4, 8x8 or line")
	pflag.Bool("slippery", false, "whether lake moves slip perpendicular to the intended direction")
	pflag.Int("workers", 0, "number of sweep workers, overriding the config if positive")
	pflag.Bool("serve", false, "serve a live view of the solver's progress")
	pflag.String("addr", "localhost:8080", "the live view's address")
	pflag.String("chart", "", "write convergence charts to this html file")
	pflag.String("export", "", "write the solution to this yaml file")
	pflag.Bool("verbose", false, "log every outer iteration")
}

// loadSettings parses the flags, which may also be set by POLICYITER_ environment variables.
func loadSettings(args []string) (*viper.Viper, error) {
	if err := pflag.CommandLine.Parse(args); err != nil {
		return nil, err
	}
	settings := viper.New()
	settings.SetEnvPrefix("policyiter")
	settings.AutomaticEnv()
	if err := settings.BindPFlags(pflag.CommandLine); err != nil {
		return nil, err
	}
	return settings, nil
}

// solverConfig returns the solver's config from the optional yaml file and the flags,
// along with the file's training config, which is nil without a file.
func solverConfig(
	settings *viper.Viper,
	logger *log.Logger,
) (cfg reinforcement.Config, trainingConfig *reinforcement.TrainingConfig, err error) {
	cfg = reinforcement.DefaultConfig()
	if path := settings.GetString("config"); path != "" {
		if trainingConfig, err = reinforcement.FromYaml(path); err != nil {
			return
		}
		if cfg, err = trainingConfig.SolverConfig(); err != nil {
			return
		}
	}

	if workers := settings.GetInt("workers"); workers > 0 {
		cfg.Workers = workers
	}
	if settings.GetBool("verbose") {
		cfg.Verbose = true
	}
	cfg.Logger = logger
	err = cfg.Validate()
	return
}

// trainingContext bounds a run by the training config's deadline, if any.
func trainingContext(
	ctx context.Context,
	trainingConfig *reinforcement.TrainingConfig,
) (context.Context, context.CancelFunc, error) {
	if trainingConfig == nil {
		trainingCtx, cancel := context.WithCancel(ctx)
		return trainingCtx, cancel, nil
	}
	return trainingConfig.WithTrainingDeadline(ctx)
}

// runServed runs solve alongside serve until both return. Either failing cancels the
// other's context, so a server that cannot listen stops the solver.
func runServed(
	ctx context.Context,
	serve func(context.Context) error,
	solve func(context.Context) error,
) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return serve(groupCtx)
	})
	group.Go(func() error {
		return solve(groupCtx)
	})
	return group.Wait()
}

// selectModel builds the chosen problem. The grid is nil for problems without a map.
func selectModel(name string, slippery bool) (models.Model, *models.GridWorld, error) {
	switch name {
	case "4x4":
		grid, err := models.Convert(models.Lake4x4, slippery)
		return grid, grid, err
	case "8x8":
		grid, err := models.Convert(models.Lake8x8, slippery)
		return grid, grid, err
	case "line":
		world, err := models.LineWorld(lineLength)
		return world, nil, err
	}
	return nil, nil, fmt.Errorf("%w %q: expected 4x4, 8x8 or line", errUnknownMap, name)
}

func runApp(args []string) (err error) {
	logger := log.New(os.Stderr, "", log.LstdFlags)

	settings, err := loadSettings(args)
	if err != nil {
		return
	}

	appCtx, appCancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer appCancel()

	cfg, trainingConfig, err := solverConfig(settings, logger)
	if err != nil {
		return
	}

	model, grid, err := selectModel(settings.GetString("map"), settings.GetBool("slippery"))
	if err != nil {
		return
	}
	if grid != nil {
		grid.ShowGrid(os.Stdout)
	}

	if !settings.GetBool("serve") {
		trainingCtx, trainingCancel, ctxErr := trainingContext(appCtx, trainingConfig)
		if ctxErr != nil {
			return ctxErr
		}
		defer trainingCancel()

		var res *reinforcement.Result
		if res, err = reinforcement.Solve(trainingCtx, model, cfg); err != nil {
			return
		}
		return writeResults(os.Stdout, settings, grid, res)
	}

	if grid == nil {
		return fmt.Errorf("%w: the live view requires a lake map", errUnknownMap)
	}
	var srv *server.Server
	if srv, err = server.NewServer(appCtx, settings.GetString("addr"), grid, logger); err != nil {
		return
	}
	var pi *reinforcement.PolicyIteration
	if pi, err = reinforcement.NewPolicyIteration(model, cfg, srv.Publish); err != nil {
		return
	}

	// The view keeps serving the final frame after solving, until interrupted.
	return runServed(appCtx, srv.Serve, func(ctx context.Context) error {
		trainingCtx, trainingCancel, err := trainingContext(ctx, trainingConfig)
		if err != nil {
			return err
		}
		defer trainingCancel()

		res, err := pi.Run(trainingCtx)
		if err != nil {
			return err
		}
		return writeResults(os.Stdout, settings, grid, res)
	})
}

// writeResults prints the solution, and writes the chart and export files if requested.
func writeResults(
	w io.Writer,
	settings *viper.Viper,
	grid *models.GridWorld,
	res *reinforcement.Result,
) error {
	fmt.Fprintf(w, "Policy iteration %s after %d iterations\n", res.Status, res.Iterations)
	if grid != nil {
		grid.ShowValues(w, res.Values)
		grid.ShowPolicy(w, res.Policy)
	} else {
		fmt.Fprintf(w, "State values:\n %.3f\n", res.Values)
		fmt.Fprintf(w, "Policy:\n%v\n", mat.Formatted(res.Policy, mat.Squeeze()))
	}

	if path := settings.GetString("chart"); path != "" {
		if err := writeFile(path, func(f io.Writer) error {
			return report.WriteChart(f, "Policy iteration on "+settings.GetString("map"), res)
		}); err != nil {
			return err
		}
	}
	if path := settings.GetString("export"); path != "" {
		if err := writeFile(path, func(f io.Writer) error {
			return report.WriteYaml(f, res)
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	if err = write(f); err != nil {
		err = fmt.Errorf("%s: %w", path, err)
	}
	return
}

func main() {
	if err := runApp(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
