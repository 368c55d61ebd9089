package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.viam.com/rdk/logging"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	twist "twist_controller"
)

var (
	configPath   string
	cycles       int
	twistValues  []float64
	startPose    []float64
	curveMax     float64
	curveSamples int

	rootCmd = &cobra.Command{
		Use:   "twist-cli",
		Short: "Offline tools for the twist controller",
	}

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Drive the built-in 7-DOF arm with a constant twist and log every cycle",
		RunE:  runSimulate,
	}

	dampingCurveCmd = &cobra.Command{
		Use:   "damping-curve",
		Short: "Print the configured damping factor against the smallest singular value",
		RunE:  runDampingCurve,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "controller config JSON (defaults are used when empty)")

	simulateCmd.Flags().IntVar(&cycles, "cycles", 200, "number of control cycles")
	simulateCmd.Flags().Float64SliceVar(&twistValues, "twist", []float64{0.05, 0, 0, 0, 0, 0}, "twist [vx,vy,vz,wx,wy,wz] in m/s and rad/s")
	simulateCmd.Flags().Float64SliceVar(&startPose, "start", []float64{0, 0.5, 0, -1.2, 0, 0.8, 0}, "initial joint positions in radians")

	dampingCurveCmd.Flags().Float64Var(&curveMax, "max", 0.05, "largest singular value sampled")
	dampingCurveCmd.Flags().IntVar(&curveSamples, "samples", 20, "number of samples")

	rootCmd.AddCommand(simulateCmd, dampingCurveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*twist.TwistControllerConfig, error) {
	if configPath != "" {
		return twist.LoadConfigFromFile(configPath)
	}
	cfg := &twist.TwistControllerConfig{Arm: "sim"}
	if _, _, err := cfg.Validate("default"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	logger := logging.NewLogger("twist-sim")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	target, err := twist.TwistFromSlice(twistValues)
	if err != nil {
		return err
	}

	model, err := twist.RedundantArmModel()
	if err != nil {
		return err
	}
	simArm, err := twist.NewSimulatedArm(cfg.Arm, model, startPose)
	if err != nil {
		return err
	}
	kinematics, err := twist.NewArmKinematics(ctx, simArm)
	if err != nil {
		return err
	}
	sink := twist.NewArmCommandSink(simArm)
	controller, err := twist.NewTwistController("sim", cfg, kinematics, sink, nil, logger)
	if err != nil {
		return err
	}
	defer controller.Close()

	logger.Infof("simulating %d cycles of %v with %s damping", cycles, target, cfg.DampingMethod)
	desired := target.Slice()
	for i := 0; i < cycles; i++ {
		positions, err := kinematics.JointPositions(ctx)
		if err != nil {
			return err
		}
		jacobian, err := kinematics.Jacobian(positions)
		if err != nil {
			return err
		}

		command, err := controller.Step(ctx, target)
		if command == nil {
			return err
		}
		if err != nil {
			logger.Warnf("cycle %d degraded: %v", command.Cycle, err)
		}

		var achieved mat.VecDense
		achieved.MulVec(jacobian, mat.NewVecDense(len(command.Velocities), command.Velocities))
		taskError := floats.Distance(achieved.RawVector().Data, desired, 2)

		damping := 0.0
		if d := controller.Diagnostics(); d != nil {
			damping = d.DampingFactor
		}
		logger.Infof("cycle %d: damping %.5f, task error %.6f, q_dot %.4f", command.Cycle, damping, taskError, command.Velocities)

		if err := sink.Apply(ctx, command.Velocities, controller.Period()); err != nil {
			return err
		}
	}

	status := controller.Status()
	final, err := kinematics.JointPositions(ctx)
	if err != nil {
		return err
	}
	pose, err := kinematics.EndEffectorPose(final)
	if err != nil {
		return err
	}
	logger.Infof("done: %d cycles, %d failures, end effector at %v", status.Cycles, status.Failures, pose.Point())
	return nil
}

func runDampingCurve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if curveSamples < 2 {
		return fmt.Errorf("samples must be at least 2, got %d", curveSamples)
	}
	damping, err := twist.NewDamping(cfg.DampingParams())
	if err != nil {
		return err
	}

	sigmas := make([]float64, curveSamples)
	floats.Span(sigmas, 0, curveMax)
	fmt.Printf("# %s damping\n# sigma_min\tlambda\n", damping.Method())
	for _, s := range sigmas {
		factor := damping.Factor(twist.SingularValues{Values: []float64{s}, Rows: 1, Cols: 1})
		fmt.Printf("%.6f\t%.6f\n", s, factor)
	}
	return nil
}
