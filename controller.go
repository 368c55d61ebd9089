package twist_controller

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"
)

// FailurePolicy is what the control loop commands on a cycle whose solve failed numerically.
type FailurePolicy string

const (
	// FailureHold repeats the previous command.
	FailureHold FailurePolicy = "hold"
	// FailureZero commands zero joint velocity.
	FailureZero FailurePolicy = "zero"
)

// CommandSink consumes the joint velocity command of each cycle.
type CommandSink interface {
	Apply(ctx context.Context, velocities []float64, dt time.Duration) error
}

// Command is the joint velocity output of one cycle.
type Command struct {
	Velocities []float64
	// Degraded is set when the solver failed and the failure policy produced the command.
	Degraded bool
	Cycle    uint64
}

// ControllerStatus is a snapshot of the control loop for diagnostics consumers.
type ControllerStatus struct {
	Running     bool
	Target      Twist
	Cycles      uint64
	Failures    uint64
	LastError   string
	LastCommand []float64
	Degraded    bool
	Diagnostics *Diagnostics
}

// TwistController is the caller of the solver: it reads the joint state, evaluates the
// Jacobian, solves, and degrades per FailurePolicy when the solve fails numerically.
// Cycles are serialized; Step and the background loop never run concurrently.
type TwistController struct {
	name       string
	logger     logging.Logger
	solver     *GradientProjectionSolver
	kinematics KinematicsProvider
	sink       CommandSink
	policy     FailurePolicy
	period     time.Duration

	cycleMu  sync.Mutex
	lastQDot []float64

	mu      sync.RWMutex
	target  Twist
	workers *goutils.StoppableWorkers
	status  ControllerStatus
}

// NewTwistController builds the solver from cfg and sizes it to the kinematics provider.
func NewTwistController(
	name string,
	cfg *TwistControllerConfig,
	kinematics KinematicsProvider,
	sink CommandSink,
	constraints *ConstraintSet,
	logger logging.Logger,
) (*TwistController, error) {
	if kinematics == nil {
		return nil, errors.New("kinematics provider is required")
	}
	solverCfg, err := cfg.SolverConfig(kinematics.DoF())
	if err != nil {
		return nil, err
	}
	solver, err := NewGradientProjectionSolver(solverCfg, constraints, logger)
	if err != nil {
		return nil, err
	}

	return &TwistController{
		name:       name,
		logger:     logger,
		solver:     solver,
		kinematics: kinematics,
		sink:       sink,
		policy:     cfg.Policy(),
		period:     cfg.Period(),
		lastQDot:   make([]float64, kinematics.DoF()),
	}, nil
}

// Name returns the name the controller is registered under.
func (c *TwistController) Name() string {
	return c.name
}

// Solver returns the underlying solver.
func (c *TwistController) Solver() *GradientProjectionSolver {
	return c.solver
}

// Period returns the control cycle period.
func (c *TwistController) Period() time.Duration {
	return c.period
}

// Step runs one control cycle for the given twist. On a numerical failure it returns the
// degraded command together with the error; other errors return no command.
func (c *TwistController) Step(ctx context.Context, twist Twist) (*Command, error) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	positions, err := c.kinematics.JointPositions(ctx)
	if err != nil {
		c.recordError(err)
		return nil, err
	}
	jacobian, err := c.kinematics.Jacobian(positions)
	if err != nil {
		c.recordError(err)
		return nil, err
	}

	state := JointState{Positions: positions, LastVelocities: c.lastQDot}
	result, err := c.solver.Solve(jacobian, twist.Vector(), state)
	if err != nil {
		if !errors.Is(err, ErrNumericalFailure) {
			c.recordError(err)
			return nil, err
		}
		velocities := c.degradedCommand()
		c.lastQDot = velocities
		cmd := c.recordFailure(velocities, err)
		c.logger.Warnf("twist controller %s: cycle %d failed, applying %s policy: %v", c.name, cmd.Cycle, c.policy, err)
		return cmd, err
	}

	velocities := make([]float64, result.JointVelocities.Len())
	for i := range velocities {
		velocities[i] = result.JointVelocities.AtVec(i)
	}
	c.lastQDot = velocities
	return c.recordSuccess(velocities, &result.Diagnostics), nil
}

func (c *TwistController) degradedCommand() []float64 {
	velocities := make([]float64, len(c.lastQDot))
	if c.policy == FailureHold {
		copy(velocities, c.lastQDot)
	}
	return velocities
}

// SetTarget changes the twist tracked by the background loop.
func (c *TwistController) SetTarget(twist Twist) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = twist
	c.status.Target = twist
}

// Target returns the twist tracked by the background loop.
func (c *TwistController) Target() Twist {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.target
}

// Start runs Step at the configured rate in the background, sending every command to the
// sink. Calling Start on a running controller is a no-op.
func (c *TwistController) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.workers != nil {
		return
	}
	c.status.Running = true
	c.workers = goutils.NewBackgroundStoppableWorkers(c.run)
	c.logger.Infof("twist controller %s started at %v per cycle", c.name, c.period)
}

// Stop halts the background loop and resets the remembered command to zero.
func (c *TwistController) Stop() {
	c.mu.Lock()
	workers := c.workers
	c.workers = nil
	c.status.Running = false
	c.mu.Unlock()

	if workers == nil {
		return
	}
	workers.Stop()

	c.cycleMu.Lock()
	c.lastQDot = make([]float64, len(c.lastQDot))
	c.cycleMu.Unlock()
	c.logger.Infof("twist controller %s stopped", c.name)
}

// Running reports whether the background loop is active.
func (c *TwistController) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.workers != nil
}

// Close stops the background loop.
func (c *TwistController) Close() {
	c.Stop()
}

func (c *TwistController) run(ctx context.Context) {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	for {
		if !goutils.SelectContextOrWaitChan(ctx, ticker.C) {
			return
		}
		cmd, err := c.Step(ctx, c.Target())
		if cmd == nil {
			if err != nil && ctx.Err() == nil {
				c.logger.Debugf("twist controller %s: no command this cycle: %v", c.name, err)
			}
			continue
		}
		if c.sink == nil {
			continue
		}
		if err := c.sink.Apply(ctx, cmd.Velocities, c.period); err != nil && ctx.Err() == nil {
			c.logger.Warnf("twist controller %s: failed to apply command: %v", c.name, err)
		}
	}
}

// Status returns a copy of the latest loop state.
func (c *TwistController) Status() ControllerStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	status := c.status
	status.LastCommand = append([]float64(nil), c.status.LastCommand...)
	return status
}

// Diagnostics returns the intermediates of the latest successful solve, or nil before the first one.
func (c *TwistController) Diagnostics() *Diagnostics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.Diagnostics
}

// ResetCounters zeroes the cycle and failure counters.
func (c *TwistController) ResetCounters() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Cycles = 0
	c.status.Failures = 0
	c.status.LastError = ""
}

func (c *TwistController) recordSuccess(velocities []float64, diagnostics *Diagnostics) *Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Cycles++
	c.status.LastCommand = append(c.status.LastCommand[:0], velocities...)
	c.status.Degraded = false
	c.status.Diagnostics = diagnostics
	return &Command{Velocities: append([]float64(nil), velocities...), Cycle: c.status.Cycles}
}

func (c *TwistController) recordFailure(velocities []float64, err error) *Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Cycles++
	c.status.Failures++
	c.status.LastError = err.Error()
	c.status.LastCommand = append(c.status.LastCommand[:0], velocities...)
	c.status.Degraded = true
	return &Command{Velocities: append([]float64(nil), velocities...), Degraded: true, Cycle: c.status.Cycles}
}

func (c *TwistController) recordError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.LastError = err.Error()
}
