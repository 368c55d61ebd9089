package twist_controller

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/discovery"
)

var TwistDiscoveryModel = resource.NewModel("devrel", "twist-controller", "discovery")

func init() {
	resource.RegisterService(
		discovery.API,
		TwistDiscoveryModel,
		resource.Registration[discovery.Service, *TwistDiscoveryConfig]{
			Constructor: newTwistDiscovery,
		})
}

// TwistDiscoveryConfig lists the arms to propose twist control for.
type TwistDiscoveryConfig struct {
	Arms []string `json:"arms"`
}

// Validate ensures the config is valid
func (cfg *TwistDiscoveryConfig) Validate(path string) ([]string, []string, error) {
	return cfg.Arms, nil, nil
}

// twistDiscovery proposes a twist-arm and a diagnostics sensor for every configured arm
// that exposes a kinematic model.
type twistDiscovery struct {
	resource.Named
	resource.AlwaysRebuild
	resource.TriviallyCloseable
	logger logging.Logger
	arms   map[string]arm.Arm
	order  []string
}

func newTwistDiscovery(
	ctx context.Context,
	deps resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (discovery.Service, error) {
	cfg, err := resource.NativeConfig[*TwistDiscoveryConfig](conf)
	if err != nil {
		return nil, err
	}

	arms := make(map[string]arm.Arm, len(cfg.Arms))
	for _, name := range cfg.Arms {
		a, err := arm.FromDependencies(deps, name)
		if err != nil {
			return nil, err
		}
		arms[name] = a
	}

	return &twistDiscovery{
		Named:  conf.ResourceName().AsNamed(),
		logger: logger,
		arms:   arms,
		order:  cfg.Arms,
	}, nil
}

// DiscoverResources returns component configurations for every arm with usable kinematics.
func (dis *twistDiscovery) DiscoverResources(ctx context.Context, extra map[string]any) ([]resource.Config, error) {
	dis.logger.Info("Starting twist controller discovery")

	moduleDataDir := os.Getenv("VIAM_MODULE_DATA")
	if moduleDataDir == "" {
		moduleDataDir = "/tmp"
	}

	var allConfigs []resource.Config
	for _, name := range dis.order {
		select {
		case <-ctx.Done():
			dis.logger.Info("Discovery cancelled")
			return allConfigs, ctx.Err()
		default:
		}

		kinematics, err := NewArmKinematics(ctx, dis.arms[name])
		if err != nil {
			dis.logger.Debugf("Skipping arm %s: %v", name, err)
			continue
		}

		settings := findControllerSettings(moduleDataDir, name, dis.logger)
		allConfigs = append(allConfigs, generateConfigs(name, kinematics.DoF(), settings)...)
	}

	if len(allConfigs) == 0 {
		dis.logger.Info("No arms with kinematics discovered")
	} else {
		dis.logger.Infof("Discovered %d component configurations", len(allConfigs))
	}
	return allConfigs, nil
}

// generateConfigs creates the twist-arm and diagnostics configurations for one arm.
// Arms with fewer than six joints are still proposed; the solver handles any joint count.
func generateConfigs(armName string, dof int, settings *TwistControllerConfig) []resource.Config {
	if dof < 1 {
		return nil
	}
	suffix := configNameSuffix(armName)
	twistArmName := "twist-" + suffix

	attrs := map[string]interface{}{
		"arm": armName,
	}
	if settings != nil {
		attrs["damping_method"] = settings.DampingMethod
		attrs["damping_factor"] = settings.DampingFactor
		attrs["lambda_max"] = settings.LambdaMax
		attrs["w_threshold"] = settings.WThreshold
		attrs["eps_damping"] = settings.EpsDamping
		attrs["eps_truncation"] = settings.EpsTruncation
		attrs["self_motion_aggregation"] = settings.SelfMotionAggregation
		attrs["control_rate_hz"] = settings.ControlRateHz
		attrs["failure_policy"] = settings.FailurePolicy
	}

	return []resource.Config{
		{
			Name:       twistArmName,
			API:        arm.API,
			Model:      TwistArmModel,
			Attributes: attrs,
		},
		{
			Name:  "twist-diagnostics-" + suffix,
			API:   sensor.API,
			Model: DiagnosticsSensorModel,
			Attributes: map[string]interface{}{
				"twist_arm": twistArmName,
			},
		},
	}
}

// configNameSuffix makes a resource name usable as part of another name:
// "my arm" -> "my-arm", "remote:arm" -> "remote-arm".
func configNameSuffix(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
}

// findControllerSettings loads <arm>_twist.json from moduleDataDir when present.
func findControllerSettings(moduleDataDir, armName string, logger logging.Logger) *TwistControllerConfig {
	path := filepath.Join(moduleDataDir, configNameSuffix(armName)+"_twist.json")
	if _, err := os.Stat(path); err != nil {
		logger.Debug("No controller settings file found")
		return nil
	}
	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		logger.Warnf("Ignoring controller settings %s: %v", filepath.Base(path), err)
		return nil
	}
	logger.Debugf("Found controller settings file: %s", filepath.Base(path))
	return cfg
}
