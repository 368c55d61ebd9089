package main

import (
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/discovery"
	twist "twist_controller"
)

func main() {
	// ModularMain can take multiple APIModel arguments, if your module implements multiple models.
	module.ModularMain(
		resource.APIModel{API: arm.API, Model: twist.TwistArmModel},
		resource.APIModel{API: sensor.API, Model: twist.DiagnosticsSensorModel},
		resource.APIModel{API: discovery.API, Model: twist.TwistDiscoveryModel},
	)
}
