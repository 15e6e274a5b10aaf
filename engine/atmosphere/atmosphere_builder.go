package atmosphere

// ControllerBuilderOption is a functional option for configuring a Controller.
type ControllerBuilderOption func(*controller)

// WithParameters seeds the controller with a parameter set instead of the defaults.
// Invalid parameter sets are ignored.
//
// Parameters:
//   - p: the initial parameters
//
// Returns:
//   - ControllerBuilderOption: the option
func WithParameters(p Parameters) ControllerBuilderOption {
	return func(c *controller) {
		if validate(p) == nil {
			c.params = p
		}
	}
}

// WithPostProcessSettings seeds the controller's composite settings.
func WithPostProcessSettings(s PostProcessSettings) ControllerBuilderOption {
	return func(c *controller) {
		c.post = s
	}
}

// WithSunAngles points the sun at construction time.
func WithSunAngles(altitude, azimuth float32) ControllerBuilderOption {
	return func(c *controller) {
		c.params.SunPosition = SunDirection(altitude, azimuth)
	}
}

// WithEyeHeight places the observer at construction time.
func WithEyeHeight(height float32) ControllerBuilderOption {
	return func(c *controller) {
		c.params.EyePosition[1] = height
	}
}
