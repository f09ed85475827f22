package effectors

import "context"

// Actuator performs one tool's effect and returns a short spoken result.
// Only the Boundary calls actuators.
type Actuator interface {
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// ActuatorFunc adapts a function to Actuator
type ActuatorFunc func(ctx context.Context, args map[string]any) (string, error)

func (f ActuatorFunc) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return f(ctx, args)
}
