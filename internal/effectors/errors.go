package effectors

import (
	"errors"
	"fmt"
)

// ErrRefused wraps every boundary refusal. errors.Is(err, ErrRefused) marks a
// security event: the actuator was not invoked.
var ErrRefused = errors.New("refused by execution boundary")

var (
	ErrNoPermit       = fmt.Errorf("%w: no permit", ErrRefused)
	ErrPermitNotFound = fmt.Errorf("%w: permit not found", ErrRefused)
	ErrNotAllowed     = fmt.Errorf("%w: permit decision is not ALLOW", ErrRefused)
	ErrPermitExpired  = fmt.Errorf("%w: permit expired", ErrRefused)
	ErrPermitMismatch = fmt.Errorf("%w: permit does not match tool and arguments", ErrRefused)
	ErrPermitConsumed = fmt.Errorf("%w: permit already used", ErrRefused)
	ErrPermitStale    = fmt.Errorf("%w: permit predates this boundary", ErrRefused)
	ErrUnknownTool    = fmt.Errorf("%w: unknown tool", ErrRefused)
	ErrNoActuator     = fmt.Errorf("%w: no actuator registered", ErrRefused)
	ErrRateLimited    = fmt.Errorf("%w: actuator rate exceeded", ErrRefused)
)
