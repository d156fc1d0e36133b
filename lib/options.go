package lib

import (
	"fmt"
	"time"

	"gopkg.in/guregu/null.v3"

	"github.com/liuxd6825/k6x/lib/types"
)

// Executor types.
const (
	ConstantVUsType      = "constant-vus"
	SharedIterationsType = "shared-iterations"
)

// Option defaults.
const (
	DefaultVUs             = 1
	DefaultIterations      = 1
	DefaultMaxDuration     = 10 * time.Minute
	DefaultSetupTimeout    = 60 * time.Second
	DefaultTeardownTimeout = 60 * time.Second
)

// Options are the test run options. Every field is nullable, so options from
// several sources can be layered with Apply.
type Options struct {
	// Executor picks how iterations are scheduled. When it isn't set, it is
	// derived from the other options: shared-iterations when iterations are
	// set or nothing is, constant-vus when only a duration is.
	Executor null.String `json:"executor" envconfig:"K6_EXECUTOR"`

	VUs        null.Int           `json:"vus" envconfig:"K6_VUS"`
	Duration   types.NullDuration `json:"duration" envconfig:"K6_DURATION"`
	Iterations null.Int           `json:"iterations" envconfig:"K6_ITERATIONS"`

	NoSetup         null.Bool          `json:"noSetup" envconfig:"K6_NO_SETUP"`
	SetupTimeout    types.NullDuration `json:"setupTimeout" envconfig:"K6_SETUP_TIMEOUT"`
	NoTeardown      null.Bool          `json:"noTeardown" envconfig:"K6_NO_TEARDOWN"`
	TeardownTimeout types.NullDuration `json:"teardownTimeout" envconfig:"K6_TEARDOWN_TIMEOUT"`
}

// Apply returns the result of overwriting o with every valid field of opts.
func (o Options) Apply(opts Options) Options {
	if opts.Executor.Valid {
		o.Executor = opts.Executor
	}
	if opts.VUs.Valid {
		o.VUs = opts.VUs
	}

	// Duration and iterations given in a higher tier replace both of them
	// from the lower tiers, so the shortcut executor is picked from one tier.
	if opts.Duration.Valid || opts.Iterations.Valid {
		o.Duration = types.NewNullDuration(0, false)
		o.Iterations = null.NewInt(0, false)
	}
	if opts.Duration.Valid {
		o.Duration = opts.Duration
	}
	if opts.Iterations.Valid {
		o.Iterations = opts.Iterations
	}

	if opts.NoSetup.Valid {
		o.NoSetup = opts.NoSetup
	}
	if opts.SetupTimeout.Valid {
		o.SetupTimeout = opts.SetupTimeout
	}
	if opts.NoTeardown.Valid {
		o.NoTeardown = opts.NoTeardown
	}
	if opts.TeardownTimeout.Valid {
		o.TeardownTimeout = opts.TeardownTimeout
	}
	return o
}

// ExecutorType returns the executor type the options select.
func (o Options) ExecutorType() string {
	switch {
	case o.Executor.Valid:
		return o.Executor.String
	case o.Duration.Valid && !o.Iterations.Valid:
		return ConstantVUsType
	default:
		return SharedIterationsType
	}
}

// WithDefaults fills every unset field with its default value.
func (o Options) WithDefaults() Options {
	if !o.Executor.Valid {
		o.Executor = null.StringFrom(o.ExecutorType())
	}
	if !o.VUs.Valid {
		o.VUs = null.IntFrom(DefaultVUs)
	}
	if !o.Iterations.Valid && o.Executor.String == SharedIterationsType {
		o.Iterations = null.IntFrom(DefaultIterations)
	}
	if !o.Duration.Valid && o.Executor.String == SharedIterationsType {
		o.Duration = types.NullDurationFrom(DefaultMaxDuration)
	}
	if !o.NoSetup.Valid {
		o.NoSetup = null.BoolFrom(false)
	}
	if !o.SetupTimeout.Valid {
		o.SetupTimeout = types.NullDurationFrom(DefaultSetupTimeout)
	}
	if !o.NoTeardown.Valid {
		o.NoTeardown = null.BoolFrom(false)
	}
	if !o.TeardownTimeout.Valid {
		o.TeardownTimeout = types.NullDurationFrom(DefaultTeardownTimeout)
	}
	return o
}

// Validate checks options that went through WithDefaults.
func (o Options) Validate() []error {
	var errors []error
	switch o.Executor.String {
	case ConstantVUsType:
		if !o.Duration.Valid || o.Duration.Duration <= 0 {
			errors = append(errors, fmt.Errorf("the %s executor needs a positive duration", ConstantVUsType))
		}
		if o.Iterations.Valid {
			errors = append(errors, fmt.Errorf("the %s executor doesn't support iterations", ConstantVUsType))
		}
	case SharedIterationsType:
		if o.Iterations.Int64 < o.VUs.Int64 {
			errors = append(errors, fmt.Errorf(
				"the number of iterations (%d) shouldn't be less than the number of VUs (%d)",
				o.Iterations.Int64, o.VUs.Int64,
			))
		}
		if o.Duration.Duration <= 0 {
			errors = append(errors, fmt.Errorf("the maximum duration should be positive, but is %s", o.Duration))
		}
	default:
		errors = append(errors, fmt.Errorf("unknown executor type %q", o.Executor.String))
	}
	if o.VUs.Int64 <= 0 {
		errors = append(errors, fmt.Errorf("the number of VUs should be more than 0"))
	}
	if o.SetupTimeout.Duration <= 0 {
		errors = append(errors, fmt.Errorf("the setup timeout should be positive"))
	}
	if o.TeardownTimeout.Duration <= 0 {
		errors = append(errors, fmt.Errorf("the teardown timeout should be positive"))
	}
	return errors
}
