package pipeline

import "fmt"

// buildError signals a failure in the Image Assembly stage: missing copy
// source, unresolved dependency, conflicting version pin.
type buildError struct {
	reason string
	cause  error
}

func (e buildError) Error() string {
	if e.cause != nil {
		return "build error: " + e.reason + ": " + e.cause.Error()
	}
	return "build error: " + e.reason
}

func (e buildError) Unwrap() error { return e.cause }

// ErrBuild constructs a buildError.
func ErrBuild(reason string, cause error) error { return buildError{reason: reason, cause: cause} }

// ErrBuildf constructs a buildError with a formatted reason and no cause.
func ErrBuildf(format string, args ...any) error {
	return buildError{reason: fmt.Sprintf(format, args...)}
}

// IsBuildError reports whether err originated in the Image Assembly stage.
func IsBuildError(err error) bool {
	_, ok := err.(buildError)
	return ok
}

// trainingError signals malformed or absent Declarative Training Data, or an
// engine-side training failure.
type trainingError struct {
	reason string
	cause  error
}

func (e trainingError) Error() string {
	if e.cause != nil {
		return "training error: " + e.reason + ": " + e.cause.Error()
	}
	return "training error: " + e.reason
}

func (e trainingError) Unwrap() error { return e.cause }

// ErrTraining constructs a trainingError.
func ErrTraining(reason string, cause error) error {
	return trainingError{reason: reason, cause: cause}
}

// ErrTrainingf constructs a trainingError with a formatted reason and no cause.
func ErrTrainingf(format string, args ...any) error {
	return trainingError{reason: fmt.Sprintf(format, args...)}
}

// IsTrainingError reports whether err originated in the Training stage.
func IsTrainingError(err error) bool {
	_, ok := err.(trainingError)
	return ok
}

// launchError signals a Service Launch failure: port already bound, or a
// required Model Artifact missing.
type launchError struct {
	reason string
	cause  error
}

func (e launchError) Error() string {
	if e.cause != nil {
		return "launch error: " + e.reason + ": " + e.cause.Error()
	}
	return "launch error: " + e.reason
}

func (e launchError) Unwrap() error { return e.cause }

// ErrLaunch constructs a launchError.
func ErrLaunch(reason string, cause error) error { return launchError{reason: reason, cause: cause} }

// IsLaunchError reports whether err originated in the Service Launch stage.
func IsLaunchError(err error) bool {
	_, ok := err.(launchError)
	return ok
}

// tooBusyError signals admission rejection for 429 mapping.
type tooBusyError struct{}

func (tooBusyError) Error() string { return "too busy: concurrent request limit reached" }

// ErrTooBusy constructs a tooBusyError.
func ErrTooBusy() error { return tooBusyError{} }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	_, ok := err.(tooBusyError)
	return ok
}

// notServingError signals that the pipeline has not reached SERVING.
type notServingError struct{ state State }

func (e notServingError) Error() string { return "service not available: pipeline is " + string(e.state) }

// ErrNotServing constructs a notServingError for state s.
func ErrNotServing(s State) error { return notServingError{state: s} }

// IsNotServing reports whether err indicates the service is not (yet) up.
func IsNotServing(err error) bool {
	_, ok := err.(notServingError)
	return ok
}
