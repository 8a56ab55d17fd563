package broker

import "errors"

// Outcome is how a delivery is settled after handling.
type Outcome int

const (
	// Ack removes the message from the queue.
	Ack Outcome = iota
	// Requeue returns the message to the queue for one more attempt.
	Requeue
	// Park rejects the message to the dead-letter exchange.
	Park
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	case Park:
		return "park"
	}
	return "unknown"
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as one that retrying cannot fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Settle decides the outcome for a handled delivery: a failure gets one
// redelivery, then the message is parked. Permanent failures are parked at once.
func Settle(err error, redelivered bool) Outcome {
	switch {
	case err == nil:
		return Ack
	case IsPermanent(err), redelivered:
		return Park
	default:
		return Requeue
	}
}
