package assistants

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/supportagent", "assistants")

const (
	// DefaultName is the name of the agent used in metrics and logs
	DefaultName = "customer_support"
	// DefaultMaxTurns is the number of model calls allowed per user turn
	DefaultMaxTurns = 10
	// DefaultApology is returned when the model replies with no text
	DefaultApology = "I apologize, but I couldn't generate a response."
)

// ErrMaxTurnsExceeded is returned when the model keeps requesting tools
// after the allowed number of model calls in one user turn.
// It is classified as chatmodel.ErrModelInvocation.
var ErrMaxTurnsExceeded = errors.Mark(errors.New("maximum model turns exceeded"), chatmodel.ErrModelInvocation)

// State of the session turn
type State string

const (
	// StateAwaitingUserInput is the idle state between turns
	StateAwaitingUserInput State = "AWAITING_USER_INPUT"
	// StateModelPending is set while the model is invoked
	StateModelPending State = "MODEL_PENDING"
	// StateToolsPending is set while the requested tools are invoked
	StateToolsPending State = "TOOLS_PENDING"
	// StateResponseReady is set when the model replied with text only
	StateResponseReady State = "RESPONSE_READY"
)

func (s State) String() string {
	return string(s)
}

func validationError(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), chatmodel.ErrValidation)
}
