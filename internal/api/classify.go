package api

import (
	"errors"
	"time"
)

// Toast lifetimes
const (
	ToastDuration        = 4 * time.Second
	NetworkToastDuration = 8 * time.Second
)

// ActionKind is what the UI should do in response to a failure
type ActionKind int

const (
	// ActionNone means there was no error
	ActionNone ActionKind = iota
	// ActionToast shows a notice and changes nothing else
	ActionToast
	// ActionSignOut forces re-authentication
	ActionSignOut
	// ActionRedirectHome leaves the current conversation with a notice
	ActionRedirectHome
)

func (k ActionKind) String() string {
	switch k {
	case ActionNone:
		return "none"
	case ActionToast:
		return "toast"
	case ActionSignOut:
		return "sign_out"
	case ActionRedirectHome:
		return "redirect_home"
	default:
		return "unknown"
	}
}

// Action is the classified, user-facing reaction to an error
type Action struct {
	Kind     ActionKind
	Toast    string
	Duration time.Duration
	// Unreachable is set when the server could not be contacted at all
	Unreachable bool
}

// Classify maps an error from a Backend call to a user-facing action
func Classify(err error) Action {
	if err == nil {
		return Action{Kind: ActionNone}
	}
	if errors.Is(err, ErrUnauthenticated) {
		return Action{Kind: ActionSignOut}
	}

	if apiErr, ok := AsAPIError(err); ok {
		switch apiErr.Code {
		case CodeInvalidToken:
			return Action{Kind: ActionSignOut}
		case CodeForbidden:
			return Action{
				Kind:     ActionRedirectHome,
				Toast:    "You don't have access to this conversation",
				Duration: ToastDuration,
			}
		case CodeRateLimited:
			return Action{Kind: ActionToast, Toast: "Please wait a moment", Duration: ToastDuration}
		default:
			msg := apiErr.Message
			if msg == "" {
				msg = "Something went wrong"
			}
			return Action{Kind: ActionToast, Toast: msg, Duration: ToastDuration}
		}
	}

	if errors.Is(err, ErrTimeout) {
		return Action{
			Kind:     ActionToast,
			Toast:    "The server took too long to respond. Please try again.",
			Duration: ToastDuration,
		}
	}

	if IsNetwork(err) {
		return Action{
			Kind:        ActionToast,
			Toast:       "Cannot reach the API server. Start the backend (chatdesk-server) or set CHATDESK_API_URL to your API base URL (e.g. http://localhost:8000).",
			Duration:    NetworkToastDuration,
			Unreachable: true,
		}
	}

	msg := err.Error()
	if msg == "" {
		msg = "Something went wrong"
	}
	return Action{Kind: ActionToast, Toast: msg, Duration: ToastDuration}
}
