// ABOUTME: Error taxonomy for phone web configurator sessions
// ABOUTME: Distinguishes the stale-session case from other login failures
package phone

import (
	"errors"
	"fmt"
)

// ErrSessionRunning is reported when the base station refuses the login
// because another configuration session is still open. The stale session
// has to be logged out (or the base restarted) before the tool can get in.
var ErrSessionRunning = errors.New("another configuration session is open on the phone; log out from the other browser or restart the base station")

// LoginError is any other failed login. Code carries the numeric error the
// login page reported, or -1 when the page reported nothing usable.
type LoginError struct {
	Code int
}

func (e *LoginError) Error() string {
	if e.Code < 0 {
		return "login failed: response carried no error code and no logout link"
	}
	return fmt.Sprintf("login failed: phone reported error %d", e.Code)
}
