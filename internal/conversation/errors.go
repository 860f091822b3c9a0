package conversation

import "errors"

// ErrSessionClosed — сессия в терминальной фазе и новые реплики не принимает.
var ErrSessionClosed = errors.New("session is closed")
