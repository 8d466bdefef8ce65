package breaker

import "errors"

// ErrOpen is returned by Do when the circuit is open and the call was not
// attempted. Callers should treat it as a transient failure and retry later.
var ErrOpen = errors.New("breaker: circuit is open")
