package allocator

import "errors"

// ErrCapacityExceeded — в пуле не осталось пригодных слотов.
var ErrCapacityExceeded = errors.New("slot pool capacity exceeded")
