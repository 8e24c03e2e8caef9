package batchworker

import (
	"time"

	"github.com/google/uuid"
)

// NewInstanceID returns a fresh, process-unique identity string used to
// distinguish replicas competing for the same worker lease. It retries on
// generation error with a short backoff and panics only if every attempt
// fails, which should never happen under normal conditions.
func NewInstanceID() string {
	var err error
	for i := 0; i < 10; i++ {
		var id uuid.UUID
		id, err = uuid.NewRandom()
		if err == nil {
			return id.String()
		}
		time.Sleep(time.Millisecond)
	}
	panic(err)
}
