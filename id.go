package depth

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a UUIDv7 session identifier. Time-sortable, so archived
// reports list in creation order without a separate sequence.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NowUnix returns the current time as Unix seconds, the archive's timestamp
// format.
func NowUnix() int64 {
	return time.Now().Unix()
}
