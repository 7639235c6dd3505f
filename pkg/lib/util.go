package lib

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GroupNamePrefix starts every resource group created by this module.
const GroupNamePrefix = "memtrack_"

// NewID generates a UUID version 4 string (RFC 4122)
func NewID() string {
	return uuid.NewString()
}

// NewGroupName returns a resource group name combining a nanosecond timestamp
// with random bits, so back-to-back calls never collide without shared
// sequence state.
func NewGroupName() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s%d_%s", GroupNamePrefix, time.Now().UnixNano(), random[:12])
}
