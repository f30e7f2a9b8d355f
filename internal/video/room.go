// Package video builds join links for consultation rooms. The URL is a pure
// function of the appointment id; no provider API is involved.
package video

import (
	"fmt"

	"github.com/google/uuid"
)

type RoomBuilder struct {
	baseURL string
	prefix  string
}

func NewRoomBuilder(baseURL, prefix string) *RoomBuilder {
	return &RoomBuilder{baseURL: baseURL, prefix: prefix}
}

// JoinURL is deterministic: the same appointment id always yields the same
// room URL, independent of any stored state.
func (b *RoomBuilder) JoinURL(appointmentID uuid.UUID) string {
	return fmt.Sprintf("%s/%s-%s", b.baseURL, b.prefix, appointmentID)
}
