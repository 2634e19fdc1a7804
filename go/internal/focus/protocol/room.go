package protocol

import "strings"

// NormalizeRoomID maps room names to their canonical uppercase form so
// "deep-work" and "DEEP-WORK " address the same room
func NormalizeRoomID(roomID string) string {
	return strings.ToUpper(strings.TrimSpace(roomID))
}
