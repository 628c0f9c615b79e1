package protocol

import "strings"

// RoomIDAlphabet is the set of characters a room id is drawn from.
const RoomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RoomIDLength is the fixed length of a room id.
const RoomIDLength = 8

// ValidRoomID reports whether s has the shape of a room id. It says nothing
// about whether the room exists.
func ValidRoomID(s string) bool {
	if len(s) != RoomIDLength {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune(RoomIDAlphabet, r) {
			return false
		}
	}
	return true
}

// NormalizeRoomID upper-cases user input so "abcd1234" finds room ABCD1234.
func NormalizeRoomID(s string) RoomID {
	return strings.ToUpper(strings.TrimSpace(s))
}
