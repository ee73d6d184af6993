package uid

import "crypto/rand"

// RoomCodeChars has 32 symbols, no I, O, 0 or 1.
const RoomCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const RoomCodeLength = 6

// NewRoomCode returns a short shareable room code. Uniqueness is checked by
// the caller.
func NewRoomCode() string {
	b := make([]byte, RoomCodeLength)
	rand.Read(b)

	code := make([]byte, RoomCodeLength)
	for i := range code {
		code[i] = RoomCodeChars[int(b[i])%len(RoomCodeChars)]
	}
	return string(code)
}
