package signaling

import (
	"crypto/rand"
	"log/slog"
	"math/big"

	"github.com/BioHazard786/warpcall/internal/protocol"
)

var alphabetSize = big.NewInt(int64(len(protocol.RoomIDAlphabet)))

// newRoomID draws protocol.RoomIDLength characters from the room id
// alphabet. Uniqueness against live rooms is the caller's job.
func newRoomID() protocol.RoomID {
	b := make([]byte, protocol.RoomIDLength)
	for i := range b {
		b[i] = protocol.RoomIDAlphabet[randomIndex()]
	}
	return string(b)
}

// randomIndex returns a cryptographically secure index into the alphabet.
func randomIndex() int64 {
	n, err := rand.Int(rand.Reader, alphabetSize)
	if err != nil {
		slog.Error("failed to generate random index", "err", err)
		panic(err)
	}
	return n.Int64()
}
