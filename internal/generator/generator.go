package generator

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

// Generator is an interface that defines a method to generate a new value of type T.
// This can be used to generate unique identifiers, lazily iterate, etc.
type Generator[T any] interface {
	Next() (T, error)
}

// UUIDV4Generator is a generator that produces UUIDv4 strings.
// It implements the Generator interface.
type UUIDV4Generator struct{}

func (g *UUIDV4Generator) Next() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

var _ Generator[string] = &UUIDV4Generator{}

const (
	// EventIDAlphabet is the set of characters event IDs are drawn from.
	EventIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	EventIDLength   = 8
)

// EventIDGenerator produces short, human-typeable event IDs.
// Uniqueness is not guaranteed; callers check for collisions.
type EventIDGenerator struct{}

func (g *EventIDGenerator) Next() (string, error) {
	alphabetSize := big.NewInt(int64(len(EventIDAlphabet)))
	id := make([]byte, EventIDLength)
	for i := range id {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		id[i] = EventIDAlphabet[n.Int64()]
	}
	return string(id), nil
}

var _ Generator[string] = &EventIDGenerator{}
