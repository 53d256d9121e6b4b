package arttests

import (
	"bytes"
	"crypto/rand"
	"errors"
	mrand "math/rand"

	"github.com/sirgallo/art"
)

const NumWriterGoroutines = 10
const NumReaderGoroutines = 100
const InputSize = 100000
const WriteChunkSize = InputSize / NumWriterGoroutines
const ReadChunkSize = InputSize / NumReaderGoroutines

type KeyVal struct {
	Key []byte
	TID art.TID
}

func GenerateRandomBytes(length int) ([]byte, error) {
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, err
	}

	for i := 0; i < length; i++ {
		randomBytes[i] = 'a' + (randomBytes[i] % 26)
	}

	return randomBytes, nil
}

func TwoRandomDistinctValues(min, max int) (int, int, error) {
	if min >= max {
		return 0, 0, errors.New("min must be less than max")
	}

	first := mrand.Intn(max-min) + min
	var second int
	for {
		second = mrand.Intn(max-min) + min
		if second != first {
			break
		}
	}

	return first, second, nil
}

func IsSorted(keys [][]byte) bool {
	for i := 1; i < len(keys); i++ {
		if bytes.Compare(keys[i-1], keys[i]) > 0 {
			return false
		}
	}

	return true
}
