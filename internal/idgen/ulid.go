package idgen

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ULID выдаёт монотонные ULID: в пределах одной миллисекунды id строго растут.
type ULID struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

func NewULID() *ULID {
	return &ULID{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Next возвращает новый id и момент времени, зашитый в него (точность — мс).
func (g *ULID) Next() (string, time.Time, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now().UTC().Truncate(time.Millisecond)
	id, err := ulid.New(ulid.Timestamp(ts), g.entropy)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate ulid: %w", err)
	}
	return id.String(), ts, nil
}

// Valid проверяет, что строка похожа на ULID.
func Valid(id string) bool {
	if len(id) != ulid.EncodedSize {
		return false
	}
	_, err := ulid.ParseStrict(id)
	return err == nil
}
