package mime

import (
	"crypto/rand"
	"fmt"
	"time"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// Boundary generates a multipart boundary of the form
// "----=_Part_<epoch_ms>_<12 random base36 chars>". Callers nesting multiple
// multipart levels must generate a fresh boundary per level.
func Boundary() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = base36[int(b[i])%len(base36)]
	}
	return fmt.Sprintf("----=_Part_%d_%s", time.Now().UnixMilli(), b)
}
