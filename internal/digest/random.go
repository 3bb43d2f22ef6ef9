package digest

import (
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// defaultRandomBytes backs Params.RandomBytes when the caller doesn't
// inject one. go-uuid's GenerateRandomBytes reads from crypto/rand
// under the hood; it's reused here rather than hand-rolling the same
// call.
func defaultRandomBytes(n int) ([]byte, error) {
	b, err := uuid.GenerateRandomBytes(n)
	if err != nil {
		return nil, fmt.Errorf("digest: uuid.GenerateRandomBytes: %w", err)
	}
	return b, nil
}
