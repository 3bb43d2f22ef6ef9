package effect

import "sync"

// CDataStore reassembles multi-chunk cdata responses, keyed by
// Transac-Id, until a chunk signals end-of-reply (EOR). It satisfies
// Reassembler.
type CDataStore struct {
	mu        sync.Mutex
	chunks    map[string][][]byte
	completed map[string][]byte
}

// NewCDataStore builds an empty store.
func NewCDataStore() *CDataStore {
	return &CDataStore{
		chunks:    make(map[string][][]byte),
		completed: make(map[string][]byte),
	}
}

// Append records a chunk for txID. When eor is true, the accumulated
// chunks are concatenated and held for Take, and the chunk entry is evicted.
func (s *CDataStore) Append(txID string, data []byte, eor bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := append(s.chunks[txID], append([]byte(nil), data...))
	if !eor {
		s.chunks[txID] = buf
		return
	}
	delete(s.chunks, txID)
	s.completed[txID] = joinChunks(buf)
}

func joinChunks(chunks [][]byte) []byte {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// Take returns and clears the reassembled payload for txID, if one
// finished reassembling since the last call.
func (s *CDataStore) Take(txID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.completed[txID]
	if ok {
		delete(s.completed, txID)
	}
	return payload, ok
}
