package gumble

import "sync"

// BlobHashSize is the length of a Mumble blob hash (SHA-1).
const BlobHashSize = 20

// BlobKind identifies which RequestBlob field a pending fetch belongs
// to.
type BlobKind int

const (
	BlobUserComment BlobKind = iota
	BlobUserTexture
	BlobChannelDescription
)

// BlobCache is the append-only hash->bytes store for user comments,
// user textures, and channel descriptions: once a hash resolves its
// bytes never change, and a hash with an outstanding fetch is never
// requested a second time.
type BlobCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	pending map[string]bool

	// fetch sends the wire RequestBlob for hash; set by the owning
	// Session. It must not block on the server's reply -- the blob
	// resolves later when an inline comment/texture/description
	// message arrives and Set is called.
	fetch func(kind BlobKind, hash []byte) error
}

// NewBlobCache constructs a cache that calls fetch at most once per
// unresolved hash, regardless of how many goroutines call
// RequestIfMissing for it concurrently or in sequence.
func NewBlobCache(fetch func(kind BlobKind, hash []byte) error) *BlobCache {
	return &BlobCache{
		data:    make(map[string][]byte),
		pending: make(map[string]bool),
		fetch:   fetch,
	}
}

// Get returns the cached bytes for hash, if resolved.
func (c *BlobCache) Get(hash []byte) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[string(hash)]
	return b, ok
}

// Set stores bytes for hash if not already resolved. Once set, a
// hash's bytes are immutable.
func (c *BlobCache) Set(hash []byte, data []byte) {
	key := string(hash)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[key]; ok {
		return
	}
	c.data[key] = data
	delete(c.pending, key)
}

// RequestIfMissing fetches hash's bytes unless they are already cached
// or a fetch is already outstanding. A failed fetch clears
// the pending mark so a later call may retry.
func (c *BlobCache) RequestIfMissing(kind BlobKind, hash []byte) {
	key := string(hash)

	c.mu.Lock()
	if _, ok := c.data[key]; ok {
		c.mu.Unlock()
		return
	}
	if c.pending[key] {
		c.mu.Unlock()
		return
	}
	c.pending[key] = true
	c.mu.Unlock()

	if err := c.fetch(kind, hash); err != nil {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}
}
