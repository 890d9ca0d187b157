package service

import "sync"

// codeLocks hands out one mutex per share code. Entries are reference
// counted and removed once no goroutine holds or waits on them.
type codeLocks struct {
	mu    sync.Mutex
	locks map[string]*codeLock
}

type codeLock struct {
	mu   sync.Mutex
	refs int
}

func newCodeLocks() *codeLocks {
	return &codeLocks{locks: make(map[string]*codeLock)}
}

// Lock blocks until the caller owns code and returns the matching unlock.
func (c *codeLocks) Lock(code string) func() {
	c.mu.Lock()
	l, ok := c.locks[code]
	if !ok {
		l = &codeLock{}
		c.locks[code] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, code)
		}
		c.mu.Unlock()
	}
}

func (c *codeLocks) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}
