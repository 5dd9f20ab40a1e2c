package interaction

import "sync"

// CapabilityLock tracks holders of an exclusive interaction. The signal is
// called with false when the first holder acquires it and with true when the
// last holder releases it.
type CapabilityLock struct {
	mu      sync.Mutex
	holders int
	signal  func(enabled bool)
}

func NewCapabilityLock(signal func(enabled bool)) *CapabilityLock {
	return &CapabilityLock{signal: signal}
}

// Acquire takes the lock and returns its release function. Release is idempotent.
func (l *CapabilityLock) Acquire() (release func()) {
	l.mu.Lock()
	l.holders++
	if l.holders == 1 && l.signal != nil {
		l.signal(false)
	}
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.holders--
			if l.holders == 0 && l.signal != nil {
				l.signal(true)
			}
		})
	}
}

// Held reports whether anyone holds the lock.
func (l *CapabilityLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holders > 0
}
