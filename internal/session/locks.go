package session

import (
	"sync"
)

// ConversationLocks provides a per-conversation mutex. Launch and cancel for
// the same conversation hold it for their whole duration, so a concurrent
// launch can never install a second process for one id.
type ConversationLocks struct {
	locks sync.Map // conversationID -> *sync.Mutex
}

// NewConversationLocks creates a new lock map
func NewConversationLocks() *ConversationLocks {
	return &ConversationLocks{}
}

// getOrCreateLock returns the lock for a conversation, creating one if needed
func (m *ConversationLocks) getOrCreateLock(conversationID string) *sync.Mutex {
	lock, _ := m.locks.LoadOrStore(conversationID, &sync.Mutex{})
	mu, _ := lock.(*sync.Mutex)
	return mu
}

// Lock acquires the conversation's lock
func (m *ConversationLocks) Lock(conversationID string) {
	m.getOrCreateLock(conversationID).Lock()
}

// Unlock releases the conversation's lock
func (m *ConversationLocks) Unlock(conversationID string) {
	m.getOrCreateLock(conversationID).Unlock()
}

// TryLock acquires the lock only if it is free
func (m *ConversationLocks) TryLock(conversationID string) bool {
	return m.getOrCreateLock(conversationID).TryLock()
}
