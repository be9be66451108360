package call

import (
	"sync"

	"github.com/warmleadnetwork/voice-call-service/internal/ai"
)

// lockRegistry hands out one mutex per call ID so webhook handlers for the
// same call serialize while unrelated calls proceed in parallel. A finished
// call's entry is retired rather than deleted outright; it is removed only
// once the last queued holder drains, so a late webhook can never mint a
// second mutex while another handler still holds the first.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*callLock
}

type callLock struct {
	mu      sync.Mutex
	holders int
	retired bool
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*callLock)}
}

// lock acquires the mutex for callID and returns its unlock function.
func (r *lockRegistry) lock(callID string) func() {
	r.mu.Lock()
	l, ok := r.locks[callID]
	if !ok {
		l = &callLock{}
		r.locks[callID] = l
	}
	l.holders++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.holders--
		if l.retired && l.holders == 0 && r.locks[callID] == l {
			delete(r.locks, callID)
		}
		r.mu.Unlock()
	}
}

// release marks a finished call's entry for removal once every holder has
// unlocked. Callers invoke it while still holding the lock themselves.
func (r *lockRegistry) release(callID string) {
	r.mu.Lock()
	if l, ok := r.locks[callID]; ok {
		l.retired = true
		if l.holders == 0 {
			delete(r.locks, callID)
		}
	}
	r.mu.Unlock()
}

// conversation is the in-flight dialogue state for one call.
type conversation struct {
	agentID string
	turns   []ai.Message
}

// conversationRegistry holds per-call dialogue context for the duration of
// the call. Turns are also persisted as transcript rows; this registry exists
// so the gather flow has the history without a read per turn.
type conversationRegistry struct {
	mu    sync.Mutex
	convs map[string]*conversation
}

func newConversationRegistry() *conversationRegistry {
	return &conversationRegistry{convs: make(map[string]*conversation)}
}

// begin registers a conversation for a call, keeping any existing turns if
// the call is already known.
func (r *conversationRegistry) begin(callID, agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.convs[callID]; ok {
		if c.agentID == "" {
			c.agentID = agentID
		}
		return
	}
	r.convs[callID] = &conversation{agentID: agentID}
}

// agentFor returns the agent bound to a call, or empty when unknown.
func (r *conversationRegistry) agentFor(callID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.convs[callID]; ok {
		return c.agentID
	}
	return ""
}

// append records one turn and returns the turn's sequence number.
func (r *conversationRegistry) append(callID, role, content string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[callID]
	if !ok {
		c = &conversation{}
		r.convs[callID] = c
	}
	c.turns = append(c.turns, ai.Message{Role: role, Content: content})
	return len(c.turns)
}

// history returns a copy of the turns so far.
func (r *conversationRegistry) history(callID string) []ai.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[callID]
	if !ok {
		return nil
	}
	turns := make([]ai.Message, len(c.turns))
	copy(turns, c.turns)
	return turns
}

// end drops the conversation state for a finished call.
func (r *conversationRegistry) end(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.convs, callID)
}
