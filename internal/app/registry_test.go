package app

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micmove/micmove/internal/core"
	"github.com/micmove/micmove/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full || c.closed {
		return errors.New("backpressure")
	}
	buf := make(core.Frame, len(f))
	copy(buf, f)
	c.frames = append(c.frames, buf)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) sent() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Frame(nil), c.frames...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestRegistryAdmitAssignsFreshIdentity(t *testing.T) {
	reg := NewRegistry()

	a := reg.Admit(&fakeConn{}, nil)
	b := reg.Admit(&fakeConn{}, nil)

	require.NotEmpty(t, a)
	require.NotEmpty(t, b)
	assert.NotEqual(t, a, b)

	snap := reg.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, a, snap[0].ID)
	assert.Equal(t, b, snap[1].ID)
	assert.Equal(t, domain.RoleUnknown, snap[0].Role)
	assert.Equal(t, domain.PlaceholderNickname(a), snap[0].Nickname)
}

func TestRegistryRegisterUpdatesInPlace(t *testing.T) {
	reg := NewRegistry()
	id := reg.Admit(&fakeConn{}, nil)

	require.True(t, reg.Register(id, "sender", "  Big   Mic  "))

	snap := reg.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, domain.RoleSender, snap[0].Role)
	assert.Equal(t, "Big Mic", snap[0].Nickname)

	// Re-registration may change the role; bad role falls back to receiver.
	require.True(t, reg.Register(id, "moderator", ""))
	snap = reg.Snapshot()
	assert.Equal(t, domain.RoleReceiver, snap[0].Role)
	// Empty nickname keeps the previous one.
	assert.Equal(t, "Big Mic", snap[0].Nickname)
}

func TestRegistryRegisterUnknownIdentityIsNoop(t *testing.T) {
	reg := NewRegistry()
	assert.False(t, reg.Register("ghost", "sender", "nick"))
	assert.Empty(t, reg.Snapshot())
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	id := reg.Admit(&fakeConn{}, nil)

	reg.Remove(id)
	assert.Empty(t, reg.Snapshot())
	reg.Remove(id) // second remove must not panic or emit

	_, ok := reg.Lookup(id)
	assert.False(t, ok)
}

func TestRegistryRemoveCancelsSession(t *testing.T) {
	reg := NewRegistry()
	canceled := false
	id := reg.Admit(&fakeConn{}, func() { canceled = true })
	reg.Remove(id)
	assert.True(t, canceled)
}

func TestRegistryChangeHookFiresPerMutation(t *testing.T) {
	reg := NewRegistry()
	var events int
	reg.OnChange(func() { events++ })

	id := reg.Admit(&fakeConn{}, nil)
	reg.Register(id, "sender", "nick")
	reg.Remove(id)
	reg.Remove(id)             // no-op, no event
	reg.Register(id, "x", "y") // dead identity, no event

	assert.Equal(t, 3, events)
}

func TestRegistryConcurrentAdmitsAreCollisionFree(t *testing.T) {
	reg := NewRegistry()
	const n = 64

	var wg sync.WaitGroup
	ids := make(chan domain.Identity, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- reg.Admit(&fakeConn{}, nil)
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[domain.Identity]bool)
	for id := range ids {
		assert.False(t, seen[id], "identity %s assigned twice", id)
		seen[id] = true
	}
	assert.Len(t, reg.Snapshot(), n)
}

func TestRegistrySnapshotReflectsLatestState(t *testing.T) {
	reg := NewRegistry()
	a := reg.Admit(&fakeConn{}, nil)
	b := reg.Admit(&fakeConn{}, nil)
	c := reg.Admit(&fakeConn{}, nil)

	reg.Register(a, "receiver", "Bob")
	reg.Register(b, "sender", "Mic")
	reg.Remove(b)

	snap := reg.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, a, snap[0].ID)
	assert.Equal(t, "Bob", snap[0].Nickname)
	assert.Equal(t, c, snap[1].ID)
	assert.Equal(t, domain.RoleUnknown, snap[1].Role)
}
