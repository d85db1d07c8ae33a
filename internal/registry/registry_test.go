package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindOnce(t *testing.T) {
	r := New()
	r.Add("c1")
	_, ok := r.Get("c1")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())

	require.NoError(t, r.Bind("c1", Identity{RoomCode: "ABC234", Role: RoleHost}))
	err := r.Bind("c1", Identity{RoomCode: "XYZ789", PlayerID: "p", Role: RolePlayer})
	assert.ErrorIs(t, err, ErrAlreadyBound)

	id, ok := r.Get("c1")
	require.True(t, ok)
	assert.Equal(t, Identity{RoomCode: "ABC234", Role: RoleHost}, id)

	r.Remove("c1")
	assert.Zero(t, r.Len())
	_, ok = r.Get("c1")
	assert.False(t, ok)
}

func TestConcurrentUse(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := fmt.Sprintf("c%d", i)
			r.Add(conn)
			_ = r.Bind(conn, Identity{RoomCode: "ABC234", PlayerID: conn, Role: RolePlayer})
			_, _ = r.Get(conn)
			if i%2 == 0 {
				r.Remove(conn)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 25, r.Len())
}
