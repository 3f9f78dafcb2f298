package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndList(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), DefaultFile))
	require.NoError(t, err)
	defer s.Close()

	empty, err := s.List("", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, svc := range []string{"a", "b", "a"} {
		r := &Record{ServiceName: svc, Slot: "production", Action: "create", PublishedAt: now.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, s.Add(r))
		assert.Equal(t, uint64(i+1), r.ID)
	}

	all, err := s.List("", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, uint64(3), all[0].ID)
	assert.True(t, all[0].PublishedAt.Equal(now.Add(2*time.Minute)))

	onlyA, err := s.List("a", 1)
	require.NoError(t, err)
	require.Len(t, onlyA, 1)
	assert.Equal(t, uint64(3), onlyA[0].ID)
}
