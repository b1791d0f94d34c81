package swiss_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mdebug.dev/ccc/internal/swiss"
)

func TestMap(t *testing.T) {
	t.Parallel()

	m := swiss.New[string, int](0)
	assert.Equal(t, 0, m.Len())

	m.Insert("Vec3", 1)
	m.Insert("Vec3", 2) // overwrite
	m.Insert("Quat", 3)

	v, ok := m.Get("Vec3")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = m.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"Vec3", "Quat"}, m.Keys())

	var got []string
	m.Iter(func(k string, v int) bool {
		got = append(got, k)
		return true
	})
	assert.Equal(t, []string{"Vec3", "Quat"}, got)
}

func TestMapGetOrInsert(t *testing.T) {
	t.Parallel()

	m := swiss.New[uint64, []int](0)
	v, inserted := m.GetOrInsert(42, func() []int { return nil })
	assert.True(t, inserted)
	assert.Nil(t, v)

	v2, inserted2 := m.GetOrInsert(42, func() []int { return []int{9} })
	assert.False(t, inserted2)
	assert.Nil(t, v2)
}
