package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceGenerator(t *testing.T) {
	g := NewSequenceGenerator("case")
	assert.Equal(t, "case-1", g.Generate())
	assert.Equal(t, "case-2", g.Generate())
	assert.Equal(t, int64(2), g.Current())

	g.Reset()
	assert.Equal(t, "case-1", g.Generate())
}

func TestSequenceGenerator_DefaultPrefix(t *testing.T) {
	g := NewSequenceGenerator("")
	assert.Equal(t, "resolution-1", g.Generate())
}

func TestSequenceGenerator_Concurrent(t *testing.T) {
	g := NewSequenceGenerator("c")

	var wg sync.WaitGroup
	seen := sync.Map{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.Generate()
			_, dup := seen.LoadOrStore(id, true)
			assert.False(t, dup, "duplicate id %s", id)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), g.Current())
}

func TestBookshop(t *testing.T) {
	m := Bookshop()

	books, ok := m.Entity("Books")
	assert.True(t, ok)
	_, ok = books.Element("author_ID")
	assert.True(t, ok)

	// fresh entities per call
	other, _ := Bookshop().Entity("Books")
	assert.NotSame(t, books, other)
}
