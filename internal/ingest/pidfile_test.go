package ingest

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_WriteReadRemove(t *testing.T) {
	// Given: a pid file in a fresh data dir
	p := NewPIDFile(t.TempDir())

	// When: the current process registers itself
	require.NoError(t, p.Write())

	// Then: it reads back and is alive
	pid, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, p.Alive())

	require.NoError(t, p.Remove())
	require.NoError(t, p.Remove())
	_, err = p.Read()
	assert.ErrorIs(t, err, ErrNoPIDFile)
	assert.False(t, p.Alive())
}

func TestPIDFile_InvalidContent(t *testing.T) {
	p := NewPIDFile(t.TempDir())
	require.NoError(t, os.WriteFile(p.Path(), []byte("not-a-pid"), 0644))

	_, err := p.Read()

	assert.ErrorContains(t, err, "invalid pid")
}

func TestPIDFile_InterruptWithoutFile(t *testing.T) {
	_, err := NewPIDFile(t.TempDir()).Interrupt()

	assert.ErrorIs(t, err, ErrNoPIDFile)
}
