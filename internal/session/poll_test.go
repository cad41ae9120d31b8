package session_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaiki/uhid-keyboard/internal/session"
)

func TestWaitReportsReadable(t *testing.T) {

	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	defer pr.Close()
	defer pw.Close()

	_, err = pw.Write([]byte{'x'})
	require.NoError(t, err)

	ready, err := session.Wait(int(pr.Fd()))
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.True(t, ready[0].Readable)
	assert.False(t, ready[0].HangUp)
}

func TestWaitWakesWhenWriteEndCloses(t *testing.T) {

	// The run loop surfaces shutdown by closing the write end of a pipe
	// in the poll set; a wait already blocked on the read end must wake
	// from that close alone, with no data written.
	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	defer pr.Close()

	type result struct {
		ready []session.Readiness
		err   error
	}
	done := make(chan result, 1)
	go func() {
		ready, err := session.Wait(int(pr.Fd()))
		done <- result{ready, err}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, pw.Close())

	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.Len(t, res.ready, 1)
		assert.True(t, res.ready[0].Readable || res.ready[0].HangUp)
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not wake on closed pipe")
	}
}
