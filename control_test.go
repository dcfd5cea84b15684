package main

import (
	"context"
	"io"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nickchat/directory"
	"nickchat/journal"
	"nickchat/models"
	"nickchat/server"
)

func startControl(t *testing.T, j *journal.Journal) (string, *directory.Directory, <-chan struct{}) {
	t.Helper()

	dir := directory.New()
	srv := server.New(dir, j, &server.ServerConfig{})

	path := filepath.Join(t.TempDir(), "ctl.sock")
	ctx, cancel := context.WithCancel(context.Background())
	shutdown := make(chan struct{})
	var once sync.Once

	served := make(chan error, 1)
	go func() {
		served <- serveControl(ctx, path, srv, func() {
			once.Do(func() { close(shutdown) })
		})
	}()
	t.Cleanup(func() {
		cancel()
		<-served
	})

	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", path)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 5*time.Second, 10*time.Millisecond)

	return path, dir, shutdown
}

func control(t *testing.T, path, line string) string {
	t.Helper()
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(5 * time.Second))
	_, err = conn.Write([]byte(line + "\n"))
	require.NoError(t, err)

	out, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(out)
}

func TestControlStats(t *testing.T) {
	j, err := journal.New(journal.MemoryPath)
	require.NoError(t, err)
	defer j.Close()

	path, dir, _ := startControl(t, j)
	require.NoError(t, dir.Register("alice", "Alice"))
	require.NoError(t, dir.Register("bob", "Bob"))

	assert.Equal(t,
		"OK|users=2,online=0,queued=0,connections=0,journal_delivered=0,journal_queued=0,journal_discarded=0\n",
		control(t, path, "stats"))
}

func TestControlStatsWithoutJournal(t *testing.T) {
	path, _, _ := startControl(t, nil)

	assert.Equal(t, "OK|users=0,online=0,queued=0,connections=0\n", control(t, path, "stats"))
	assert.Equal(t, "ERROR|INTERNAL\n", control(t, path, "history|alice"))
}

func TestControlHistory(t *testing.T) {
	j, err := journal.New(journal.MemoryPath)
	require.NoError(t, err)
	defer j.Close()

	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.Record(models.DeliveryMessage{
		ID: "m1", From: "alice", To: "bob", Text: "hi, bob", Timestamp: ts,
	}, journal.StatusQueued))

	path, _, _ := startControl(t, j)

	lines := strings.Split(strings.TrimSuffix(control(t, path, "history|bob"), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "OK|1", lines[0])
	assert.Equal(t, `MSG|m1|alice|hi\, bob|1704110400|queued`, lines[1])

	assert.Equal(t, "OK|0\n", control(t, path, "history|carol|5"))
	assert.Equal(t, "ERROR|BAD_FORMAT\n", control(t, path, "history"))
	assert.Equal(t, "ERROR|BAD_FORMAT\n", control(t, path, "history|bob|zero"))
}

func TestControlShutdown(t *testing.T) {
	path, _, shutdown := startControl(t, nil)

	assert.Equal(t, "OK|Shutting down\n", control(t, path, "shutdown"))
	select {
	case <-shutdown:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown was not requested")
	}
}

func TestControlUnknownCommand(t *testing.T) {
	path, _, _ := startControl(t, nil)

	assert.Equal(t, "ERROR|UNKNOWN_COMMAND\n", control(t, path, "reboot"))
}
