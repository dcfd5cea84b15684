package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nickchat/models"
)

func setupJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := New(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func message(id, from, to, text string, ts time.Time) models.DeliveryMessage {
	return models.DeliveryMessage{ID: id, From: from, To: to, Text: text, Timestamp: ts}
}

func TestRecordAndCounts(t *testing.T) {
	j := setupJournal(t)
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, j.Record(message("1", "alice", "bob", "hi", ts), StatusDelivered))
	require.NoError(t, j.Record(message("2", "alice", "carol", "hey", ts), StatusQueued))
	require.NoError(t, j.Record(message("3", "bob", "carol", "yo", ts), StatusQueued))

	counts, err := j.Counts()
	require.NoError(t, err)
	assert.Equal(t, Counts{Delivered: 1, Queued: 2}, counts)
}

func TestMarkUpdatesQueued(t *testing.T) {
	j := setupJournal(t)
	ts := time.Now().UTC()
	m1 := message("1", "alice", "carol", "one", ts)
	m2 := message("2", "bob", "carol", "two", ts)

	require.NoError(t, j.Record(m1, StatusQueued))
	require.NoError(t, j.Record(m2, StatusQueued))
	require.NoError(t, j.Mark([]models.DeliveryMessage{m1, m2}, StatusDelivered))

	status, err := j.Status("1")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, status)

	counts, err := j.Counts()
	require.NoError(t, err)
	assert.Equal(t, Counts{Delivered: 2}, counts)
}

func TestLateRecordKeepsFinalStatus(t *testing.T) {
	j := setupJournal(t)
	m := message("1", "alice", "carol", "raced", time.Now().UTC())

	// the drain was journaled before the send
	require.NoError(t, j.Mark([]models.DeliveryMessage{m}, StatusDelivered))
	require.NoError(t, j.Record(m, StatusQueued))

	status, err := j.Status("1")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, status)
}

func TestMarkEmpty(t *testing.T) {
	j := setupJournal(t)
	assert.NoError(t, j.Mark(nil, StatusDiscarded))
}

func TestStatusUnknown(t *testing.T) {
	j := setupJournal(t)
	_, err := j.Status("missing")
	assert.ErrorIs(t, err, ErrNoRows)
}

func TestHistory(t *testing.T) {
	j := setupJournal(t)
	t1 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 1, 1, 12, 5, 0, 0, time.UTC)

	require.NoError(t, j.Record(message("b", "bob", "carol", "second", t2), StatusQueued))
	require.NoError(t, j.Record(message("a", "alice", "carol", "first", t1), StatusDelivered))
	require.NoError(t, j.Record(message("c", "carol", "alice", "other", t1), StatusDelivered))

	entries, err := j.History("carol", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Text)
	assert.Equal(t, StatusDelivered, entries[0].Status)
	assert.True(t, t1.Equal(entries[0].Timestamp))
	assert.Equal(t, "second", entries[1].Text)
	assert.Equal(t, StatusQueued, entries[1].Status)

	entries, err = j.History("carol", 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := New(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(message("1", "a", "b", "x", time.Now().UTC()), StatusQueued))
	require.NoError(t, j.Close())

	// reopening an existing file must not fail on schema creation
	j, err = New(path)
	require.NoError(t, err)
	defer j.Close()
	counts, err := j.Counts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Queued)
}
