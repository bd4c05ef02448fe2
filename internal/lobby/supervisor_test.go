// internal/lobby/supervisor_test.go
package lobby

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSupervisor(t *testing.T, onExit func(string, *GameResult)) *Supervisor {
	t.Helper()
	sup := NewSupervisor(9100, quietLog(), onExit)
	t.Cleanup(sup.Shutdown)
	return sup
}

func TestNextPortIsMonotonic(t *testing.T) {
	sup := testSupervisor(t, nil)
	assert.Equal(t, 9100, sup.NextPort())
	assert.Equal(t, 9101, sup.NextPort())
	assert.Equal(t, 9102, sup.NextPort())
}

func TestLaunchDeliversResultLine(t *testing.T) {
	results := make(chan *GameResult, 1)
	sup := testSupervisor(t, func(_ string, res *GameResult) { results <- res })

	argv := []string{"sh", "-c", `echo booting >&2; echo '{"type":"game_over","winner":"ada"}'`}
	require.NoError(t, sup.Launch("r-win", t.TempDir(), argv))

	select {
	case res := <-results:
		require.NotNil(t, res)
		assert.Equal(t, "game_over", res.Type)
		require.NotNil(t, res.Winner)
		assert.Equal(t, "ada", *res.Winner)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor never delivered a result")
	}

	// Exactly one caller gets to remove the handle.
	assert.True(t, sup.Remove("r-win"))
	assert.False(t, sup.Remove("r-win"))
}

func TestResultIsLastNonEmptyStdoutLine(t *testing.T) {
	results := make(chan *GameResult, 1)
	sup := testSupervisor(t, func(_ string, res *GameResult) { results <- res })

	script := `echo progress; echo; echo '{"type":"game_over","winner":null}'; echo ''`
	require.NoError(t, sup.Launch("r-draw", t.TempDir(), []string{"sh", "-c", script}))

	select {
	case res := <-results:
		require.NotNil(t, res)
		assert.Nil(t, res.Winner, "a null winner is a draw")
	case <-time.After(5 * time.Second):
		t.Fatal("monitor never delivered a result")
	}
}

func TestCrashYieldsNoResult(t *testing.T) {
	results := make(chan *GameResult, 1)
	sup := testSupervisor(t, func(_ string, res *GameResult) { results <- res })

	require.NoError(t, sup.Launch("r-boom", t.TempDir(), []string{"sh", "-c", "echo broken >&2; exit 3"}))

	select {
	case res := <-results:
		assert.Nil(t, res, "a crashed room has no result")
	case <-time.After(5 * time.Second):
		t.Fatal("monitor never fired for the crash")
	}
}

func TestTerminateBlocksUntilReaped(t *testing.T) {
	reaped := make(chan string, 1)
	sup := testSupervisor(t, func(roomID string, _ *GameResult) { reaped <- roomID })

	require.NoError(t, sup.Launch("r-term", t.TempDir(), []string{"sleep", "30"}))

	start := time.Now()
	sup.Terminate("r-term")
	assert.Less(t, time.Since(start), 5*time.Second)

	select {
	case roomID := <-reaped:
		assert.Equal(t, "r-term", roomID)
	default:
		t.Fatal("Terminate returned before the monitor reaped")
	}

	// Unknown ids are a no-op.
	sup.Terminate("missing")
}

func TestMatchPrefixOnLiveRooms(t *testing.T) {
	sup := testSupervisor(t, nil)
	dir := t.TempDir()

	require.NoError(t, sup.Launch("room-a1", dir, []string{"sleep", "30"}))
	require.NoError(t, sup.Launch("room-a2", dir, []string{"sleep", "30"}))
	require.NoError(t, sup.Launch("task-b1", dir, []string{"sleep", "30"}))
	assert.Equal(t, 3, sup.Len())

	assert.ElementsMatch(t, []string{"room-a1", "room-a2"}, sup.MatchPrefix("room-"))
	assert.Equal(t, []string{"room-a1"}, sup.MatchPrefix("room-a1"))
	assert.Empty(t, sup.MatchPrefix("zzz"))
	assert.Empty(t, sup.MatchPrefix(""), "an empty prefix matches nothing")
}

func TestShutdownTerminatesEverything(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	var sup *Supervisor
	sup = NewSupervisor(9100, quietLog(), func(roomID string, _ *GameResult) {
		sup.Remove(roomID)
		mu.Lock()
		seen = append(seen, roomID)
		mu.Unlock()
	})

	dir := t.TempDir()
	require.NoError(t, sup.Launch("s-1", dir, []string{"sleep", "30"}))
	require.NoError(t, sup.Launch("s-2", dir, []string{"sleep", "30"}))

	sup.Shutdown()

	assert.Equal(t, 0, sup.Len())
	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"s-1", "s-2"}, seen)
}
