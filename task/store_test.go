package task

import (
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/doctranslate/translation"
	"github.com/BaSui01/doctranslate/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusRunning, false},
		{StatusFailed, StatusCompleted, false},
		{StatusFailed, StatusRunning, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStore_Lifecycle(t *testing.T) {
	var transitions []string
	s := NewStore(WithTransitionHook(func(_ string, from, to Status) {
		transitions = append(transitions, string(from)+"->"+string(to))
	}))

	created := s.Create(Request{Content: "hello", TargetLanguage: "中文", Terminology: map[string]string{"a": "b"}})
	assert.Equal(t, StatusPending, created.Status)
	assert.NotEmpty(t, created.ID)

	require.NoError(t, s.MarkRunning(created.ID))
	require.NoError(t, s.SetProgress(created.ID, 1, 3))
	got, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, Progress{CompletedGroups: 1, TotalGroups: 3}, got.Progress)
	assert.NotNil(t, got.StartedAt)

	outcome := Outcome{TranslatedContent: "你好", Usage: translation.Usage{InputTokens: 1, OutputTokens: 2}}
	require.NoError(t, s.Complete(created.ID, outcome))

	got, err = s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, outcome, *got.Result)
	assert.Equal(t, 3, got.Progress.CompletedGroups)
	assert.NotNil(t, got.CompletedAt)

	assert.Equal(t, []string{"pending->running", "running->completed"}, transitions)
}

func TestStore_TerminalIsFinal(t *testing.T) {
	s := NewStore()
	id := s.Create(Request{Content: "x"}).ID
	require.NoError(t, s.Fail(id, "boom"))

	err := s.MarkRunning(id)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidTransition))
	assert.ErrorIs(t, s.Complete(id, Outcome{}), ErrInvalidTransition)
	assert.ErrorIs(t, s.Fail(id, "again"), ErrInvalidTransition)
	assert.ErrorIs(t, s.SetProgress(id, 1, 1), ErrInvalidTransition)

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
	assert.Nil(t, got.Result)
}

func TestStore_CompleteRequiresRunning(t *testing.T) {
	s := NewStore()
	id := s.Create(Request{Content: "x"}).ID
	assert.ErrorIs(t, s.Complete(id, Outcome{}), ErrInvalidTransition)
	assert.ErrorIs(t, s.SetProgress(id, 0, 1), ErrInvalidTransition)
}

func TestStore_UnknownID(t *testing.T) {
	s := NewStore()

	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.Equal(t, 404, types.HTTPStatusOf(err))

	assert.Panics(t, func() { _ = s.MarkRunning("missing") })
	assert.Panics(t, func() { _ = s.Fail("missing", "x") })
	assert.Panics(t, func() { _ = s.SetProgress("missing", 1, 1) })
}

func TestStore_SnapshotsAreIsolated(t *testing.T) {
	s := NewStore()
	terms := map[string]string{"k": "v"}
	id := s.Create(Request{Content: "x", Terminology: terms}).ID
	terms["k"] = "changed"

	require.NoError(t, s.MarkRunning(id))
	require.NoError(t, s.Complete(id, Outcome{TranslatedContent: "t"}))

	snap, err := s.Get(id)
	require.NoError(t, err)
	snap.Result.TranslatedContent = "mutated"
	snap.Status = StatusPending
	snap.Request.Terminology["k"] = "from snapshot"
	snap.Request.Terminology["extra"] = "x"

	again, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "t", again.Result.TranslatedContent)
	assert.Equal(t, StatusCompleted, again.Status)
	assert.Equal(t, "v", again.Request.Terminology["k"])
	assert.Len(t, again.Request.Terminology, 1)
}

func TestStore_ConcurrentTransitionsHaveOneWinner(t *testing.T) {
	s := NewStore()
	id := s.Create(Request{Content: "x"}).ID
	require.NoError(t, s.MarkRunning(id))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				err = s.Complete(id, Outcome{TranslatedContent: "done"})
			} else {
				err = s.Fail(id, "boom")
			}
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestStore_Evict(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore(WithClock(func() time.Time { return now }))

	old := s.Create(Request{Content: "old"}).ID
	require.NoError(t, s.Fail(old, "x"))
	pending := s.Create(Request{Content: "pending"}).ID

	now = now.Add(time.Hour)
	fresh := s.Create(Request{Content: "fresh"}).ID
	require.NoError(t, s.Fail(fresh, "y"))

	assert.Equal(t, 1, s.Evict(now.Add(-30*time.Minute)))

	_, err := s.Get(old)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = s.Get(pending)
	assert.NoError(t, err)
	_, err = s.Get(fresh)
	assert.NoError(t, err)
}

func TestStore_ListAndCounts(t *testing.T) {
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore(WithClock(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}))

	a := s.Create(Request{Content: "a"}).ID
	b := s.Create(Request{Content: "b"}).ID
	s.Create(Request{Content: "c"})
	require.NoError(t, s.MarkRunning(b))

	all := s.List("", 0)
	require.Len(t, all, 3)
	assert.Equal(t, a, all[0].ID)
	assert.Len(t, s.List(StatusPending, 0), 2)
	assert.Len(t, s.List("", 1), 1)

	counts := s.Counts()
	assert.Equal(t, 2, counts[StatusPending])
	assert.Equal(t, 1, counts[StatusRunning])
	assert.Len(t, counts, 4)
	assert.Zero(t, counts[StatusFailed])
}

// 任意操作序列下, 终态一旦进入就不再改变
func TestStore_TerminalStatesAreAbsorbing(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewStore()
		id := s.Create(Request{Content: "x"}).ID

		var terminal Status
		ops := rapid.SliceOfN(rapid.IntRange(0, 3), 1, 20).Draw(t, "ops")
		for _, op := range ops {
			var err error
			switch op {
			case 0:
				err = s.MarkRunning(id)
			case 1:
				err = s.Complete(id, Outcome{})
			case 2:
				err = s.Fail(id, "e")
			case 3:
				err = s.SetProgress(id, 1, 2)
			}
			got, _ := s.Get(id)
			if terminal != "" {
				if got.Status != terminal {
					t.Fatalf("terminal status %s changed to %s", terminal, got.Status)
				}
				if err == nil && op != 3 {
					t.Fatalf("op %d succeeded on terminal task", op)
				}
			}
			if got.Status.IsTerminal() {
				terminal = got.Status
			}
		}
	})
}
