package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherTriggersOnSettledCSV(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var got []string
	w := New(Config{Dir: dir, Debounce: 50 * time.Millisecond}, func(_ context.Context, path string) error {
		mu.Lock()
		got = append(got, path)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)

	csvPath := filepath.Join(dir, "batch.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("id,title,abstract\n"), 0o644))
	// A second write inside the debounce window must not double-fire.
	require.NoError(t, os.WriteFile(csvPath, []byte("id,title,abstract\n1,t,a\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == csvPath
	}, 3*time.Second, 20*time.Millisecond)

	// Nothing else should fire afterwards.
	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)

	cancel()
	<-done
}
