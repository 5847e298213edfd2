package audit

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

func TestRecorder_WritesToStorage(t *testing.T) {
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer store.Close()

	r := NewRecorder(store)
	tokens := 12
	r.SubmitAudit(&models.AuditRecord{
		ID: "a_1", TenantID: "t1", RequesterID: "u1", ConversationID: "c_1",
		Question: "q", Answer: "a [d1:c1]", TotalTokens: &tokens,
		Citations: []models.Citation{{DocumentID: "d1", ChunkID: "c1"}},
	})
	r.SubmitUsage(&models.UsageRecord{ID: "u_1", TenantID: "t1", RequesterID: "u1", Channel: "api", TotalTokens: tokens})
	require.NoError(t, r.Close(context.Background()))

	n, err := store.CountAuditRecords(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	total, err := store.SumTokensSince(context.Background(), "t1", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)
}

// blockingSink holds every write until release is closed.
type blockingSink struct {
	release chan struct{}
	audits  atomic.Int32
	usages  atomic.Int32
}

func (s *blockingSink) RecordAudit(ctx context.Context, rec *models.AuditRecord) error {
	<-s.release
	s.audits.Add(1)
	return nil
}

func (s *blockingSink) RecordUsage(ctx context.Context, rec *models.UsageRecord) error {
	<-s.release
	s.usages.Add(1)
	return nil
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	var mu sync.Mutex
	dropped := map[string]int{}
	r := NewRecorder(sink, WithQueueSize(2), WithDropHook(func(kind string) {
		mu.Lock()
		dropped[kind]++
		mu.Unlock()
	}))

	// one job may already be taken by the writer; at most 3 fit
	for i := 0; i < 10; i++ {
		r.SubmitAudit(&models.AuditRecord{ID: "a", TenantID: "t1"})
	}
	close(sink.release)
	require.NoError(t, r.Close(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, dropped[KindAudit], 7)
	assert.Equal(t, int32(10-dropped[KindAudit]), sink.audits.Load())
}

func TestRecorder_SubmitAfterClose(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	close(sink.release)
	var drops atomic.Int32
	r := NewRecorder(sink, WithDropHook(func(string) { drops.Add(1) }))
	require.NoError(t, r.Close(context.Background()))
	require.NoError(t, r.Close(context.Background()))

	r.SubmitUsage(&models.UsageRecord{ID: "u"})
	assert.Equal(t, int32(1), drops.Load())
	assert.Equal(t, int32(0), sink.usages.Load())
}

func TestRecorder_CloseTimeout(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	r := NewRecorder(sink)
	r.SubmitAudit(&models.AuditRecord{ID: "a"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Close(ctx), context.DeadlineExceeded)
	close(sink.release)
}
