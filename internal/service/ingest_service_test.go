package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"iot-telemetry/internal/domain"
	"iot-telemetry/internal/metrics"
	"iot-telemetry/internal/repository"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []domain.Reading
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, r domain.Reading) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.published = append(p.published, r)
	return "1-0", nil
}

type failingRepo struct {
	repository.ReadingRepository
}

func (failingRepo) Append(context.Context, domain.Reading) (domain.Reading, error) {
	return domain.Reading{}, errors.New("disk full")
}

func (failingRepo) Recent(context.Context, int) ([]domain.Reading, error) {
	return nil, errors.New("table locked")
}

func (failingRepo) Count(context.Context) (int64, error) {
	return 0, errors.New("table locked")
}

func TestIngest_StoresTaggedReadingAndFansOut(t *testing.T) {
	repo := repository.NewMemoryReadingRepository()
	pub := &fakePublisher{}
	m := metrics.New()
	svc := NewIngestService(repo, pub, m, zap.NewNop())

	stored, err := svc.Ingest(context.Background(), domain.ProtocolMessaging, []byte(`{"temp":22.5,"umid":60,"latencia_ms":8.25}`))
	require.NoError(t, err)

	assert.Equal(t, int64(1), stored.ID)
	assert.Equal(t, domain.ProtocolMessaging, stored.Protocol)
	assert.Equal(t, 22.5, stored.Temperature)
	assert.False(t, stored.Timestamp.IsZero())

	require.Len(t, pub.published, 1)
	assert.Equal(t, stored.ID, pub.published[0].ID)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReadingsIngested.WithLabelValues("MESSAGING")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ReadingsIngested.WithLabelValues("HTTP")))
}

func TestIngest_ValidationFailureStoresNothing(t *testing.T) {
	repo := repository.NewMemoryReadingRepository()
	m := metrics.New()
	svc := NewIngestService(repo, nil, m, zap.NewNop())

	_, err := svc.Ingest(context.Background(), domain.ProtocolHTTP, []byte(`{"temp":22.5,"latencia_ms":8}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestFailures.WithLabelValues("HTTP", metrics.ReasonValidation)))
}

func TestIngest_StorageFailureIsStorageError(t *testing.T) {
	m := metrics.New()
	svc := NewIngestService(failingRepo{}, nil, m, zap.NewNop())

	_, err := svc.Ingest(context.Background(), domain.ProtocolHTTP, []byte(`{"temp":1,"umid":2,"latencia_ms":3}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.NotErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestFailures.WithLabelValues("HTTP", metrics.ReasonStorage)))
}

func TestIngest_PublisherFailureDoesNotFailIngest(t *testing.T) {
	repo := repository.NewMemoryReadingRepository()
	svc := NewIngestService(repo, &fakePublisher{err: errors.New("redis down")}, nil, zap.NewNop())

	stored, err := svc.Ingest(context.Background(), domain.ProtocolHTTP, []byte(`{"temp":1,"umid":2,"latencia_ms":3}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ID)

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestIngest_ConcurrentProtocolsGetDistinctIDs(t *testing.T) {
	repo := repository.NewMemoryReadingRepository()
	svc := NewIngestService(repo, nil, nil, zap.NewNop())

	var wg sync.WaitGroup
	ids := make(chan int64, 50)
	for i := 0; i < 50; i++ {
		protocol := domain.ProtocolHTTP
		if i%2 == 1 {
			protocol = domain.ProtocolMessaging
		}
		wg.Add(1)
		go func(p domain.Protocol) {
			defer wg.Done()
			r, err := svc.Ingest(context.Background(), p, []byte(`{"temp":25,"umid":50,"latencia_ms":10}`))
			if err == nil {
				ids <- r.ID
			}
		}(protocol)
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, 50)
}
