package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/coursework-api/internal/models"
	appErrors "github.com/noah-isme/coursework-api/pkg/errors"
	"github.com/noah-isme/coursework-api/pkg/storage"
)

func TestSweepResolvesAndReschedules(t *testing.T) {
	backend := newMemBackend(nil)
	backend.seed("media/a.png", "media/b.png")
	backend.fail("media/b.png", errors.New("still down"))
	gateway := storage.NewGateway(backend, storage.GatewayConfig{Bucket: testBucket})
	ledger := newGarbageStub()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return clock }
	require.NoError(t, ledger.Record(context.Background(), []string{"media/a.png", "media/b.png"}, models.GarbageSourceAssignmentDelete, "timeout"))

	metrics := NewMetricsService()
	svc := NewSweeperService(ledger, gateway, metrics, SweeperConfig{BatchSize: 10, BaseDelay: time.Minute}, nil)
	svc.now = func() time.Time { return clock }

	res, err := svc.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Claimed)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 1, res.Rescheduled)
	assert.Equal(t, []string{"media/b.png"}, res.FailedPaths)
	assert.False(t, backend.has("media/a.png"))

	require.Len(t, ledger.items, 1)
	item := ledger.items["media/b.png"]
	assert.Equal(t, 1, item.Attempts)
	assert.Equal(t, "still down", *item.LastError)
	assert.Equal(t, clock.Add(time.Minute), item.NextAttemptAt)
	assert.Equal(t, uint64(1), metrics.Snapshot().StorageDeleteFailures)

	res, err = svc.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, res.Claimed)

	backend.recover("media/b.png")
	clock = clock.Add(2 * time.Minute)
	res, err = svc.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Empty(t, ledger.items)
}

func TestSweepBackoff(t *testing.T) {
	svc := NewSweeperService(newGarbageStub(), nil, nil, SweeperConfig{BaseDelay: time.Minute, MaxDelay: 10 * time.Minute}, nil)
	assert.Equal(t, time.Minute, svc.backoff(0))
	assert.Equal(t, time.Minute, svc.backoff(1))
	assert.Equal(t, 4*time.Minute, svc.backoff(3))
	assert.Equal(t, 10*time.Minute, svc.backoff(8))
	assert.Equal(t, 10*time.Minute, svc.backoff(200))
}

func TestSweepAsAdminRequiresAdmin(t *testing.T) {
	svc := NewSweeperService(newGarbageStub(), nil, nil, SweeperConfig{}, nil)
	_, err := svc.SweepAsAdmin(context.Background(), teacher, 5)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	res, err := svc.SweepAsAdmin(context.Background(), admin, 5)
	require.NoError(t, err)
	assert.Zero(t, res.Claimed)
}
