package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/ruteri/obscura-mint/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStorageBackend struct {
	mock.Mock
	name string
}

func (m *MockStorageBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	args := m.Called(ctx, id, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStorageBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	args := m.Called(ctx, data, contentType)
	return args.Get(0).(interfaces.ContentID), args.Error(1)
}

func (m *MockStorageBackend) Available(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func (m *MockStorageBackend) Name() string {
	return m.name
}

func (m *MockStorageBackend) LocationURI() string {
	return "mock://" + m.name
}

// offline is a mirror that is configured but unreachable.
func offline(name string) *MockStorageBackend {
	b := &MockStorageBackend{name: name}
	b.On("Available", mock.Anything).Return(false)
	return b
}

var (
	sealedEnvelope = []byte{0x01, 0x02, 0x03, 0x04, 'c', 't', 'x', 't'}
	exportedState  = []byte("\x85\xa8contract\xc4\x14")
)

func TestMultiStorageBackend_ReplicatesEnvelopes(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryBackend("primary")
	mirror := NewMemoryBackend("mirror")
	down := offline("ipfs-down")

	multi := NewMultiStorageBackend([]interfaces.StorageBackend{primary, down, mirror}, testLogger())
	require.True(t, multi.Available(ctx))

	id, err := multi.Store(ctx, sealedEnvelope, interfaces.EnvelopeType)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ComputeID(sealedEnvelope), id)
	assert.Equal(t, id, id.Handle().ContentID())

	for _, b := range []*MemoryBackend{primary, mirror} {
		stored, err := b.Fetch(ctx, id, interfaces.EnvelopeType)
		require.NoError(t, err, b.Name())
		assert.Equal(t, sealedEnvelope, stored)
	}

	// a node that lost its primary copy still opens the handle from the mirror
	fresh := NewMemoryBackend("primary")
	multi = NewMultiStorageBackend([]interfaces.StorageBackend{fresh, down, mirror}, testLogger())
	fetched, err := multi.Fetch(ctx, id, interfaces.EnvelopeType)
	require.NoError(t, err)
	assert.Equal(t, sealedEnvelope, fetched)

	down.AssertExpectations(t)
}

func TestMultiStorageBackend_SnapshotsAreSeparateFromEnvelopes(t *testing.T) {
	ctx := context.Background()
	multi := NewMultiStorageBackend([]interfaces.StorageBackend{NewMemoryBackend("a"), NewMemoryBackend("b")}, testLogger())

	id, err := multi.Store(ctx, exportedState, interfaces.ExportType)
	require.NoError(t, err)

	snap, err := multi.Fetch(ctx, id, interfaces.ExportType)
	require.NoError(t, err)
	assert.Equal(t, exportedState, snap)

	_, err = multi.Fetch(ctx, id, interfaces.EnvelopeType)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
}

func TestMultiStorageBackend_FetchErrors(t *testing.T) {
	handle := interfaces.ComputeID(sealedEnvelope)
	outage := errors.New("connection refused")

	tests := []struct {
		name     string
		backends func() []interfaces.StorageBackend
		wantErr  error
		notFound bool
	}{
		{
			name: "no mirror reachable",
			backends: func() []interfaces.StorageBackend {
				return []interfaces.StorageBackend{offline("s3"), offline("vault")}
			},
			wantErr: interfaces.ErrBackendUnavailable,
		},
		{
			name: "every mirror is missing the envelope",
			backends: func() []interfaces.StorageBackend {
				return []interfaces.StorageBackend{NewMemoryBackend("a"), offline("s3"), NewMemoryBackend("b")}
			},
			wantErr:  interfaces.ErrContentNotFound,
			notFound: true,
		},
		{
			name: "missing on one mirror, failing on another",
			backends: func() []interfaces.StorageBackend {
				broken := &MockStorageBackend{name: "vault"}
				broken.On("Available", mock.Anything).Return(true)
				broken.On("Fetch", mock.Anything, handle, interfaces.EnvelopeType).Return(nil, outage)
				return []interfaces.StorageBackend{NewMemoryBackend("a"), broken}
			},
			wantErr: outage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backends := tt.backends()
			multi := NewMultiStorageBackend(backends, testLogger())

			data, err := multi.Fetch(context.Background(), handle, interfaces.EnvelopeType)
			assert.Nil(t, data)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.notFound, errors.Is(err, interfaces.ErrContentNotFound))

			for _, b := range backends {
				if m, ok := b.(*MockStorageBackend); ok {
					m.AssertExpectations(t)
				}
			}
		})
	}
}

func TestMultiStorageBackend_StoreErrors(t *testing.T) {
	ctx := context.Background()
	handle := interfaces.ComputeID(sealedEnvelope)
	quota := errors.New("quota exceeded")

	failing := func(name string) *MockStorageBackend {
		b := &MockStorageBackend{name: name}
		b.On("Available", mock.Anything).Return(true)
		b.On("Store", mock.Anything, sealedEnvelope, interfaces.EnvelopeType).Return(interfaces.ContentID{}, quota)
		return b
	}

	t.Run("one mirror failing still yields the handle", func(t *testing.T) {
		s3 := failing("s3")
		multi := NewMultiStorageBackend([]interfaces.StorageBackend{s3, NewMemoryBackend("local")}, testLogger())

		id, err := multi.Store(ctx, sealedEnvelope, interfaces.EnvelopeType)
		require.NoError(t, err)
		assert.Equal(t, handle, id)
		s3.AssertExpectations(t)
	})

	t.Run("every mirror failing", func(t *testing.T) {
		multi := NewMultiStorageBackend([]interfaces.StorageBackend{failing("s3"), failing("vault")}, testLogger())

		id, err := multi.Store(ctx, sealedEnvelope, interfaces.EnvelopeType)
		assert.ErrorIs(t, err, quota)
		assert.Equal(t, interfaces.ContentID{}, id)
	})

	t.Run("no mirror reachable", func(t *testing.T) {
		multi := NewMultiStorageBackend([]interfaces.StorageBackend{offline("s3")}, testLogger())
		assert.False(t, multi.Available(ctx))

		_, err := multi.Store(ctx, sealedEnvelope, interfaces.EnvelopeType)
		assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
	})

	t.Run("first stored id wins", func(t *testing.T) {
		skewed := &MockStorageBackend{name: "skewed"}
		skewed.On("Available", mock.Anything).Return(true)
		skewed.On("Store", mock.Anything, sealedEnvelope, interfaces.EnvelopeType).Return(interfaces.ContentID{0xff}, nil)
		multi := NewMultiStorageBackend([]interfaces.StorageBackend{NewMemoryBackend("local"), skewed}, testLogger())

		id, err := multi.Store(ctx, sealedEnvelope, interfaces.EnvelopeType)
		require.NoError(t, err)
		assert.Equal(t, handle, id)
		skewed.AssertExpectations(t)
	})
}

func TestMultiStorageBackend_LocationURI(t *testing.T) {
	multi := NewMultiStorageBackend([]interfaces.StorageBackend{NewMemoryBackend("a"), offline("s3")}, nil)
	assert.Equal(t, "multi:[memory://a,mock://s3]", multi.LocationURI())
	assert.Equal(t, "multi-storage", multi.Name())
}
