package acquisition

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ecowatt/gateway/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	mu      sync.Mutex
	values  map[uint8]uint16
	failFor map[uint8]bool
}

func (f *fakeAdapter) ReadRegisters(ctx context.Context, start uint8, count uint16) ([]uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failFor[start] {
		return nil, assertErr{}
	}

	return []uint16{f.values[start]}, nil
}

func (f *fakeAdapter) WriteRegister(ctx context.Context, addr uint8, value uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[addr] = value
	return nil
}

type assertErr struct{}

func (assertErr) Error() string { return "read failed" }

func newTestScheduler(adapter *fakeAdapter, table *registry.Table) *Scheduler {
	return New(adapter, registry.NewHolder(table))
}

func TestReadSingle_ScalesByGain(t *testing.T) {
	table := registry.NewTable([]registry.RegisterConfig{
		{Address: 0, Name: "Vac", Unit: "V", Gain: 10, Access: registry.AccessRead},
	})
	adapter := &fakeAdapter{values: map[uint8]uint16{0: 2303}}
	s := newTestScheduler(adapter, table)

	sample, err := s.ReadSingle(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2303), sample.RawValue)
	assert.InDelta(t, 230.3, sample.ScaledValue, 1e-9)
	assert.Equal(t, "Vac", sample.RegisterName)
}

func TestReadSingle_UnknownRegisterDefaults(t *testing.T) {
	table := registry.NewTable(nil)
	adapter := &fakeAdapter{values: map[uint8]uint16{5: 100}}
	s := newTestScheduler(adapter, table)

	sample, err := s.ReadSingle(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "Unknown", sample.RegisterName)
	assert.Equal(t, "", sample.Unit)
	assert.Equal(t, float64(100), sample.ScaledValue)
}

func TestScheduler_PollFillsBufferAndFansOutCallbacks(t *testing.T) {
	table := registry.NewTable([]registry.RegisterConfig{
		{Address: 0, Name: "voltage", Unit: "V", Gain: 1, Access: registry.AccessRead},
	})
	adapter := &fakeAdapter{values: map[uint8]uint16{0: 42}}
	s := newTestScheduler(adapter, table)

	var samplesSeen int32
	s.AddSampleCallback(func(Sample) { atomic.AddInt32(&samplesSeen, 1) })

	s.poll(context.Background())

	assert.Equal(t, int32(1), atomic.LoadInt32(&samplesSeen))
	assert.Equal(t, 1, s.buf.Len())

	stats := s.Statistics()
	assert.Equal(t, uint64(1), stats.TotalPolls)
	assert.Equal(t, uint64(1), stats.SuccessfulPolls)
}

func TestScheduler_PollFailureInvokesErrorCallbackAndDoesNotAbort(t *testing.T) {
	table := registry.NewTable([]registry.RegisterConfig{
		{Address: 0, Name: "voltage", Unit: "V", Gain: 1, Access: registry.AccessRead},
		{Address: 1, Name: "current", Unit: "A", Gain: 1, Access: registry.AccessRead},
	})
	adapter := &fakeAdapter{
		values:  map[uint8]uint16{1: 5},
		failFor: map[uint8]bool{0: true},
	}
	s := newTestScheduler(adapter, table)

	var errorsSeen, samplesSeen int32
	s.AddErrorCallback(func(error) { atomic.AddInt32(&errorsSeen, 1) })
	s.AddSampleCallback(func(Sample) { atomic.AddInt32(&samplesSeen, 1) })

	s.poll(context.Background())

	assert.Equal(t, int32(1), atomic.LoadInt32(&errorsSeen))
	assert.Equal(t, int32(1), atomic.LoadInt32(&samplesSeen))

	stats := s.Statistics()
	assert.Equal(t, uint64(1), stats.SuccessfulPolls)
}

func TestScheduler_PanickingCallbackDoesNotAbortCycle(t *testing.T) {
	table := registry.NewTable([]registry.RegisterConfig{
		{Address: 0, Name: "voltage", Unit: "V", Gain: 1, Access: registry.AccessRead},
	})
	adapter := &fakeAdapter{values: map[uint8]uint16{0: 1}}
	s := newTestScheduler(adapter, table)

	var after int32
	s.AddSampleCallback(func(Sample) { panic("boom") })
	s.AddSampleCallback(func(Sample) { atomic.AddInt32(&after, 1) })

	assert.NotPanics(t, func() { s.poll(context.Background()) })
	assert.Equal(t, int32(1), atomic.LoadInt32(&after))
}

func TestScheduler_StartStopIsIdempotent(t *testing.T) {
	table := registry.NewTable(nil)
	adapter := &fakeAdapter{values: map[uint8]uint16{}}
	s := newTestScheduler(adapter, table)
	s.SetPollingInterval(10 * time.Millisecond)

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx) // no-op, must not deadlock or double-run

	time.Sleep(30 * time.Millisecond)

	s.Stop()
	s.Stop() // no-op

	assert.GreaterOrEqual(t, s.Statistics().TotalPolls, uint64(1))
}

func TestGroupConsecutive(t *testing.T) {
	groups := GroupConsecutive([]uint8{5, 1, 2, 7, 8, 9, 2})
	assert.Equal(t, [][]uint8{{1, 2}, {5}, {7, 8, 9}}, groups)
}
