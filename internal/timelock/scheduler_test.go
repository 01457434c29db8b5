package timelock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
)

func mkTimelocks(base time.Time, hours ...int) Timelocks {
	at := func(h int) time.Time { return base.Add(time.Duration(h) * time.Hour) }
	return Timelocks{
		SrcWithdrawal:         at(hours[0]),
		SrcPublicWithdrawal:   at(hours[1]),
		SrcCancellation:       at(hours[2]),
		SrcPublicCancellation: at(hours[3]),
		DstWithdrawal:         at(hours[4]),
		DstPublicWithdrawal:   at(hours[5]),
		DstCancellation:       at(hours[6]),
		DstPublicCancellation: at(hours[7]),
	}
}

func TestTimelocksValidate(t *testing.T) {
	base := time.Unix(1_700_000_000, 0).UTC()
	good := mkTimelocks(base, 0, 1, 2, 3, 0, 1, 2, 3)
	require.NoError(t, good.Validate())

	bad := mkTimelocks(base, 1, 0, 2, 3, 0, 1, 2, 3)
	require.Error(t, bad.Validate())

	dstLate := mkTimelocks(base, 2, 3, 4, 5, 3, 4, 5, 6)
	require.Error(t, dstLate.Validate())
}

func TestTimelocksPackRoundTrip(t *testing.T) {
	base := time.Unix(1_700_000_000, 0).UTC()
	tl := mkTimelocks(base, 1, 2, 3, 200, 0, 1, 2, 3)
	packed := tl.Pack(base)
	got := Unpack(packed, base)
	require.Equal(t, tl, got)
}

func TestTimelocksPackCapsAt255Hours(t *testing.T) {
	base := time.Unix(1_700_000_000, 0).UTC()
	tl := mkTimelocks(base, 0, 0, 0, 9000, 0, 0, 0, 0)
	packed := tl.Pack(base)
	got := Unpack(packed, base)
	require.Equal(t, base.Add(255*time.Hour), got.SrcPublicCancellation)
}

func TestSchedulerEmitsExactlyOncePerStage(t *testing.T) {
	var mu sync.Mutex
	var got []Expired
	sink := func(e Expired) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	}

	s := New(nil, sink)
	now := time.Now()
	s.now = func() time.Time { return now }

	orderHash := chainmodel.OrderHash{0x01}
	tl := mkTimelocks(now, -1, -1, -1, -1, -2, -2, -2, -2)
	s.Register(orderHash, tl)

	s.sweep()
	s.sweep()
	s.sweep()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 8)
}

func TestSchedulerRegisterIsIdempotentAndOnlyAdvances(t *testing.T) {
	s := New(nil, func(Expired) {})
	now := time.Now()
	orderHash := chainmodel.OrderHash{0x02}

	t1 := mkTimelocks(now, 0, 1, 2, 3, 0, 1, 2, 3)
	s.Register(orderHash, t1)
	s.Register(orderHash, t1) // idempotent
	require.Equal(t, t1, s.schedules[orderHash].timelocks)

	earlier := mkTimelocks(now, -5, 1, 2, 3, 0, 1, 2, 3)
	s.Register(orderHash, earlier) // does not strictly advance -> ignored
	require.Equal(t, t1, s.schedules[orderHash].timelocks)

	later := mkTimelocks(now, 10, 11, 12, 13, 10, 11, 12, 13)
	s.Register(orderHash, later)
	require.Equal(t, later, s.schedules[orderHash].timelocks)
}

func TestSchedulerIsAllowed(t *testing.T) {
	s := New(nil, func(Expired) {})
	now := time.Now()
	s.now = func() time.Time { return now }
	orderHash := chainmodel.OrderHash{0x03}

	require.False(t, s.IsAllowed(orderHash, SrcWithdrawal))

	tl := mkTimelocks(now, -1, 1, 2, 3, -2, 1, 2, 3)
	s.Register(orderHash, tl)
	require.True(t, s.IsAllowed(orderHash, SrcWithdrawal))
	require.False(t, s.IsAllowed(orderHash, SrcPublicWithdrawal))
}

func TestSchedulerRunSynthesizesPastDeadlinesOnResume(t *testing.T) {
	var mu sync.Mutex
	var got []Expired
	s := New(nil, func(e Expired) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})
	now := time.Now()
	s.now = func() time.Time { return now }
	s.tick = 10 * time.Millisecond

	orderHash := chainmodel.OrderHash{0x04}
	tl := mkTimelocks(now, -10, -9, -8, -7, -10, -9, -8, -7)
	s.Register(orderHash, tl)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 8)
}
