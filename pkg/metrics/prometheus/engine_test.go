package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/internal/smbtest"
	"github.com/marmos91/dittosmb/pkg/smb/client"
	"github.com/marmos91/dittosmb/pkg/smb/lease"
)

func TestNilEngineRecordsNothing(t *testing.T) {
	var e *Engine
	assert.NotPanics(t, func() {
		e.ObserveCompound("create+close", "success", time.Millisecond)
		e.RecordCommand(types.CommandCreate, types.StatusSuccess)
		e.RecordReplay(true)
		e.RecordFallbackClose("closed")
		e.RecordLeaseEvent("insert")
		e.SetLeaseEntries(1)
		e.SetSlotsInFlight(2)
		e.RecordEntry("fetched")
	})
	assert.Nil(t, e.SessionOptions())
}

func TestEngineCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := NewEngineWith(reg)

	e.ObserveCompound("create+close", "success", 2*time.Millisecond)
	e.ObserveCompound("create+close", "success", 3*time.Millisecond)
	e.RecordCommand(types.CommandClose, types.StatusFileClosed)
	e.RecordReplay(true)
	e.RecordReplay(false)
	e.RecordReplay(true)
	e.RecordFallbackClose("failed")
	e.SetLeaseEntries(3)
	e.SetSlotsInFlight(5)
	e.RecordEntry("defaulted")

	assert.Equal(t, 2.0, testutil.ToFloat64(e.compounds.WithLabelValues("create+close", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.commands.WithLabelValues(types.CommandClose.String(), types.StatusFileClosed.String())))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.replays.WithLabelValues("alternate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.replays.WithLabelValues("same")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.fallbackCloses.WithLabelValues("failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(e.leaseEntries))
	assert.Equal(t, 5.0, testutil.ToFloat64(e.slotsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.prefetchEntries.WithLabelValues("defaulted")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "dsmb_compound_total")
	assert.Contains(t, names, "dsmb_compound_duration_seconds")
}

func TestEngineWiredIntoSession(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := NewEngineWith(reg)

	srv := smbtest.NewServer(smbtest.DefaultOptions())
	require.NoError(t, srv.AddDir("d"))
	lb := smbtest.NewLoopback(srv, 256)
	table := lease.NewTable(e)
	s := client.NewSession(lb, client.DefaultConfig(), append(e.SessionOptions(), client.WithLeaseTable(table))...)
	t.Cleanup(func() {
		_ = s.Close()
		_ = lb.Close()
	})

	dir, err := s.OpenDirectory(context.Background(), "d")
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.leaseEntries))
	require.NoError(t, dir.Close(context.Background()))

	assert.Equal(t, 0.0, testutil.ToFloat64(e.leaseEntries))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.leaseEvents.WithLabelValues("confirm")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.commands.WithLabelValues(types.CommandCreate.String(), types.StatusSuccess.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.commands.WithLabelValues(types.CommandClose.String(), types.StatusSuccess.String())))
}
