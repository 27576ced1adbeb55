package resources

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

func availableUnit(id string, lat, lon float64) domain.ResourceUnit {
	return domain.ResourceUnit{
		ID:        id,
		CallSign:  "CS-" + id,
		Type:      domain.UnitTypeAmbulance,
		Location:  domain.Location{Latitude: lat, Longitude: lon},
		Readiness: domain.ReadinessAvailable,
		Capacity:  1,
	}
}

func TestTryReserveSingleWinner(t *testing.T) {
	pool := NewPool()
	require.NoError(t, pool.Register(availableUnit("u1", 0, 0)))

	const contenders = 32
	var wg sync.WaitGroup
	wins := make(chan string, contenders)
	for i := 0; i < contenders; i++ {
		incidentID := fmt.Sprintf("inc-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if pool.TryReserve("u1", incidentID) {
				wins <- incidentID
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	require.Len(t, winners, 1, "exactly one incident may hold the unit")

	unit, ok := pool.Get("u1")
	require.True(t, ok)
	require.NotNil(t, unit.ActiveIncidentID)
	assert.Equal(t, winners[0], *unit.ActiveIncidentID)
}

func TestTryReserveRejectsUnavailable(t *testing.T) {
	pool := NewPool()
	busy := availableUnit("u1", 0, 0)
	busy.Readiness = domain.ReadinessEnRoute
	require.NoError(t, pool.Register(busy))

	assert.False(t, pool.TryReserve("u1", "inc-1"))
	assert.False(t, pool.TryReserve("missing", "inc-1"))

	require.NoError(t, pool.Register(availableUnit("u2", 0, 0)))
	require.True(t, pool.TryReserve("u2", "inc-1"))
	assert.False(t, pool.TryReserve("u2", "inc-2"), "held units cannot be reserved again")
}

func TestListAvailableNearestFirst(t *testing.T) {
	pool := NewPool()
	require.NoError(t, pool.Register(availableUnit("far", 1, 0)))
	require.NoError(t, pool.Register(availableUnit("near", 0.01, 0)))
	require.NoError(t, pool.Register(availableUnit("mid", 0.5, 0)))

	reserved := availableUnit("held", 0.001, 0)
	require.NoError(t, pool.Register(reserved))
	require.True(t, pool.TryReserve("held", "inc-1"))

	down := availableUnit("down", 0.002, 0)
	down.Readiness = domain.ReadinessOutOfService
	require.NoError(t, pool.Register(down))

	units := pool.ListAvailable(domain.Location{Latitude: 0, Longitude: 0}, 0)
	require.Len(t, units, 3)
	assert.Equal(t, "near", units[0].ID)
	assert.Equal(t, "mid", units[1].ID)
	assert.Equal(t, "far", units[2].ID)
}

func TestListAvailableRadius(t *testing.T) {
	pool := NewPool()
	require.NoError(t, pool.Register(availableUnit("close", 0.01, 0)))
	require.NoError(t, pool.Register(availableUnit("distant", 2, 0)))

	// 0.01 degrees of latitude is roughly 1.1 km.
	units := pool.ListAvailable(domain.Location{Latitude: 0, Longitude: 0}, 5000)
	require.Len(t, units, 1)
	assert.Equal(t, "close", units[0].ID)
}

func TestReleaseForIncident(t *testing.T) {
	pool := NewPool()
	require.NoError(t, pool.Register(availableUnit("u1", 0, 0)))
	require.NoError(t, pool.Register(availableUnit("u2", 0, 0)))
	require.NoError(t, pool.Register(availableUnit("u3", 0, 0)))

	require.True(t, pool.TryReserve("u1", "inc-1"))
	require.True(t, pool.TryReserve("u2", "inc-1"))
	require.True(t, pool.TryReserve("u3", "inc-2"))

	released := pool.ReleaseForIncident("inc-1")
	require.Len(t, released, 2)
	assert.Equal(t, "u1", released[0].ID)
	assert.Equal(t, "u2", released[1].ID)

	for _, id := range []string{"u1", "u2"} {
		unit, ok := pool.Get(id)
		require.True(t, ok)
		assert.Nil(t, unit.ActiveIncidentID)
		assert.Equal(t, domain.ReadinessAvailable, unit.Readiness)
	}

	// The other incident's reservation is untouched.
	unit, ok := pool.Get("u3")
	require.True(t, ok)
	require.NotNil(t, unit.ActiveIncidentID)
	assert.Equal(t, "inc-2", *unit.ActiveIncidentID)

	assert.Empty(t, pool.ReleaseForIncident("inc-1"), "release is idempotent")
}

func TestReleaseKeepsOutOfService(t *testing.T) {
	pool := NewPool()
	require.NoError(t, pool.Register(availableUnit("u1", 0, 0)))
	require.True(t, pool.TryReserve("u1", "inc-1"))

	_, err := pool.CompareAndSwapReadiness("u1", domain.ReadinessAvailable, domain.ReadinessOutOfService)
	require.NoError(t, err)

	released := pool.ReleaseForIncident("inc-1")
	require.Len(t, released, 1)
	assert.Equal(t, domain.ReadinessOutOfService, released[0].Readiness)
	assert.Nil(t, released[0].ActiveIncidentID)

	unit, ok := pool.Get("u1")
	require.True(t, ok)
	assert.Equal(t, domain.ReadinessOutOfService, unit.Readiness, "broken units stay sidelined until reinstated")
}

func TestCompareAndSwapReadiness(t *testing.T) {
	pool := NewPool()
	require.NoError(t, pool.Register(availableUnit("u1", 0, 0)))

	updated, err := pool.CompareAndSwapReadiness("u1", domain.ReadinessAvailable, domain.ReadinessEnRoute)
	require.NoError(t, err)
	assert.Equal(t, domain.ReadinessEnRoute, updated.Readiness)

	// Stale expectation loses the swap and reports the live state.
	current, err := pool.CompareAndSwapReadiness("u1", domain.ReadinessAvailable, domain.ReadinessEnRoute)
	require.ErrorIs(t, err, ErrReadinessConflict)
	assert.Equal(t, domain.ReadinessEnRoute, current.Readiness)

	_, err = pool.CompareAndSwapReadiness("ghost", domain.ReadinessAvailable, domain.ReadinessEnRoute)
	assert.ErrorIs(t, err, ErrUnitNotFound)
}

func TestCompareAndSwapIntoAvailableClearsReservation(t *testing.T) {
	pool := NewPool()
	require.NoError(t, pool.Register(availableUnit("u1", 0, 0)))
	require.True(t, pool.TryReserve("u1", "inc-1"))

	_, err := pool.CompareAndSwapReadiness("u1", domain.ReadinessAvailable, domain.ReadinessEnRoute)
	require.NoError(t, err)
	_, err = pool.CompareAndSwapReadiness("u1", domain.ReadinessEnRoute, domain.ReadinessOnScene)
	require.NoError(t, err)

	updated, err := pool.CompareAndSwapReadiness("u1", domain.ReadinessOnScene, domain.ReadinessAvailable)
	require.NoError(t, err)
	assert.Nil(t, updated.ActiveIncidentID)
	assert.True(t, updated.Available())
}

func TestRegisterDuplicate(t *testing.T) {
	pool := NewPool()
	require.NoError(t, pool.Register(availableUnit("u1", 0, 0)))
	assert.Error(t, pool.Register(availableUnit("u1", 0, 0)))
}

func TestHeldBy(t *testing.T) {
	pool := NewPool()
	require.NoError(t, pool.Register(availableUnit("b", 0, 0)))
	require.NoError(t, pool.Register(availableUnit("a", 0, 0)))
	require.True(t, pool.TryReserve("b", "inc-1"))
	require.True(t, pool.TryReserve("a", "inc-1"))

	held := pool.HeldBy("inc-1")
	require.Len(t, held, 2)
	assert.Equal(t, "a", held[0].ID)
	assert.Equal(t, "b", held[1].ID)

	assert.Empty(t, pool.HeldBy("inc-2"))
}

func TestNotificationsOnRelease(t *testing.T) {
	pool := NewPool()
	require.NoError(t, pool.Register(availableUnit("u1", 0, 0)))

	// Drain the registration signal.
	select {
	case <-pool.Notifications():
	default:
	}

	require.True(t, pool.TryReserve("u1", "inc-1"))
	pool.ReleaseForIncident("inc-1")

	select {
	case <-pool.Notifications():
	default:
		t.Fatal("expected a capacity signal after release")
	}
}

func TestLoadReplacesContents(t *testing.T) {
	pool := NewPool()
	require.NoError(t, pool.Register(availableUnit("old", 0, 0)))

	holder := "inc-9"
	seeded := availableUnit("restored", 0, 0)
	seeded.Readiness = domain.ReadinessEnRoute
	seeded.ActiveIncidentID = &holder
	pool.Load([]domain.ResourceUnit{seeded})

	_, ok := pool.Get("old")
	assert.False(t, ok)

	unit, ok := pool.Get("restored")
	require.True(t, ok)
	assert.Equal(t, domain.ReadinessEnRoute, unit.Readiness)
	require.NotNil(t, unit.ActiveIncidentID)
	assert.Equal(t, "inc-9", *unit.ActiveIncidentID)
}
