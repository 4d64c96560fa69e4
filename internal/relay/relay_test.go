package relay

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openride/relay-gateway/pkg/auth"
)

// fakeSender records enqueued frames in order.
type fakeSender struct {
	mu     sync.Mutex
	frames [][]byte
	full   bool
}

func (s *fakeSender) Enqueue(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.frames = append(s.frames, frame)
	return true
}

func (s *fakeSender) received() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Frame, 0, len(s.frames))
	for _, raw := range s.frames {
		var f Frame
		if err := json.Unmarshal(raw, &f); err == nil {
			out = append(out, f)
		}
	}
	return out
}

type fixture struct {
	dir      *Directory
	registry *Registry
	router   *Router
}

func newFixture() *fixture {
	dir := NewDirectory()
	log := zap.NewNop()
	return &fixture{
		dir:      dir,
		registry: NewRegistry(dir, log),
		router:   NewRouter(dir, log, nil),
	}
}

func (f *fixture) bind(t *testing.T, connID, identityID string, role auth.Role) (*Conn, *fakeSender) {
	t.Helper()
	sender := &fakeSender{}
	conn := f.registry.Bind(connID, auth.Identity{ID: identityID, Role: role}, sender)
	require.NotNil(t, conn)
	return conn, sender
}

func TestBindAutoJoinsPersonalOnly(t *testing.T) {
	f := newFixture()
	conn, _ := f.bind(t, "c1", "d1", auth.RoleProvider)

	chs := f.dir.Channels(conn)
	require.Len(t, chs, 1)
	assert.Equal(t, PersonalChannel("d1"), chs[0])
	// Availability is opt-in, never implicit from connecting.
	assert.Empty(t, f.dir.MembersOf(RolePoolChannel(auth.RoleProvider)))
}

func TestLookupAndUnbind(t *testing.T) {
	f := newFixture()
	conn, _ := f.bind(t, "c1", "r1", auth.RoleRequester)

	got, err := f.registry.Lookup("c1")
	require.NoError(t, err)
	assert.Same(t, conn, got)

	require.NoError(t, f.dir.Join(conn, ContextChannel("trip-1")))
	require.NoError(t, f.dir.Join(conn, TrackingChannel("d9")))

	f.registry.Unbind("c1")

	_, err = f.registry.Lookup("c1")
	assert.ErrorIs(t, err, ErrConnectionNotFound)
	assert.Empty(t, f.dir.MembersOf(PersonalChannel("r1")))
	assert.Empty(t, f.dir.MembersOf(ContextChannel("trip-1")))
	assert.Empty(t, f.dir.MembersOf(TrackingChannel("d9")))

	// Unbind is idempotent; never-bound handles are a no-op.
	f.registry.Unbind("c1")
	f.registry.Unbind("never-bound")
}

func TestJoinLeaveRoundTrip(t *testing.T) {
	f := newFixture()
	conn, _ := f.bind(t, "c1", "r1", auth.RoleRequester)
	before := f.dir.Channels(conn)

	ch := ContextChannel("trip-1")
	require.NoError(t, f.dir.Join(conn, ch))
	require.NoError(t, f.dir.Join(conn, ch)) // rejoin is a no-op success
	assert.True(t, f.dir.Member(conn, ch))

	f.dir.Leave(conn, ch)
	assert.ElementsMatch(t, before, f.dir.Channels(conn))

	// Leaving a channel never joined always succeeds.
	f.dir.Leave(conn, ContextChannel("never-joined"))
}

func TestRolePoolJoinForbiddenForWrongRole(t *testing.T) {
	f := newFixture()
	requester, _ := f.bind(t, "c1", "r1", auth.RoleRequester)
	provider, _ := f.bind(t, "c2", "d1", auth.RoleProvider)

	err := f.dir.Join(requester, RolePoolChannel(auth.RoleProvider))
	assert.ErrorIs(t, err, auth.ErrForbidden)

	require.NoError(t, f.dir.Join(provider, RolePoolChannel(auth.RoleProvider)))
	assert.Len(t, f.dir.MembersOf(RolePoolChannel(auth.RoleProvider)), 1)
}

func TestChannelIDStructuralEquality(t *testing.T) {
	assert.Equal(t, PersonalChannel("x"), PersonalChannel("x"))
	assert.NotEqual(t, PersonalChannel("x"), ContextChannel("x"))
	assert.NotEqual(t, TrackingChannel("x"), PersonalChannel("x"))
	assert.Equal(t, MonitoringChannel(), MonitoringChannel())
}

func TestAcceptedEventDeliverySet(t *testing.T) {
	f := newFixture()
	_, requester := f.bind(t, "c1", "r1", auth.RoleRequester)
	_, provider := f.bind(t, "c2", "d1", auth.RoleProvider)
	watcher, watcherSender := f.bind(t, "c3", "r2", auth.RoleRequester)
	_, bystander := f.bind(t, "c4", "r3", auth.RoleRequester)

	require.NoError(t, f.dir.Join(watcher, ContextChannel("trip-1")))

	report := f.router.Route(Event{
		Kind:        EventAccepted,
		ContextID:   "trip-1",
		RequesterID: "r1",
		ProviderID:  "d1",
		Payload:     map[string]interface{}{"providerId": "d1"},
	})

	// Exactly personal(r1) union context(trip-1): requester and watcher.
	assert.Len(t, requester.received(), 1)
	assert.Len(t, watcherSender.received(), 1)
	assert.Empty(t, provider.received())
	assert.Empty(t, bystander.received())
	assert.Equal(t, 2, report.Delivered)
}

func TestOfferAcceptScenario(t *testing.T) {
	f := newFixture()

	// r1 binds: personal channel only.
	_, r1 := f.bind(t, "c1", "r1", auth.RoleRequester)

	// d1 binds, then toggles availability on.
	d1Conn, d1 := f.bind(t, "c2", "d1", auth.RoleProvider)
	require.NoError(t, f.dir.Join(d1Conn, RolePoolChannel(auth.RoleProvider)))

	// Backend offers the trip to the candidate pool.
	f.router.Route(Event{
		Kind:         EventOfferToPool,
		ContextID:    "trip-T",
		RequesterID:  "r1",
		CandidateIDs: []string{"d1"},
		Payload:      map[string]interface{}{"contextId": "trip-T", "pickupLocation": "5th and Main"},
	})

	require.Len(t, d1.received(), 1)
	assert.Equal(t, "offer-to-pool", d1.received()[0].Type)
	assert.Empty(t, r1.received(), "requester is not targeted by the offer")

	// d1 accepts: routed to personal(r1) and context(trip-T).
	f.router.Route(Event{
		Kind:        EventAccepted,
		ContextID:   "trip-T",
		RequesterID: "r1",
		ProviderID:  "d1",
		Payload:     map[string]interface{}{"providerId": "d1", "contextId": "trip-T"},
	})

	frames := r1.received()
	require.Len(t, frames, 1)
	assert.Equal(t, "accepted", frames[0].Type)
	payload, ok := frames[0].Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "d1", payload["providerId"])
}

func TestRouteNoTargetsIsNotAnError(t *testing.T) {
	f := newFixture()
	report := f.router.Route(Event{
		Kind:        EventAccepted,
		ContextID:   "trip-ghost",
		RequesterID: "nobody",
	})
	assert.Equal(t, 0, report.Delivered)
	assert.Equal(t, 0, report.Dropped)
	assert.Len(t, report.Targets, 2)
}

func TestRouteDropsWhenBufferFull(t *testing.T) {
	f := newFixture()
	_, sender := f.bind(t, "c1", "r1", auth.RoleRequester)
	sender.full = true

	report := f.router.Route(Event{Kind: EventAccepted, RequesterID: "r1"})
	assert.Equal(t, 0, report.Delivered)
	assert.Equal(t, 1, report.Dropped)
}

func TestPerChannelOrderingFromOneSender(t *testing.T) {
	f := newFixture()
	member, sender := f.bind(t, "c1", "r1", auth.RoleRequester)
	require.NoError(t, f.dir.Join(member, ContextChannel("trip-1")))

	for i := 0; i < 10; i++ {
		f.router.Route(Event{
			Kind:      EventLocationUpdate,
			ContextID: "trip-1",
			Payload:   map[string]interface{}{"seq": fmt.Sprintf("%d", i)},
		})
	}

	frames := sender.received()
	require.Len(t, frames, 10)
	for i, f := range frames {
		payload, ok := f.Payload.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("%d", i), payload["seq"])
	}
}

func TestDuplicateTargetsDeliverOnce(t *testing.T) {
	f := newFixture()
	// d1 is both in the provider pool and a listed candidate.
	d1Conn, d1 := f.bind(t, "c1", "d1", auth.RoleProvider)
	require.NoError(t, f.dir.Join(d1Conn, RolePoolChannel(auth.RoleProvider)))

	f.router.Route(Event{
		Kind:         EventOfferToPool,
		ContextID:    "trip-1",
		CandidateIDs: []string{"d1"},
	})
	assert.Len(t, d1.received(), 1)
}

func TestEmergencyAlertTargetsMonitoring(t *testing.T) {
	f := newFixture()
	ops, opsSender := f.bind(t, "c1", "ops-1", auth.RoleRequester)
	// Monitoring membership is managed out of band, not via client command.
	require.NoError(t, f.dir.Join(ops, MonitoringChannel()))

	report := f.router.Route(Event{
		Kind:        EventEmergencyAlert,
		ContextID:   "trip-1",
		RequesterID: "r1",
		ProviderID:  "d1",
		Payload:     map[string]interface{}{"alertType": "sos"},
	})

	require.Len(t, opsSender.received(), 1)
	assert.Equal(t, 4, len(report.Targets), "personal(r1), personal(d1), context, monitoring")
}

func TestLocationUpdateTargetsTracking(t *testing.T) {
	f := newFixture()
	tracker, trackerSender := f.bind(t, "c1", "r1", auth.RoleRequester)
	require.NoError(t, f.dir.Join(tracker, TrackingChannel("d1")))

	f.router.Route(Event{
		Kind:       EventLocationUpdate,
		ProviderID: "d1",
		Payload:    map[string]interface{}{"location": map[string]interface{}{"lat": 1.0, "lng": 2.0}},
	})
	assert.Len(t, trackerSender.received(), 1)
}

func TestConcurrentJoinLeaveDuringRoute(t *testing.T) {
	f := newFixture()
	member, _ := f.bind(t, "c0", "r0", auth.RoleRequester)
	require.NoError(t, f.dir.Join(member, ContextChannel("trip-1")))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := fmt.Sprintf("c%d", i+1)
			conn := f.registry.Bind(connID, auth.Identity{ID: fmt.Sprintf("u%d", i+1), Role: auth.RoleRequester}, &fakeSender{})
			for j := 0; j < 50; j++ {
				_ = f.dir.Join(conn, ContextChannel("trip-1"))
				f.dir.Leave(conn, ContextChannel("trip-1"))
			}
			f.registry.Unbind(connID)
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			f.router.Route(Event{Kind: EventLocationUpdate, ContextID: "trip-1"})
		}
	}()
	wg.Wait()
}
