package signaling

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wilsonzlin/aero/proxy/call-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/call-signaling/internal/presence"
)

// fakeTransport records every event per connection, encoded as wire JSON.
type fakeTransport struct {
	mu    sync.Mutex
	conns []presence.ConnID
	inbox map[presence.ConnID][]string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbox: make(map[presence.ConnID][]string)}
}

func (f *fakeTransport) Send(conn presence.ConnID, ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		if c == conn {
			f.inbox[c] = append(f.inbox[c], mustEncode(ev))
		}
	}
}

func (f *fakeTransport) Broadcast(ev Event) { f.BroadcastExcept("", ev) }

func (f *fakeTransport) BroadcastExcept(except presence.ConnID, ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		if c != except {
			f.inbox[c] = append(f.inbox[c], mustEncode(ev))
		}
	}
}

func (f *fakeTransport) open(h *Hub, conn presence.ConnID) {
	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.mu.Unlock()
	h.Connect(conn)
}

func (f *fakeTransport) shut(h *Hub, conn presence.ConnID) {
	f.mu.Lock()
	for i, c := range f.conns {
		if c == conn {
			f.conns = append(f.conns[:i], f.conns[i+1:]...)
			break
		}
	}
	f.mu.Unlock()
	h.Disconnect(conn)
}

// take returns and clears everything delivered to conn so far.
func (f *fakeTransport) take(conn presence.ConnID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.inbox[conn]
	f.inbox[conn] = nil
	return out
}

func (f *fakeTransport) drain() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.inbox {
		f.inbox[c] = nil
	}
}

func mustEncode(ev Event) string {
	b, err := ev.Encode()
	if err != nil {
		panic(err)
	}
	return string(b)
}

func send(t *testing.T, h *Hub, conn presence.ConnID, frame string) {
	t.Helper()
	h.HandleFrame(conn, []byte(frame))
}

func assertEvents(t *testing.T, got []string, want ...string) {
	t.Helper()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("events:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func assertSnapshot(t *testing.T, h *Hub, live, call []string) {
	t.Helper()
	gotLive, gotCall := h.Snapshot()
	if strings.Join(gotLive, ",") != strings.Join(live, ",") || strings.Join(gotCall, ",") != strings.Join(call, ",") {
		t.Fatalf("live=%v call=%v, want live=%v call=%v", gotLive, gotCall, live, call)
	}
}

func countType(events []string, typ EventType) int {
	n := 0
	for _, e := range events {
		var env envelope
		if err := json.Unmarshal([]byte(e), &env); err == nil && env.Type == string(typ) {
			n++
		}
	}
	return n
}

type hubFixture struct {
	hub     *Hub
	tr      *fakeTransport
	metrics *metrics.Metrics
	deltas  []presence.Delta
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	fx := &hubFixture{tr: newFakeTransport(), metrics: metrics.New()}
	fx.hub = NewHub(HubConfig{
		Transport: fx.tr,
		Metrics:   fx.metrics,
		Observer:  presence.ObserverFunc(func(d presence.Delta) { fx.deltas = append(fx.deltas, d) }),
		Now:       func() time.Time { return time.Unix(1_700_000_000, 0) },
	})
	return fx
}

// registerPair connects and registers alice on c1 and bob on c2, then clears
// the inboxes.
func (fx *hubFixture) registerPair(t *testing.T) {
	t.Helper()
	fx.tr.open(fx.hub, "c1")
	fx.tr.open(fx.hub, "c2")
	send(t, fx.hub, "c1", `{"type":"register","payload":{"userId":"alice"}}`)
	send(t, fx.hub, "c2", `{"type":"register","payload":{"userId":"bob"}}`)
	fx.tr.drain()
	fx.deltas = nil
}

func TestHub_RegisterEmitsInOrder(t *testing.T) {
	fx := newHubFixture(t)
	fx.tr.open(fx.hub, "c1")
	fx.tr.open(fx.hub, "c2")
	fx.tr.open(fx.hub, "anon")

	send(t, fx.hub, "c1", `{"type":"register","payload":{"userId":"alice"}}`)
	assertEvents(t, fx.tr.take("c1"),
		`{"type":"registered","payload":{"userId":"alice"}}`,
		`{"type":"live-users","payload":{"liveUsers":["alice"]}}`,
		`{"type":"call-users","payload":{"callUsers":[]}}`,
	)
	assertEvents(t, fx.tr.take("anon"),
		`{"type":"live-users","payload":{"liveUsers":["alice"]}}`,
		`{"type":"call-users","payload":{"callUsers":[]}}`,
		`{"type":"new-live-user","payload":{"userId":"alice"}}`,
	)

	send(t, fx.hub, "c2", `{"type":"register","payload":{"userId":"bob"}}`)
	assertEvents(t, fx.tr.take("c1"),
		`{"type":"live-users","payload":{"liveUsers":["alice","bob"]}}`,
		`{"type":"call-users","payload":{"callUsers":[]}}`,
		`{"type":"new-live-user","payload":{"userId":"bob"}}`,
	)

	if conn, ok := fx.hub.Lookup("bob"); !ok || conn != "c2" {
		t.Fatalf("Lookup(bob)=(%q,%v), want (c2,true)", conn, ok)
	}
	if got := fx.metrics.Get(metrics.Registrations); got != 2 {
		t.Fatalf("registrations=%d, want 2", got)
	}
	if len(fx.deltas) != 2 || fx.deltas[1].Kind != presence.DeltaRegistered || fx.deltas[1].Users[0] != "bob" {
		t.Fatalf("deltas=%+v", fx.deltas)
	}
}

func TestHub_ScenarioA_CallUserRelaysAndMovesBothToCall(t *testing.T) {
	fx := newHubFixture(t)
	fx.registerPair(t)

	send(t, fx.hub, "c1", `{"type":"call-user","payload":{"from":"alice","to":"bob","offer":{"sdp":"x"}}}`)

	bob := fx.tr.take("c2")
	if len(bob) == 0 || bob[0] != `{"type":"incoming-call","payload":{"from":"alice","offer":{"sdp":"x"}}}` {
		t.Fatalf("bob events=%v", bob)
	}
	if n := countType(fx.tr.take("c1"), EventIncomingCall); n != 0 {
		t.Fatalf("alice received %d incoming-call events", n)
	}
	assertEvents(t, bob[1:],
		`{"type":"call-users","payload":{"callUsers":["alice","bob"]}}`,
		`{"type":"live-users","payload":{"liveUsers":[]}}`,
	)
	assertSnapshot(t, fx.hub, []string{}, []string{"alice", "bob"})
	if fx.hub.State("alice") != presence.InCall || fx.hub.State("bob") != presence.InCall {
		t.Fatalf("states=%v/%v, want in-call", fx.hub.State("alice"), fx.hub.State("bob"))
	}
	if len(fx.deltas) != 1 || fx.deltas[0].Kind != presence.DeltaInCall {
		t.Fatalf("deltas=%+v", fx.deltas)
	}
}

func TestHub_ScenarioB_UnknownTargetNotifiesSender(t *testing.T) {
	fx := newHubFixture(t)
	fx.registerPair(t)

	send(t, fx.hub, "c1", `{"type":"call-user","payload":{"from":"alice","to":"charlie","offer":{"sdp":"x"}}}`)

	assertEvents(t, fx.tr.take("c1"), `{"type":"user-not-found","payload":{"to":"charlie"}}`)
	assertEvents(t, fx.tr.take("c2"))
	assertSnapshot(t, fx.hub, []string{"alice", "bob"}, []string{})
	if len(fx.deltas) != 0 {
		t.Fatalf("presence changed on failed relay: %+v", fx.deltas)
	}
	if got := fx.metrics.Get(metrics.RelayTargetNotFound); got != 1 {
		t.Fatalf("relay_target_not_found=%d, want 1", got)
	}
}

func TestHub_ScenarioC_DisconnectedUserIsNotFound(t *testing.T) {
	fx := newHubFixture(t)
	fx.registerPair(t)

	fx.tr.shut(fx.hub, "c1")
	fx.tr.drain()

	send(t, fx.hub, "c2", `{"type":"call-user","payload":{"from":"bob","to":"alice","offer":{}}}`)
	assertEvents(t, fx.tr.take("c2"), `{"type":"user-not-found","payload":{"to":"alice"}}`)
}

func TestHub_ScenarioD_CallEndReturnsBothToLive(t *testing.T) {
	fx := newHubFixture(t)
	fx.registerPair(t)
	send(t, fx.hub, "c1", `{"type":"call-user","payload":{"from":"alice","to":"bob","offer":{"sdp":"x"}}}`)
	fx.tr.drain()

	send(t, fx.hub, "c2", `{"type":"call-end","payload":{"from":"alice","to":"bob"}}`)

	assertEvents(t, fx.tr.take("c1"),
		`{"type":"call-users","payload":{"callUsers":[]}}`,
		`{"type":"live-users","payload":{"liveUsers":["alice","bob"]}}`,
	)
	assertSnapshot(t, fx.hub, []string{"alice", "bob"}, []string{})
}

func TestHub_DisconnectBroadcastsExactlyOnce(t *testing.T) {
	fx := newHubFixture(t)
	fx.registerPair(t)
	send(t, fx.hub, "c1", `{"type":"start-in-call","payload":{"userId":"alice"}}`)
	fx.tr.drain()

	fx.tr.shut(fx.hub, "c1")

	assertEvents(t, fx.tr.take("c2"),
		`{"type":"live-users","payload":{"liveUsers":["bob"]}}`,
		`{"type":"call-users","payload":{"callUsers":[]}}`,
	)
	if _, ok := fx.hub.Lookup("alice"); ok {
		t.Fatalf("alice still registered after disconnect")
	}
	if fx.hub.State("alice") != presence.Offline {
		t.Fatalf("State(alice)=%v, want offline", fx.hub.State("alice"))
	}
	if got := fx.metrics.Get(metrics.DisconnectCleanups); got != 1 {
		t.Fatalf("disconnect_cleanups=%d, want 1", got)
	}
}

func TestHub_DisconnectOfAnonymousConnectionIsNoop(t *testing.T) {
	fx := newHubFixture(t)
	fx.registerPair(t)
	fx.tr.open(fx.hub, "anon")

	fx.tr.shut(fx.hub, "anon")
	fx.tr.shut(fx.hub, "never-opened")

	assertEvents(t, fx.tr.take("c1"))
	assertSnapshot(t, fx.hub, []string{"alice", "bob"}, []string{})
}

func TestHub_ReRegisterMovesIdentityToNewConnection(t *testing.T) {
	fx := newHubFixture(t)
	fx.registerPair(t)
	fx.tr.open(fx.hub, "c3")

	send(t, fx.hub, "c3", `{"type":"register","payload":{"userId":"alice"}}`)
	if conn, _ := fx.hub.Lookup("alice"); conn != "c3" {
		t.Fatalf("Lookup(alice)=%q, want c3", conn)
	}
	fx.tr.drain()

	// The superseded connection closing must not evict alice.
	fx.tr.shut(fx.hub, "c1")
	if conn, ok := fx.hub.Lookup("alice"); !ok || conn != "c3" {
		t.Fatalf("Lookup(alice)=(%q,%v) after old connection closed, want (c3,true)", conn, ok)
	}
	assertEvents(t, fx.tr.take("c3"))

	send(t, fx.hub, "c2", `{"type":"send-message","payload":{"from":"bob","to":"alice","message":"hi"}}`)
	assertEvents(t, fx.tr.take("c3"), `{"type":"new-message","payload":{"from":"bob","message":"hi"}}`)
}

func TestHub_RegisterUnderNewNameReleasesOldName(t *testing.T) {
	fx := newHubFixture(t)
	fx.registerPair(t)

	send(t, fx.hub, "c1", `{"type":"register","payload":{"userId":"alice2"}}`)

	if _, ok := fx.hub.Lookup("alice"); ok {
		t.Fatalf("old identity still bound")
	}
	assertSnapshot(t, fx.hub, []string{"bob", "alice2"}, []string{})
}

func TestHub_RelayTable(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  string
	}{
		{
			"answer-call",
			`{"type":"answer-call","payload":{"to":"bob","answer":{"type":"answer","sdp":"v=0"}}}`,
			`{"type":"call-answered","payload":{"answer":{"type":"answer","sdp":"v=0"}}}`,
		},
		{
			"call-accepted",
			`{"type":"call-accepted","payload":{"from":"alice","to":"bob","offer":[1,2]}}`,
			`{"type":"call-accepted","payload":{"from":"alice","offer":[1,2]}}`,
		},
		{
			"call-declined",
			`{"type":"call-declined","payload":{"from":"alice","to":"bob","offer":"busy"}}`,
			`{"type":"call-declined","payload":{"from":"alice","offer":"busy"}}`,
		},
		{
			"ice-candidate",
			`{"type":"ice-candidate","payload":{"to":"bob","candidate":{"candidate":"a=1","sdpMid":"0"}}}`,
			`{"type":"ice-candidate","payload":{"candidate":{"candidate":"a=1","sdpMid":"0"}}}`,
		},
		{
			"send-message keeps markup",
			`{"type":"send-message","payload":{"from":"alice","to":"bob","message":"<b>hi</b> & bye"}}`,
			`{"type":"new-message","payload":{"from":"alice","message":"<b>hi</b> & bye"}}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newHubFixture(t)
			fx.registerPair(t)

			send(t, fx.hub, "c1", tc.frame)

			assertEvents(t, fx.tr.take("c2"), tc.want)
			assertEvents(t, fx.tr.take("c1"))
			assertSnapshot(t, fx.hub, []string{"alice", "bob"}, []string{})
		})
	}
}

func TestHub_DisconnectCallRelaysAndReturnsBothToLive(t *testing.T) {
	fx := newHubFixture(t)
	fx.registerPair(t)
	send(t, fx.hub, "c1", `{"type":"call-user","payload":{"from":"alice","to":"bob","offer":{}}}`)
	fx.tr.drain()

	send(t, fx.hub, "c1", `{"type":"disconnect-call","payload":{"from":"alice","to":"bob","name":"Alice","complain":false,"block":true}}`)

	bob := fx.tr.take("c2")
	if len(bob) != 3 {
		t.Fatalf("bob events=%v", bob)
	}
	assertEvents(t, bob,
		`{"type":"call-disconnect","payload":{"from":"alice","to":"bob","name":"Alice","complain":false,"block":true}}`,
		`{"type":"call-users","payload":{"callUsers":[]}}`,
		`{"type":"live-users","payload":{"liveUsers":["alice","bob"]}}`,
	)
}

func TestHub_DisconnectCallToUnknownTargetLeavesPresence(t *testing.T) {
	fx := newHubFixture(t)
	fx.registerPair(t)
	send(t, fx.hub, "c1", `{"type":"start-in-call","payload":{"userId":"alice"}}`)
	fx.tr.drain()

	send(t, fx.hub, "c1", `{"type":"disconnect-call","payload":{"from":"alice","to":"zed","name":"A","complain":false,"block":false}}`)

	assertEvents(t, fx.tr.take("c1"), `{"type":"user-not-found","payload":{"to":"zed"}}`)
	assertSnapshot(t, fx.hub, []string{"bob"}, []string{"alice"})
}

func TestHub_AnonymousSenderToUnknownTargetIsDropped(t *testing.T) {
	fx := newHubFixture(t)
	fx.tr.open(fx.hub, "anon")

	send(t, fx.hub, "anon", `{"type":"call-user","payload":{"from":"ghost","to":"nobody","offer":{}}}`)

	assertEvents(t, fx.tr.take("anon"))
	if got := fx.metrics.Get(metrics.RelayDropped); got != 1 {
		t.Fatalf("relay_dropped=%d, want 1", got)
	}
}

func TestHub_InCallIsLiveOnlyTransition(t *testing.T) {
	fx := newHubFixture(t)
	fx.registerPair(t)

	send(t, fx.hub, "c1", `{"type":"in-call","payload":{"from":"alice","to":"bob"}}`)

	assertEvents(t, fx.tr.take("c2"), `{"type":"live-users","payload":{"liveUsers":[]}}`)
	assertSnapshot(t, fx.hub, []string{}, []string{})
	if fx.hub.State("alice") != presence.Offline {
		t.Fatalf("State(alice)=%v", fx.hub.State("alice"))
	}
	if _, ok := fx.hub.Lookup("alice"); !ok {
		t.Fatalf("busy user must stay registered")
	}

	send(t, fx.hub, "c1", `{"type":"remove-in-call","payload":{"userId":"alice"}}`)
	assertSnapshot(t, fx.hub, []string{"alice"}, []string{})
}

func TestHub_StartAndRemoveInCall(t *testing.T) {
	fx := newHubFixture(t)
	fx.registerPair(t)

	send(t, fx.hub, "c2", `{"type":"start-in-call","payload":{"userId":"bob"}}`)
	assertEvents(t, fx.tr.take("c1"),
		`{"type":"call-users","payload":{"callUsers":["bob"]}}`,
		`{"type":"live-users","payload":{"liveUsers":["alice"]}}`,
	)

	// Repeating the transition changes nothing and emits nothing.
	send(t, fx.hub, "c2", `{"type":"start-in-call","payload":{"userId":"bob"}}`)
	assertEvents(t, fx.tr.take("c1"))

	send(t, fx.hub, "c2", `{"type":"remove-in-call","payload":{"userId":"bob"}}`)
	assertSnapshot(t, fx.hub, []string{"alice", "bob"}, []string{})
}

func TestHub_UnregisteredIDsNeverEnterPresence(t *testing.T) {
	fx := newHubFixture(t)
	fx.registerPair(t)

	send(t, fx.hub, "c1", `{"type":"start-in-call","payload":{"userId":"mallory"}}`)
	send(t, fx.hub, "c1", `{"type":"call-end","payload":{"from":"mallory","to":"eve"}}`)

	assertSnapshot(t, fx.hub, []string{"alice", "bob"}, []string{})
	assertEvents(t, fx.tr.take("c2"))
}

func TestHub_Unregister(t *testing.T) {
	fx := newHubFixture(t)
	fx.registerPair(t)

	send(t, fx.hub, "c1", `{"type":"unregister"}`)

	if _, ok := fx.hub.Lookup("alice"); ok {
		t.Fatalf("alice still registered")
	}
	assertEvents(t, fx.tr.take("c2"),
		`{"type":"live-users","payload":{"liveUsers":["bob"]}}`,
		`{"type":"call-users","payload":{"callUsers":[]}}`,
	)
	// The connection stays usable.
	send(t, fx.hub, "c1", `{"type":"register","payload":{"userId":"alice"}}`)
	if conn, _ := fx.hub.Lookup("alice"); conn != "c1" {
		t.Fatalf("re-register failed")
	}
}

func TestHub_MalformedAndUnknownAreNoops(t *testing.T) {
	fx := newHubFixture(t)
	fx.registerPair(t)

	for _, frame := range []string{
		`not json`,
		`{"payload":{}}`,
		`{"type":"register","payload":{}}`,
		`{"type":"call-user","payload":{"from":"alice","to":"bob"}}`,
		`{"type":"call-user","payload":{"from":"alice","to":"bob","offer":null}}`,
		`{"type":"disconnect-call","payload":{"from":"alice","to":"bob","name":"A"}}`,
		`{"type":"register","payload":{"userId":42}}`,
	} {
		send(t, fx.hub, "c1", frame)
	}
	send(t, fx.hub, "c1", `{"type":"make-coffee","payload":{}}`)

	assertEvents(t, fx.tr.take("c1"))
	assertEvents(t, fx.tr.take("c2"))
	assertSnapshot(t, fx.hub, []string{"alice", "bob"}, []string{})
	if got := fx.metrics.Get(metrics.MessagesMalformed); got != 7 {
		t.Fatalf("messages_malformed=%d, want 7", got)
	}
	if got := fx.metrics.Get(metrics.MessagesUnknown); got != 1 {
		t.Fatalf("messages_unknown=%d, want 1", got)
	}
}

func TestHub_SetsStayDisjoint(t *testing.T) {
	fx := newHubFixture(t)
	users := []string{"u0", "u1", "u2", "u3"}
	for _, u := range users {
		conn := presence.ConnID("c" + u)
		fx.tr.open(fx.hub, conn)
		send(t, fx.hub, conn, `{"type":"register","payload":{"userId":"`+u+`"}}`)
	}

	frames := []string{
		`{"type":"call-user","payload":{"from":"u0","to":"u1","offer":{}}}`,
		`{"type":"in-call","payload":{"from":"u2","to":"u3"}}`,
		`{"type":"start-in-call","payload":{"userId":"u2"}}`,
		`{"type":"call-end","payload":{"from":"u0","to":"u1"}}`,
		`{"type":"call-user","payload":{"from":"u1","to":"u2","offer":{}}}`,
		`{"type":"remove-in-call","payload":{"userId":"u2"}}`,
		`{"type":"start-in-call","payload":{"userId":"u2"}}`,
		`{"type":"register","payload":{"userId":"u0"}}`,
	}
	for step, frame := range frames {
		send(t, fx.hub, "cu0", frame)
		live, call := fx.hub.Snapshot()
		seen := map[string]bool{}
		for _, u := range append(live, call...) {
			if seen[u] {
				t.Fatalf("step %d: %q appears twice (live=%v call=%v)", step, u, live, call)
			}
			seen[u] = true
		}
	}
	fx.tr.shut(fx.hub, "cu2")
	live, call := fx.hub.Snapshot()
	for _, u := range append(live, call...) {
		if u == "u2" {
			t.Fatalf("u2 still present after disconnect")
		}
	}
}

func TestHub_UsersListsRegisteredIDs(t *testing.T) {
	fx := newHubFixture(t)
	fx.registerPair(t)
	fx.tr.open(fx.hub, "c3")

	if got := fx.hub.Users(); strings.Join(got, ",") != "alice,bob" {
		t.Fatalf("Users()=%v, want [alice bob]", got)
	}
	fx.tr.shut(fx.hub, "c1")
	if got := fx.hub.Users(); strings.Join(got, ",") != "bob" {
		t.Fatalf("Users()=%v after alice disconnected, want [bob]", got)
	}
}

func TestHub_ConcurrentMessagesKeepStateConsistent(t *testing.T) {
	fx := newHubFixture(t)
	const n = 8
	for i := 0; i < n; i++ {
		fx.tr.open(fx.hub, presence.ConnID(fmt.Sprintf("c%d", i)))
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := presence.ConnID(fmt.Sprintf("c%d", i))
			me := fmt.Sprintf("u%d", i)
			peer := fmt.Sprintf("u%d", (i+1)%n)
			for round := 0; round < 200; round++ {
				fx.hub.HandleFrame(conn, []byte(`{"type":"register","payload":{"userId":"`+me+`"}}`))
				fx.hub.HandleFrame(conn, []byte(`{"type":"call-user","payload":{"from":"`+me+`","to":"`+peer+`","offer":{"sdp":"x"}}}`))
				switch round % 4 {
				case 0:
					fx.hub.HandleFrame(conn, []byte(`{"type":"call-end","payload":{"from":"`+me+`","to":"`+peer+`"}}`))
				case 1:
					fx.hub.HandleFrame(conn, []byte(`{"type":"in-call","payload":{"from":"`+me+`","to":"`+peer+`"}}`))
				case 2:
					fx.hub.Disconnect(conn)
				}
			}
			fx.hub.HandleFrame(conn, []byte(`{"type":"register","payload":{"userId":"`+me+`"}}`))
		}(i)
	}
	wg.Wait()

	users := fx.hub.Users()
	if len(users) != n {
		t.Fatalf("Users()=%v, want %d users", users, n)
	}
	registered := map[string]bool{}
	for _, u := range users {
		registered[u] = true
		want := presence.ConnID("c" + strings.TrimPrefix(u, "u"))
		if conn, ok := fx.hub.Lookup(u); !ok || conn != want {
			t.Fatalf("Lookup(%s)=%q,%v, want %q", u, conn, ok, want)
		}
	}

	live, call := fx.hub.Snapshot()
	inLive := map[string]bool{}
	for _, u := range live {
		if !registered[u] {
			t.Fatalf("live set names unregistered user %q", u)
		}
		inLive[u] = true
	}
	for _, u := range call {
		if !registered[u] {
			t.Fatalf("call set names unregistered user %q", u)
		}
		if inLive[u] {
			t.Fatalf("%q is in both live and call sets", u)
		}
	}
	for _, d := range fx.deltas {
		for _, u := range d.Live {
			if slices.Contains(d.Call, u) {
				t.Fatalf("delta %s shows %q in both sets", d.Kind, u)
			}
		}
	}
}
