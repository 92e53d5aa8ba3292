package game

import (
	"testing"
	"time"
)

func TestSessionReplaysEventsWithPlayerIDStamped(t *testing.T) {
	s := New("pong", 4, 0)
	defer s.Terminate()

	p, conn := newPlayer()
	defer p.Close()
	s.AddPlayer(p)

	var admission map[string]any
	if !recvJSON(conn, &admission) {
		t.Fatalf("expected an admission message")
	}

	conn.send([]byte(`{"x":1,"y":2}`))

	var echoed map[string]any
	if !recvJSON(conn, &echoed) {
		t.Fatalf("expected the event to be relayed back")
	}
	if echoed["x"].(float64) != 1 || echoed["y"].(float64) != 2 {
		t.Fatalf("unexpected payload: %+v", echoed)
	}
	if _, ok := echoed["playerId"]; !ok {
		t.Fatalf("expected playerId to be stamped on relayed event: %+v", echoed)
	}
	if _, ok := echoed["step"]; ok {
		t.Fatalf("stepless session must not attach a step field: %+v", echoed)
	}
}

func TestSessionStepped_LockTicksAdvance(t *testing.T) {
	s := New("pong", 4, 20)
	defer s.Terminate()

	p, conn := newPlayer()
	defer p.Close()
	s.AddPlayer(p)

	var admission map[string]any
	if !recvJSON(conn, &admission) {
		t.Fatalf("expected an admission message")
	}

	var first, second map[string]any
	if !recvJSON(conn, &first) {
		t.Fatalf("expected a lock message")
	}
	if !recvJSON(conn, &second) {
		t.Fatalf("expected a second lock message")
	}

	f, ok := first["lock"].(float64)
	if !ok {
		t.Fatalf("expected a lock field, got %+v", first)
	}
	g, ok := second["lock"].(float64)
	if !ok {
		t.Fatalf("expected a lock field, got %+v", second)
	}
	if g != f+1 {
		t.Fatalf("expected consecutive lock steps, got %v then %v", f, g)
	}
}

func TestSessionAlivePingsAreNeverRelayed(t *testing.T) {
	s := New("pong", 4, 0)
	defer s.Terminate()

	p, conn := newPlayer()
	defer p.Close()
	s.AddPlayer(p)

	var admission map[string]any
	if !recvJSON(conn, &admission) {
		t.Fatalf("expected an admission message")
	}

	conn.send([]byte(`{"msg":"alive"}`))
	conn.send([]byte(`{"x":9}`))

	var next map[string]any
	if !recvJSON(conn, &next) {
		t.Fatalf("expected the non-heartbeat event to still arrive")
	}
	if next["x"].(float64) != 9 {
		t.Fatalf("expected the alive message to be skipped, got %+v first", next)
	}
}

func TestSessionSyncsLateJoinerFromDonor(t *testing.T) {
	s := New("pong", 4, 0)
	defer s.Terminate()

	donor, donorConn := newPlayer()
	defer donor.Close()
	s.AddPlayer(donor)

	var donorAdmission map[string]any
	if !recvJSON(donorConn, &donorAdmission) {
		t.Fatalf("expected donor admission message")
	}

	newcomer, newcomerConn := newPlayer()
	defer newcomer.Close()
	s.AddPlayer(newcomer)

	var newcomerAdmission map[string]any
	if !recvJSON(newcomerConn, &newcomerAdmission) {
		t.Fatalf("expected newcomer admission message")
	}

	var joinAnnounce map[string]any
	if !recvJSON(donorConn, &joinAnnounce) {
		t.Fatalf("expected donor to receive the join announcement")
	}
	if joinAnnounce["msg"] != "join" {
		t.Fatalf("expected a join announcement, got %+v", joinAnnounce)
	}

	donorConn.send([]byte(`{"msg":"sync","state":"full-state-blob"}`))

	var reply map[string]any
	if !recvJSON(newcomerConn, &reply) {
		t.Fatalf("expected the newcomer to receive the donor's sync reply")
	}
	if reply["state"] != "full-state-blob" {
		t.Fatalf("unexpected sync reply payload: %+v", reply)
	}

	// The newcomer should now be subscribed to :join for any future arrival.
	third, thirdConn := newPlayer()
	defer third.Close()
	s.AddPlayer(third)

	var thirdAdmission map[string]any
	if !recvJSON(thirdConn, &thirdAdmission) {
		t.Fatalf("expected third player's admission message")
	}

	sawJoinOnNewcomer := false
	for i := 0; i < 2; i++ {
		var msg map[string]any
		select {
		case frame := <-newcomerConn.out:
			_ = frame
			sawJoinOnNewcomer = true
		case <-time.After(200 * time.Millisecond):
		}
		_ = msg
		if sawJoinOnNewcomer {
			break
		}
	}
	if !sawJoinOnNewcomer {
		t.Fatalf("expected the newcomer to observe the third player's join announcement once synced")
	}
}

func TestSessionRemovePlayerNotifiesRemaining(t *testing.T) {
	s := New("pong", 4, 0)
	defer s.Terminate()

	a, aConn := newPlayer()
	defer a.Close()
	s.AddPlayer(a)
	var aAdmission map[string]any
	recvJSON(aConn, &aAdmission)

	b, bConn := newPlayer()
	s.AddPlayer(b)
	var bAdmission map[string]any
	recvJSON(bConn, &bAdmission)

	// Drain b's join-protocol traffic so it doesn't race the disconnect
	// notice below.
	select {
	case <-aConn.out:
	case <-time.After(200 * time.Millisecond):
	}

	s.RemovePlayer(b.SlotID())

	var notice map[string]any
	if !recvJSON(aConn, &notice) {
		t.Fatalf("expected remaining player to receive a departure notice")
	}
	if _, ok := notice["disconnected"]; !ok {
		t.Fatalf("expected a disconnected field, got %+v", notice)
	}
}

func TestSessionTerminatesWhenEmpty(t *testing.T) {
	s := New("pong", 4, 0)

	p, conn := newPlayer()
	s.AddPlayer(p)
	var admission map[string]any
	recvJSON(conn, &admission)

	s.RemovePlayer(p.SlotID())

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected session to terminate once its last player left")
	}
}
