package models

import "testing"

func newProposedSession(students ...uint) *Session {
	s := &Session{ID: 1, TeacherID: 5, Status: SessionStatusProposed}
	for _, id := range students {
		s.Participants = append(s.Participants, SessionParticipant{SessionID: 1, StudentID: id, Response: ResponsePending})
	}
	return s
}

func TestSessionRecordResponse(t *testing.T) {
	s := newProposedSession(1, 2)

	changed, err := s.RecordResponse(1, true)
	if err != nil || !changed {
		t.Fatalf("accept: changed=%v err=%v", changed, err)
	}
	if s.AllAccepted() {
		t.Fatal("one pending participant left, must not be all-accepted")
	}

	// retrying the same accept is a harmless no-op
	changed, err = s.RecordResponse(1, true)
	if err != nil || changed {
		t.Fatalf("repeat accept: changed=%v err=%v", changed, err)
	}

	if _, err := s.RecordResponse(2, true); err != nil {
		t.Fatalf("second accept: %v", err)
	}
	if !s.AllAccepted() {
		t.Fatal("everyone accepted, session should be ready to schedule")
	}
}

func TestSessionRecordResponseErrors(t *testing.T) {
	s := newProposedSession(1)

	if _, err := s.RecordResponse(42, true); KindOf(err) != ErrKindNotFound {
		t.Errorf("unknown participant: got %v; want not found", err)
	}

	s.Status = SessionStatusCancelled
	if _, err := s.RecordResponse(1, true); KindOf(err) != ErrKindState {
		t.Errorf("terminal session: got %v; want state error", err)
	}
}

func TestRemoveParticipantUnblocksAgreement(t *testing.T) {
	s := newProposedSession(1, 2)
	if _, err := s.RecordResponse(1, true); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// the remaining acceptor cannot nudge the session along by retrying
	changed, err := s.RecordResponse(1, true)
	if err != nil || changed {
		t.Fatalf("repeat accept: changed=%v err=%v", changed, err)
	}
	if s.AllAccepted() {
		t.Fatal("holdout still pending, must not be all-accepted")
	}

	// the holdout leaving is the event that completes the agreement
	if !s.RemoveParticipant(2) {
		t.Fatal("participant 2 should have been removed")
	}
	if !s.AllAccepted() {
		t.Fatal("after the last pending participant leaves, the rest have all accepted")
	}
}

func TestRemoveParticipantUnknown(t *testing.T) {
	s := newProposedSession(1)
	if s.RemoveParticipant(42) {
		t.Error("removing a non-participant must report false")
	}
	if len(s.Participants) != 1 {
		t.Errorf("participants = %d; want 1", len(s.Participants))
	}
}

func TestSessionCanView(t *testing.T) {
	s := newProposedSession(1, 2)
	if !s.CanView(5) {
		t.Error("teacher must be able to view their session")
	}
	if !s.CanView(1) || !s.CanView(2) {
		t.Error("participants must be able to view the session")
	}
	if s.CanView(42) {
		t.Error("an outsider must not see the session")
	}
}

func TestSessionAllAcceptedEmpty(t *testing.T) {
	s := &Session{Status: SessionStatusProposed}
	if s.AllAccepted() {
		t.Error("a session with no participants can never be all-accepted")
	}
}
