package ws

type sessionState int

const (
	stateUnjoined sessionState = iota
	stateJoined
)

// session is one connection's lifecycle: unjoined until a join is
// accepted, joined until an explicit leaveRoom, a re-join elsewhere, or
// the connection drops. Re-enterable: a left session may join again.
//
// A session is only ever touched from its connection's reader
// goroutine, so it needs no lock; handlers that spawn goroutines copy
// the fields they need first.
type session struct {
	connID string
	conn   *clientConn

	state  sessionState
	roomID string
	name   string
}

func (s *session) joined() bool { return s.state == stateJoined }

func (s *session) enterRoom(roomID, name string) {
	s.state = stateJoined
	s.roomID = roomID
	s.name = name
}

func (s *session) exitRoom() {
	s.state = stateUnjoined
	s.roomID = ""
	s.name = ""
}
