package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// Exam clients ping for the timer every 15 seconds. The read deadline
// allows three missed pings before the connection is considered dead and
// the server stops holding resources for it.
const (
	writeWait    = 10 * time.Second
	readIdleWait = 45 * time.Second
)

// WriteTyped sends a strongly-typed exam-channel payload.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the exam channel.
func WriteError(conn *websocket.Conn, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// ReadJSON reads and decodes the next client message, refreshing the idle
// deadline. A student who stops pinging is disconnected after readIdleWait.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetReadDeadline(time.Now().Add(readIdleWait))
	return conn.ReadJSON(v)
}
