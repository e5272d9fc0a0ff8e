package ws

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/jovemegidio/concord-sync/internal/domain"
	"github.com/jovemegidio/concord-sync/pkg/errs"
)

// wsConn — обёртка над gorilla-сокетом, реализует domain.Sender.
// Send сериализован каналом-ёмкостью-1: gorilla не допускает
// конкурентных записей в один сокет.
type wsConn struct {
	conn   *websocket.Conn
	sendMu chan struct{}
	closed chan struct{}
}

func newWsConn(c *websocket.Conn) *wsConn {
	return &wsConn{
		conn:   c,
		sendMu: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) Send(msg domain.Message) error {
	select {
	case <-c.closed:
		return errs.ErrConnClosed
	default:
	}

	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	return c.conn.WriteJSON(msg)
}

// Close идемпотентен: повторный вызов не паникует на закрытом канале.
func (c *wsConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}

	return c.conn.Close()
}
