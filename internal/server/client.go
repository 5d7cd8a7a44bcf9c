package server

import (
	"database/sql"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gatherly/gatherly/internal/database"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueueSize  = 256
)

// Client is one authenticated websocket session. A session holds at most
// one topic subscription at a time.
type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	user       database.User
	sessionId  string
	send       chan *ServerMessage
	stop       chan struct{}
	stopOnce   sync.Once
	topic      *Topic
	topicLock  sync.RWMutex
}

func NewClient(conn *websocket.Conn, cs *ChatServer, user database.User, sessionId string, logger *log.Logger) *Client {
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        logger,
		user:       user,
		sessionId:  sessionId,
		send:       make(chan *ServerMessage, sendQueueSize),
		stop:       make(chan struct{}),
	}
}

func (c *Client) ReadPump() {
	defer c.cleanup()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msg := &ClientMessage{}
		if err := c.conn.ReadJSON(msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Printf("unexpected close for session %s: %s", c.sessionId, err)
			}
			return
		}

		msg.UserId = c.user.Id
		msg.client = c
		c.dispatch(msg)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Printf("failed to write message to session %s: %s", c.sessionId, err)
				return
			}

			if msg.CloseConn {
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""),
					time.Now().Add(writeWait))
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) dispatch(msg *ClientMessage) {
	switch {
	case msg.Subscribe != nil:
		c.handleSubscribe(msg)
	case msg.Leave != nil:
		t := c.currentTopic()
		if t == nil {
			c.queueMessage(ErrNotSubscribed(msg.Id))
			return
		}
		c.forward(t.leaveChan, msg)
	case msg.Publish != nil:
		t := c.currentTopic()
		if t == nil {
			c.queueMessage(ErrNotSubscribed(msg.Id))
			return
		}
		c.forward(t.publishChan, msg)
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

// handleSubscribe runs the access gate on the session's own goroutine so a
// slow directory lookup never stalls other sessions. A rejected subscribe
// closes the connection after the error response is flushed.
func (c *Client) handleSubscribe(msg *ClientMessage) {
	if c.currentTopic() != nil {
		c.queueMessage(ErrAlreadySubscribed(msg.Id))
		return
	}

	sub := msg.Subscribe
	group, err := c.chatServer.db.GetGroup(sub.GroupId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.reject(ErrTopicNotFound(msg.Id))
			return
		}
		c.log.Printf("failed to fetch group %d: %s", sub.GroupId, err)
		c.reject(ErrInternalError(msg.Id))
		return
	}

	event, err := c.chatServer.db.GetEvent(sub.EventId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.reject(ErrTopicNotFound(msg.Id))
			return
		}
		c.log.Printf("failed to fetch event %d: %s", sub.EventId, err)
		c.reject(ErrInternalError(msg.Id))
		return
	}

	if event.GroupId != group.Id {
		c.reject(ErrTopicNotFound(msg.Id))
		return
	}

	ok, err := c.chatServer.authz.CanAccessChat(c.user.Id, group.Id, event.Id)
	if err != nil {
		c.log.Printf("failed to check chat access for user %d: %s", c.user.Id, err)
		c.reject(ErrInternalError(msg.Id))
		return
	}
	if !ok {
		c.reject(ErrForbidden(msg.Id))
		return
	}

	select {
	case c.chatServer.subscribeChan <- msg:
	default:
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (c *Client) forward(ch chan *ClientMessage, msg *ClientMessage) {
	select {
	case ch <- msg:
	default:
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (c *Client) queueMessage(msg *ServerMessage) {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("send queue full for session %s, dropping message", c.sessionId)
	}
}

func (c *Client) reject(msg *ServerMessage) {
	msg.CloseConn = true
	c.queueMessage(msg)
}

// cleanup hands the leave to the topic actor before anything else so the
// listener set never holds a session past its read pump. The send queue is
// never closed; stopClient signals the write pump instead, so a broadcast
// racing the leave queues harmlessly.
func (c *Client) cleanup() {
	if t := c.currentTopic(); t != nil {
		t.leaveChan <- &ClientMessage{client: c}
	}

	c.chatServer.DeregisterClient(c)
	c.stopClient()
	c.conn.Close()
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) attachTopic(t *Topic) {
	c.topicLock.Lock()
	defer c.topicLock.Unlock()
	c.topic = t
}

func (c *Client) detachTopic(t *Topic) {
	c.topicLock.Lock()
	defer c.topicLock.Unlock()
	if c.topic == t {
		c.topic = nil
	}
}

func (c *Client) currentTopic() *Topic {
	c.topicLock.RLock()
	defer c.topicLock.RUnlock()
	return c.topic
}
