package server

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gatherly/gatherly/internal/database"
	"github.com/gatherly/gatherly/internal/types"
)

// TopicKey identifies a fan-out channel. Every subscription and every
// published message is scoped to exactly one (group, event) pair.
type TopicKey struct {
	GroupId int
	EventId int
}

func (k TopicKey) String() string {
	return fmt.Sprintf("group:%d:event:%d", k.GroupId, k.EventId)
}

// Topic is the actor owning one fan-out channel. All joins, leaves and
// publishes for the key are serialized through its run loop, so delivery
// order within a topic matches persistence order.
type Topic struct {
	key           TopicKey
	chatServer    *ChatServer
	log           *log.Logger
	clients       map[*Client]struct{}
	clientsLock   sync.RWMutex
	joinChan      chan *ClientMessage
	leaveChan     chan *ClientMessage
	publishChan   chan *ClientMessage
	broadcastChan chan *types.MessagePayload
	exitChan      chan *exitReq
}

// exitReq asks the topic to shut down. When ifEmpty is set the topic
// refuses if clients joined after the unload was requested.
type exitReq struct {
	ifEmpty bool
	done    chan bool
}

func NewTopic(key TopicKey, cs *ChatServer) *Topic {
	return &Topic{
		key:           key,
		chatServer:    cs,
		log:           cs.log,
		clients:       make(map[*Client]struct{}),
		joinChan:      make(chan *ClientMessage, 256),
		leaveChan:     make(chan *ClientMessage, 256),
		publishChan:   make(chan *ClientMessage, 256),
		broadcastChan: make(chan *types.MessagePayload, 256),
		exitChan:      make(chan *exitReq),
	}
}

func (t *Topic) run() {
	for {
		select {
		case msg := <-t.joinChan:
			t.handleJoin(msg)
		case msg := <-t.leaveChan:
			t.handleLeave(msg)
		case msg := <-t.publishChan:
			t.handlePublish(msg)
		case payload := <-t.broadcastChan:
			t.broadcast(&ServerMessage{
				BaseMessage: BaseMessage{Timestamp: Now()},
				Message:     payload,
			})
			t.chatServer.stats.Incr("MessagesBroadcast")
		case req := <-t.exitChan:
			if req.ifEmpty && t.numClients() > 0 {
				req.done <- false
				continue
			}
			t.handleExit()
			req.done <- true
			return
		}
	}
}

func (t *Topic) handleJoin(msg *ClientMessage) {
	c := msg.client
	t.addClient(c)
	c.attachTopic(t)

	t.log.Printf("session %s subscribed to %s", c.sessionId, t.key)
	c.queueMessage(NoErrOK(msg.Id, map[string]int{
		"group_id": t.key.GroupId,
		"event_id": t.key.EventId,
	}))
}

func (t *Topic) handleLeave(msg *ClientMessage) {
	c := msg.client
	if !t.hasClient(c) {
		return
	}

	t.removeClient(c)
	c.detachTopic(t)
	t.log.Printf("session %s left %s", c.sessionId, t.key)

	if msg.Id > 0 {
		c.queueMessage(NoErrOK(msg.Id, nil))
	}

	if t.numClients() == 0 {
		t.requestUnload()
	}
}

// handlePublish re-checks authorization, persists the message and fans it
// out to every subscriber. A failed re-check drops the sender from the
// topic but leaves their connection open.
func (t *Topic) handlePublish(msg *ClientMessage) {
	c := msg.client

	content := strings.TrimSpace(msg.Publish.Content)
	if content == "" {
		t.log.Printf("session %s published blank content, discarding", c.sessionId)
		t.chatServer.stats.Incr("MessagesDropped")
		return
	}

	ok, err := t.chatServer.authz.CanAccessChat(c.user.Id, t.key.GroupId, t.key.EventId)
	if err != nil {
		t.log.Printf("error re-checking access for session %s on %s: %s", c.sessionId, t.key, err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}
	if !ok {
		t.log.Printf("session %s no longer authorized for %s, unsubscribing", c.sessionId, t.key)
		t.removeClient(c)
		c.detachTopic(t)
		c.queueMessage(ErrForbidden(msg.Id))

		if t.numClients() == 0 {
			t.requestUnload()
		}
		return
	}

	dbMsg, err := t.chatServer.db.CreateMessage(database.CreateMessageParams{
		GroupId: t.key.GroupId,
		EventId: t.key.EventId,
		UserId:  c.user.Id,
		Content: content,
	})
	if err != nil {
		t.log.Printf("failed to persist message from session %s on %s: %s", c.sessionId, t.key, err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	username, err := t.chatServer.db.GetDisplayName(c.user.Id)
	if err != nil {
		t.log.Printf("failed to resolve display name for user %d: %s", c.user.Id, err)
		username = c.user.EmailAddress
	}

	c.queueMessage(NoErrAccepted(msg.Id))
	t.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Message:     types.NewMessagePayload(dbMsg, username),
	})
	t.chatServer.stats.Incr("MessagesBroadcast")
}

func (t *Topic) handleExit() {
	t.clientsLock.Lock()
	defer t.clientsLock.Unlock()

	for c := range t.clients {
		c.detachTopic(t)
		delete(t.clients, c)
	}
}

func (t *Topic) broadcast(msg *ServerMessage) {
	t.clientsLock.RLock()
	defer t.clientsLock.RUnlock()

	for c := range t.clients {
		c.queueMessage(msg)
	}
}

func (t *Topic) requestUnload() {
	select {
	case t.chatServer.unloadTopicChan <- t.key:
	default:
		t.log.Printf("unload request for %s dropped, server busy", t.key)
	}
}

func (t *Topic) addClient(c *Client) {
	t.clientsLock.Lock()
	defer t.clientsLock.Unlock()
	t.clients[c] = struct{}{}
}

func (t *Topic) removeClient(c *Client) {
	t.clientsLock.Lock()
	defer t.clientsLock.Unlock()
	delete(t.clients, c)
}

func (t *Topic) hasClient(c *Client) bool {
	t.clientsLock.RLock()
	defer t.clientsLock.RUnlock()
	_, ok := t.clients[c]
	return ok
}

func (t *Topic) numClients() int {
	t.clientsLock.RLock()
	defer t.clientsLock.RUnlock()
	return len(t.clients)
}
