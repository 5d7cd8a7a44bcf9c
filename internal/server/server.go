package server

import (
	"context"
	"log"
	"sync"

	"github.com/gatherly/gatherly/internal/auth"
	"github.com/gatherly/gatherly/internal/database"
	"github.com/gatherly/gatherly/internal/stats"
	"github.com/gatherly/gatherly/internal/types"
)

// ChatServer owns the topic table and the session registry. Topics are
// created on first subscribe and unloaded when their last subscriber
// leaves.
type ChatServer struct {
	log             *log.Logger
	db              database.Repository
	authz           *auth.Oracle
	stats           stats.Provider
	clients         map[*Client]struct{}
	clientsLock     sync.RWMutex
	topics          map[TopicKey]*Topic
	topicsLock      sync.RWMutex
	subscribeChan   chan *ClientMessage
	registerChan    chan *Client
	deregisterChan  chan *Client
	broadcastChan   chan *topicBroadcast
	unloadTopicChan chan TopicKey
	stopChan        chan *stopReq
}

// topicBroadcast carries a message persisted outside the websocket path,
// such as one created through the REST endpoint.
type topicBroadcast struct {
	key     TopicKey
	payload *types.MessagePayload
}

type stopReq struct {
	done chan struct{}
}

func NewChatServer(logger *log.Logger, db database.Repository, authz *auth.Oracle, st stats.Provider) *ChatServer {
	cs := &ChatServer{
		log:             logger,
		db:              db,
		authz:           authz,
		stats:           st,
		clients:         make(map[*Client]struct{}),
		topics:          make(map[TopicKey]*Topic),
		subscribeChan:   make(chan *ClientMessage, 256),
		registerChan:    make(chan *Client, 256),
		deregisterChan:  make(chan *Client, 256),
		broadcastChan:   make(chan *topicBroadcast, 256),
		unloadTopicChan: make(chan TopicKey, 256),
		stopChan:        make(chan *stopReq),
	}

	st.RegisterMetric("ActiveSessions")
	st.RegisterMetric("ActiveTopics")
	st.RegisterMetric("MessagesBroadcast")
	st.RegisterMetric("MessagesDropped")

	return cs
}

func (cs *ChatServer) Run() {
	for {
		select {
		case msg := <-cs.subscribeChan:
			cs.handleSubscribe(msg)
		case c := <-cs.registerChan:
			cs.addClient(c)
			cs.stats.Incr("ActiveSessions")
			cs.log.Printf("session %s connected for user %d", c.sessionId, c.user.Id)
		case c := <-cs.deregisterChan:
			if cs.removeClient(c) {
				cs.stats.Decr("ActiveSessions")
				cs.log.Printf("session %s disconnected", c.sessionId)
			}
		case b := <-cs.broadcastChan:
			if t, ok := cs.getTopic(b.key); ok {
				select {
				case t.broadcastChan <- b.payload:
				default:
					cs.log.Printf("broadcast to %s dropped, topic busy", b.key)
				}
			}
		case key := <-cs.unloadTopicChan:
			cs.unloadTopic(key)
		case req := <-cs.stopChan:
			cs.handleStop()
			close(req.done)
			return
		}
	}
}

// handleSubscribe receives requests already vetted by the session's access
// gate. It resolves the topic actor and hands the join off to it.
func (cs *ChatServer) handleSubscribe(msg *ClientMessage) {
	key := TopicKey{GroupId: msg.Subscribe.GroupId, EventId: msg.Subscribe.EventId}

	t, ok := cs.getTopic(key)
	if !ok {
		t = NewTopic(key, cs)
		cs.putTopic(key, t)
		go t.run()
		cs.stats.Incr("ActiveTopics")
		cs.log.Printf("loaded topic %s", key)
	}

	select {
	case t.joinChan <- msg:
	default:
		msg.client.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (cs *ChatServer) unloadTopic(key TopicKey) {
	t, ok := cs.getTopic(key)
	if !ok {
		return
	}

	req := &exitReq{ifEmpty: true, done: make(chan bool)}
	t.exitChan <- req
	if <-req.done {
		cs.deleteTopic(key)
		cs.stats.Decr("ActiveTopics")
		cs.log.Printf("unloaded topic %s", key)
	}
}

func (cs *ChatServer) handleStop() {
	cs.topicsLock.Lock()
	for key, t := range cs.topics {
		req := &exitReq{done: make(chan bool)}
		t.exitChan <- req
		<-req.done
		delete(cs.topics, key)
	}
	cs.topicsLock.Unlock()

	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	for c := range cs.clients {
		c.stopClient()
		delete(cs.clients, c)
	}
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.registerChan <- c
}

func (cs *ChatServer) DeregisterClient(c *Client) {
	cs.deregisterChan <- c
}

// Publish fans a persisted message out to the topic's subscribers, if the
// topic is loaded. Messages for unloaded topics have no subscribers and
// are dropped.
func (cs *ChatServer) Publish(key TopicKey, payload *types.MessagePayload) {
	select {
	case cs.broadcastChan <- &topicBroadcast{key: key, payload: payload}:
	default:
		cs.log.Printf("publish to %s dropped, server busy", key)
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	req := &stopReq{done: make(chan struct{})}

	select {
	case cs.stopChan <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
}

func (cs *ChatServer) removeClient(c *Client) bool {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return false
	}
	delete(cs.clients, c)
	return true
}

func (cs *ChatServer) NumClients() int {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()
	return len(cs.clients)
}

func (cs *ChatServer) NumTopics() int {
	cs.topicsLock.RLock()
	defer cs.topicsLock.RUnlock()
	return len(cs.topics)
}

func (cs *ChatServer) getTopic(key TopicKey) (*Topic, bool) {
	cs.topicsLock.RLock()
	defer cs.topicsLock.RUnlock()
	t, ok := cs.topics[key]
	return t, ok
}

func (cs *ChatServer) putTopic(key TopicKey, t *Topic) {
	cs.topicsLock.Lock()
	defer cs.topicsLock.Unlock()
	cs.topics[key] = t
}

func (cs *ChatServer) deleteTopic(key TopicKey) {
	cs.topicsLock.Lock()
	defer cs.topicsLock.Unlock()
	delete(cs.topics, key)
}
