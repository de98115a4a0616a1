// Package bus is the in-process pub/sub fabric services use to talk to each
// other: hierarchical topics with MQTT-style wildcards, retained messages
// and request/reply.
package bus

import (
	"context"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"candash-go/errcode"
)

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

// Topic is a sequence of comparable tokens, usually strings and ints.
// "+" matches exactly one token and "#" matches the remainder (including
// nothing) when used in a subscription.
type Topic []any

const (
	Single = "+"
	Multi  = "#"
)

// T builds a topic, panicking on a token that cannot be a map key.
func T(tokens ...any) Topic {
	for _, tok := range tokens {
		if tok == nil || !reflect.TypeOf(tok).Comparable() {
			panic("bus: topic token must be comparable")
		}
	}
	return Topic(tokens)
}

// Append returns a new topic with tokens added.
func (t Topic) Append(tokens ...any) Topic {
	out := make(Topic, 0, len(t)+len(tokens))
	out = append(out, t...)
	return append(out, T(tokens...)...)
}

func (t Topic) String() string {
	var sb strings.Builder
	for i, tok := range t {
		if i > 0 {
			sb.WriteByte('/')
		}
		switch v := tok.(type) {
		case string:
			sb.WriteString(v)
		case int:
			sb.WriteString(strconv.Itoa(v))
		default:
			sb.WriteString("?")
		}
	}
	return sb.String()
}

func (t Topic) wild() bool {
	for _, tok := range t {
		if tok == Single || tok == Multi {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

// CanReply reports whether the sender expects a reply.
func (m *Message) CanReply() bool { return len(m.ReplyTo) > 0 }

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// deliver never blocks; a full queue loses its oldest message.
func (s *Subscription) deliver(m *Message) {
	select {
	case s.ch <- m:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- m:
	default:
	}
}

// -----------------------------------------------------------------------------
// Trie node
// -----------------------------------------------------------------------------

type node struct {
	children map[any]*node
	subs     []*Subscription
	retained *Message
}

func (n *node) child(tok any, create bool) *node {
	if c, ok := n.children[tok]; ok || !create {
		return c
	}
	if n.children == nil {
		n.children = make(map[any]*node)
	}
	c := &node{}
	n.children[tok] = c
	return c
}

func (n *node) empty() bool {
	return len(n.subs) == 0 && len(n.children) == 0 && n.retained == nil
}

// matchSubs collects subscriptions whose pattern matches topic[i:].
func (n *node) matchSubs(topic Topic, i int, out []*Subscription) []*Subscription {
	if h := n.children[Multi]; h != nil {
		out = append(out, h.subs...)
	}
	if i == len(topic) {
		return append(out, n.subs...)
	}
	if c := n.children[topic[i]]; c != nil {
		out = c.matchSubs(topic, i+1, out)
	}
	if c := n.children[Single]; c != nil {
		out = c.matchSubs(topic, i+1, out)
	}
	return out
}

// matchRetained collects retained messages under topics matching pattern[i:].
func (n *node) matchRetained(pattern Topic, i int, out []*Message) []*Message {
	if i == len(pattern) {
		if n.retained != nil {
			out = append(out, n.retained)
		}
		return out
	}
	switch pattern[i] {
	case Multi:
		return n.allRetained(out)
	case Single:
		for tok, c := range n.children {
			if tok == Single || tok == Multi {
				continue
			}
			out = c.matchRetained(pattern, i+1, out)
		}
		return out
	}
	if c := n.children[pattern[i]]; c != nil {
		out = c.matchRetained(pattern, i+1, out)
	}
	return out
}

func (n *node) allRetained(out []*Message) []*Message {
	if n.retained != nil {
		out = append(out, n.retained)
	}
	for _, c := range n.children {
		out = c.allRetained(out)
	}
	return out
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu   sync.Mutex
	root *node
	qLen int
	seq  atomic.Uint32
}

// NewBus creates a bus whose subscriptions buffer queueLen messages.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{root: &node{}, qLen: queueLen}
}

// NewMessage builds a message; it is not published.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range sub.topic {
		n = n.child(tok, true)
	}
	n.subs = append(n.subs, sub)

	for _, m := range b.root.matchRetained(sub.topic, 0, nil) {
		sub.deliver(m)
	}
}

// Publish delivers msg to every matching subscription. A retained message
// with a nil payload clears the retained slot. Wildcard topics are dropped.
func (b *Bus) Publish(msg *Message) {
	if msg == nil || msg.Topic.wild() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.root.matchSubs(msg.Topic, 0, nil) {
		if msg.Retained && msg.Payload == nil {
			continue
		}
		s.deliver(msg)
	}

	if !msg.Retained {
		return
	}
	if msg.Payload == nil {
		b.clearRetained(msg.Topic)
		return
	}
	n := b.root
	for _, tok := range msg.Topic {
		n = n.child(tok, true)
	}
	n.retained = msg
}

func (b *Bus) clearRetained(topic Topic) {
	n := b.root
	stack := make([]*node, 0, len(topic))
	for _, tok := range topic {
		c := n.child(tok, false)
		if c == nil {
			return
		}
		stack = append(stack, n)
		n = c
	}
	n.retained = nil
	b.prune(topic, stack)
}

// prune removes empty nodes bottom-up along topic.
func (b *Bus) prune(topic Topic, stack []*node) {
	for i := len(topic) - 1; i >= 0; i-- {
		parent := stack[i]
		c := parent.children[topic[i]]
		if c == nil || !c.empty() {
			return
		}
		delete(parent.children, topic[i])
	}
}

func (b *Bus) unsubscribe(sub *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	stack := make([]*node, 0, len(sub.topic))
	for _, tok := range sub.topic {
		c := n.child(tok, false)
		if c == nil {
			return false
		}
		stack = append(stack, n)
		n = c
	}
	found := false
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			found = true
			break
		}
	}
	b.prune(sub.topic, stack)
	return found
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

// Connection groups the subscriptions of one service.
type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan *Message, c.bus.qLen),
		conn:  c,
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.bus.addSubscription(sub)
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call twice.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	owned := false
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			owned = true
			break
		}
	}
	c.mu.Unlock()
	if owned && c.bus.unsubscribe(sub) {
		close(sub.ch)
	}
}

// Disconnect closes every subscription of the connection.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, s := range subs {
		if c.bus.unsubscribe(s) {
			close(s.ch)
		}
	}
}

// -----------------------------------------------------------------------------
// Request / reply
// -----------------------------------------------------------------------------

// Request publishes msg with a fresh ReplyTo topic and returns the
// subscription the reply will arrive on. The caller unsubscribes.
func (c *Connection) Request(msg *Message) *Subscription {
	n := int(c.bus.seq.Add(1))
	msg.ReplyTo = T("_reply", c.id, n)
	sub := c.Subscribe(msg.ReplyTo)
	c.Publish(msg)
	return sub
}

// RequestWait sends msg and waits for the first reply or ctx expiry.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)
	select {
	case m, ok := <-sub.Channel():
		if !ok {
			return nil, errcode.PortClosed
		}
		return m, nil
	case <-ctx.Done():
		return nil, errcode.Timeout
	}
}

// Reply answers req on its ReplyTo topic. It reports false when req
// carries no reply address.
func (c *Connection) Reply(req *Message, payload any, retained bool) bool {
	if req == nil || !req.CanReply() {
		return false
	}
	c.Publish(c.NewMessage(req.ReplyTo, payload, retained))
	return true
}
