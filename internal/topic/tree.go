// Package topic implements the subscription trie used to route inbound
// PUBLISH packets to local callbacks. It is grounded on the same
// level-by-level trie shape used by in-process MQTT brokers: each path
// segment is a map key, '+' and '#' are reserved keys with wildcard
// semantics, and a node survives only while it is a subscription terminus
// or has at least one descendant that is.
package topic

import (
	"fmt"
	"strings"
	"sync"
)

const (
	singleLevelWildcard = "+"
	multiLevelWildcard  = "#"
)

// Subscription is the payload attached to a trie node at the point a
// filter terminates. Cleanup runs whenever the slot is overwritten,
// removed, or the tree is torn down, so callers can release user data
// without a separate bookkeeping pass.
type Subscription struct {
	QoS      uint8
	Callback func(topic string, payload []byte, qos uint8, retained, dup bool)
	User     interface{}
	Cleanup  func(user interface{})
}

// node is a single path segment in the trie. It exists iff it is a
// subscription terminus or has at least one descendant terminus; empty
// branches are pruned by Remove.
type node struct {
	children     map[string]*node
	subscription *Subscription
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

// Tree is the concurrency-safe subscription trie for one connection.
// Mutations go through Begin/Commit/Rollback so a batch of inserts and
// removes (e.g. a multi-topic SUBSCRIBE) becomes visible to Publish as a
// single atomic step.
type Tree struct {
	mu   sync.RWMutex
	root *node
}

// New returns an empty subscription tree.
func New() *Tree {
	return &Tree{root: newNode()}
}

type actionKind int

const (
	actionInsert actionKind = iota
	actionRemove
)

type action struct {
	kind   actionKind
	levels []string
	sub    Subscription
}

// Txn batches Insert/Remove calls for one atomic Commit. The zero value
// is not usable; obtain one from Tree.Begin.
type Txn struct {
	tree    *Tree
	actions []action
}

// Begin starts a transaction against t. No tree mutation happens until
// Commit is called.
func (t *Tree) Begin() *Txn {
	return &Txn{tree: t}
}

// Insert stages a subscription for filter. Filter grammar follows MQTT:
// levels separated by '/', '+' matches exactly one level, '#' matches
// zero or more trailing levels and must be the final segment.
func (txn *Txn) Insert(filter string, sub Subscription) error {
	levels, err := splitFilter(filter)
	if err != nil {
		return err
	}
	txn.actions = append(txn.actions, action{kind: actionInsert, levels: levels, sub: sub})
	return nil
}

// Remove stages the removal of filter's subscription, if any.
func (txn *Txn) Remove(filter string) error {
	levels, err := splitFilter(filter)
	if err != nil {
		return err
	}
	txn.actions = append(txn.actions, action{kind: actionRemove, levels: levels})
	return nil
}

// Rollback discards all staged actions without touching the tree.
func (txn *Txn) Rollback() {
	txn.actions = nil
}

// Commit applies every staged action atomically: a concurrent Publish
// sees either the tree before this call or the tree after, never a
// partial batch.
func (txn *Txn) Commit() {
	if len(txn.actions) == 0 {
		return
	}
	t := txn.tree
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range txn.actions {
		switch a.kind {
		case actionInsert:
			insert(t.root, a.levels, a.sub)
		case actionRemove:
			remove(t.root, a.levels)
		}
	}
	txn.actions = nil
}

func insert(n *node, levels []string, sub Subscription) {
	if len(levels) == 0 {
		if n.subscription != nil && n.subscription.Cleanup != nil {
			n.subscription.Cleanup(n.subscription.User)
		}
		subCopy := sub
		n.subscription = &subCopy
		return
	}
	level := levels[0]
	child, ok := n.children[level]
	if !ok {
		child = newNode()
		n.children[level] = child
	}
	insert(child, levels[1:], sub)
}

// remove descends exactly along levels, clears the terminal
// subscription if present, and prunes any node left with neither a
// subscription nor children on the way back up.
func remove(n *node, levels []string) {
	if len(levels) == 0 {
		if n.subscription != nil && n.subscription.Cleanup != nil {
			n.subscription.Cleanup(n.subscription.User)
		}
		n.subscription = nil
		return
	}
	level := levels[0]
	child, ok := n.children[level]
	if !ok {
		return
	}
	remove(child, levels[1:])
	if child.subscription == nil && len(child.children) == 0 {
		delete(n.children, level)
	}
}

// Publish walks the tree level-by-level against a wildcard-free topic,
// firing callback exactly once for every matching subscription. At each
// step every candidate node explores its children in the order: exact
// segment, '+', '#'. A '#' child is a terminal match regardless of how
// many topic segments remain.
// Publish walks the trie delivering payload to every subscription whose
// filter matches topicName, and reports whether at least one matched.
func (t *Tree) Publish(topicName string, payload []byte, qos uint8, retained, dup bool) (matched bool, err error) {
	levels, err := splitTopicName(topicName)
	if err != nil {
		return false, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	frontier := []*node{t.root}
	for _, level := range levels {
		var next []*node
		for _, n := range frontier {
			if child, ok := n.children[level]; ok {
				next = append(next, child)
			}
			if child, ok := n.children[singleLevelWildcard]; ok {
				next = append(next, child)
			}
			if child, ok := n.children[multiLevelWildcard]; ok {
				if fireTerminus(child, topicName, payload, qos, retained, dup) {
					matched = true
				}
			}
		}
		frontier = next
	}
	for _, n := range frontier {
		if fireTerminus(n, topicName, payload, qos, retained, dup) {
			matched = true
		}
		// '#' matches zero trailing levels too: a node reached by
		// consuming the topic's final level can still have a '#'
		// child nobody has visited yet.
		if child, ok := n.children[multiLevelWildcard]; ok {
			if fireTerminus(child, topicName, payload, qos, retained, dup) {
				matched = true
			}
		}
	}
	return matched, nil
}

func fireTerminus(n *node, topicName string, payload []byte, qos uint8, retained, dup bool) bool {
	if n.subscription == nil {
		return false
	}
	deliverQoS := qos
	if n.subscription.QoS < deliverQoS {
		deliverQoS = n.subscription.QoS
	}
	n.subscription.Callback(topicName, payload, deliverQoS, retained, dup)
	return true
}

// Close invokes Cleanup on every remaining subscription and discards the
// tree. Intended for connection teardown.
func (t *Tree) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	closeNode(t.root)
	t.root = newNode()
}

func closeNode(n *node) {
	if n.subscription != nil && n.subscription.Cleanup != nil {
		n.subscription.Cleanup(n.subscription.User)
		n.subscription = nil
	}
	for _, child := range n.children {
		closeNode(child)
	}
}

// splitFilter validates and splits a subscribe/unsubscribe filter.
// '#' is valid only as the final segment and must occupy it alone;
// '+' must occupy its segment alone wherever it appears. Empty
// intermediate segments (e.g. "a//b") are legal.
func splitFilter(filter string) ([]string, error) {
	if filter == "" {
		return nil, fmt.Errorf("topic: filter must not be empty")
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, multiLevelWildcard) {
			if level != multiLevelWildcard {
				return nil, fmt.Errorf("topic: %q must occupy its entire level", multiLevelWildcard)
			}
			if i != len(levels)-1 {
				return nil, fmt.Errorf("topic: %q is only valid as the final level", multiLevelWildcard)
			}
		}
		if strings.Contains(level, singleLevelWildcard) && level != singleLevelWildcard {
			return nil, fmt.Errorf("topic: %q must occupy its entire level", singleLevelWildcard)
		}
	}
	return levels, nil
}

// splitTopicName validates and splits a publish topic name. Topic
// names carried on the wire never contain wildcards.
func splitTopicName(topicName string) ([]string, error) {
	if topicName == "" {
		return nil, fmt.Errorf("topic: name must not be empty")
	}
	if strings.ContainsAny(topicName, "+#") {
		return nil, fmt.Errorf("topic: name must not contain wildcard characters")
	}
	return strings.Split(topicName, "/"), nil
}
