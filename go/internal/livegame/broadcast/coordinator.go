package broadcast

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/courtside/go/internal/livegame/metrics"
	"github.com/mcdev12/courtside/go/internal/livegame/session"
	"github.com/mcdev12/courtside/go/internal/livegame/wire"
)

// Subscriber is one client connection as seen by the coordinator
type Subscriber interface {
	ID() string
	// Send queues an encoded frame without blocking. It returns false when
	// the subscriber cannot keep up or is already closed.
	Send(data []byte) bool
	// Close disconnects the subscriber. It may be called more than once.
	Close()
}

// Coordinator fans session updates out to subscribers. Every operation
// goes through one queue drained by a single goroutine, so a subscriber
// sees a session's broadcasts in the order the session published them.
type Coordinator struct {
	ops  chan op
	done chan struct{}

	// owned by the loop goroutine
	games       map[string]map[string]Subscriber
	memberships map[string]map[string]struct{}
}

type op interface{ isOp() }

type subscribeOp struct {
	gameID  string
	sub     Subscriber
	current func() session.State
}

type unsubscribeOp struct {
	gameID string
	subID  string
}

type stateOp struct {
	state session.State
}

type presenceOp struct {
	gameID string
	count  int
}

type forceLeaveOp struct {
	gameID string
	reason string
}

type sendOp struct {
	sub     Subscriber
	payload any
}

type countOp struct {
	gameID string
	reply  chan int
}

func (subscribeOp) isOp()   {}
func (unsubscribeOp) isOp() {}
func (stateOp) isOp()       {}
func (presenceOp) isOp()    {}
func (forceLeaveOp) isOp()  {}
func (sendOp) isOp()        {}
func (countOp) isOp()       {}

// NewCoordinator creates a coordinator whose queue holds queueSize operations
func NewCoordinator(queueSize int) *Coordinator {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Coordinator{
		ops:         make(chan op, queueSize),
		done:        make(chan struct{}),
		games:       make(map[string]map[string]Subscriber),
		memberships: make(map[string]map[string]struct{}),
	}
}

// Start processes queued operations until ctx is cancelled
func (c *Coordinator) Start(ctx context.Context) {
	defer close(c.done)
	log.Info().Msg("broadcast coordinator started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("broadcast coordinator shutting down")
			return
		case o := <-c.ops:
			c.handle(o)
		}
	}
}

// enqueue blocks until the operation is queued. Dropping here would break
// revision order, so backpressure goes to the caller instead.
func (c *Coordinator) enqueue(o op) bool {
	select {
	case c.ops <- o:
		return true
	case <-c.done:
		return false
	}
}

// Subscribe adds sub to gameID. current is evaluated on the coordinator
// goroutine and its result sent to sub first, so the snapshot is never
// older than a broadcast the subscriber already missed.
func (c *Coordinator) Subscribe(gameID string, sub Subscriber, current func() session.State) {
	c.enqueue(subscribeOp{gameID: gameID, sub: sub, current: current})
}

func (c *Coordinator) Unsubscribe(gameID, subID string) {
	c.enqueue(unsubscribeOp{gameID: gameID, subID: subID})
}

// PublishState broadcasts an accepted state to every subscriber of its game
func (c *Coordinator) PublishState(state session.State) {
	c.enqueue(stateOp{state: state})
}

// PublishPresence broadcasts a viewer count change
func (c *Coordinator) PublishPresence(gameID string, count int) {
	c.enqueue(presenceOp{gameID: gameID, count: count})
}

// ForceLeave tells every subscriber of gameID that the session is gone and
// forgets them. Connections stay open.
func (c *Coordinator) ForceLeave(gameID, reason string) {
	c.enqueue(forceLeaveOp{gameID: gameID, reason: reason})
}

// Send delivers payload to a single subscriber, in order with broadcasts
func (c *Coordinator) Send(sub Subscriber, payload any) {
	c.enqueue(sendOp{sub: sub, payload: payload})
}

// SubscriberCount returns how many subscribers gameID has, or zero once
// the coordinator stopped.
func (c *Coordinator) SubscriberCount(gameID string) int {
	reply := make(chan int, 1)
	if !c.enqueue(countOp{gameID: gameID, reply: reply}) {
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-c.done:
		return 0
	}
}

func (c *Coordinator) handle(o op) {
	switch o := o.(type) {
	case subscribeOp:
		c.subscribe(o)

	case unsubscribeOp:
		c.remove(o.gameID, o.subID)

	case stateOp:
		c.broadcast(o.state.GameID, wire.NewSessionState(o.state))

	case presenceOp:
		c.broadcast(o.gameID, wire.NewPresence(o.gameID, o.count))

	case forceLeaveOp:
		c.forceLeave(o.gameID, o.reason)

	case sendOp:
		data, err := wire.Encode(o.payload)
		if err != nil {
			log.Error().Err(err).Str("connection_id", o.sub.ID()).Msg("failed to marshal frame")
			return
		}
		if !o.sub.Send(data) {
			c.drop(o.sub)
		}

	case countOp:
		o.reply <- len(c.games[o.gameID])
	}
}

func (c *Coordinator) subscribe(o subscribeOp) {
	subs, ok := c.games[o.gameID]
	if !ok {
		subs = make(map[string]Subscriber)
		c.games[o.gameID] = subs
	}
	subs[o.sub.ID()] = o.sub

	games, ok := c.memberships[o.sub.ID()]
	if !ok {
		games = make(map[string]struct{})
		c.memberships[o.sub.ID()] = games
	}
	games[o.gameID] = struct{}{}

	if o.current == nil {
		return
	}
	data, err := wire.Encode(wire.NewSessionState(o.current()))
	if err != nil {
		log.Error().Err(err).Str("game_id", o.gameID).Msg("failed to marshal snapshot")
		return
	}
	if !o.sub.Send(data) {
		c.drop(o.sub)
	}
}

func (c *Coordinator) broadcast(gameID string, frame any) {
	subs := c.games[gameID]
	if len(subs) == 0 {
		return
	}

	// Marshal the frame once
	data, err := wire.Encode(frame)
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID).Msg("failed to marshal frame for broadcast")
		return
	}

	var slow []Subscriber
	for _, sub := range subs {
		if !sub.Send(data) {
			slow = append(slow, sub)
		}
	}
	for _, sub := range slow {
		c.drop(sub)
	}

	log.Debug().
		Str("game_id", gameID).
		Int("subscribers", len(subs)).
		Msg("frame broadcasted")
}

func (c *Coordinator) forceLeave(gameID, reason string) {
	subs := c.games[gameID]
	if len(subs) > 0 {
		data, err := wire.Encode(wire.NewForcedLeave(gameID, reason))
		if err != nil {
			log.Error().Err(err).Str("game_id", gameID).Msg("failed to marshal forced leave")
		} else {
			for _, sub := range subs {
				sub.Send(data)
			}
		}
	}

	for id := range subs {
		c.remove(gameID, id)
	}

	log.Info().
		Str("game_id", gameID).
		Str("reason", reason).
		Int("subscribers", len(subs)).
		Msg("session participants forced to leave")
}

func (c *Coordinator) remove(gameID, subID string) {
	if subs, ok := c.games[gameID]; ok {
		delete(subs, subID)
		if len(subs) == 0 {
			delete(c.games, gameID)
		}
	}
	if games, ok := c.memberships[subID]; ok {
		delete(games, gameID)
		if len(games) == 0 {
			delete(c.memberships, subID)
		}
	}
}

// drop removes a slow subscriber from every game and closes it. Its
// connection pumps then run the normal disconnect path.
func (c *Coordinator) drop(sub Subscriber) {
	id := sub.ID()
	for gameID := range c.memberships[id] {
		if subs, ok := c.games[gameID]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(c.games, gameID)
			}
		}
	}
	delete(c.memberships, id)

	sub.Close()
	metrics.BroadcastDropped.Inc()
	log.Warn().Str("connection_id", id).Msg("subscriber send buffer full, closing connection")
}
