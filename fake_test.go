package mqtt

import (
	"context"
	"sync"
)

type message struct {
	topic   string
	payload []byte
}

// fakeSession records what would have been sent to the broker
type fakeSession struct {
	mu           sync.Mutex
	subscribed   []string
	published    []message
	disconnected bool
	publishErr   error
	// if set, Publish waits for it to be closed or its context to end
	publishBlock chan struct{}
	inflight     int
}

func (s *fakeSession) Subscribe(_ context.Context, topic string, _ byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = append(s.subscribed, topic)
	return nil
}

func (s *fakeSession) Publish(ctx context.Context, topic string, _ byte, payload []byte) error {
	s.mu.Lock()
	block := s.publishBlock
	s.inflight++
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			s.mu.Lock()
			s.inflight--
			s.mu.Unlock()
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	if s.publishErr != nil {
		return s.publishErr
	}
	s.published = append(s.published, message{topic: topic, payload: payload})
	return nil
}

func (s *fakeSession) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected = true
	return nil
}

func (s *fakeSession) Subscribed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.subscribed...)
}

func (s *fakeSession) Published() []message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message(nil), s.published...)
}

func (s *fakeSession) Inflight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight
}

func (s *fakeSession) Disconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

// fakeDialer hands out fakeSessions
type fakeDialer struct {
	mu       sync.Mutex
	err      error
	block    chan struct{} // if set, Dial waits for it to be closed
	dials    int
	addr     string
	handlers SessionHandlers
	session  *fakeSession
}

func (d *fakeDialer) Dial(ctx context.Context, addr string, _ Config, h SessionHandlers) (Session, error) {
	d.mu.Lock()
	d.dials++
	d.addr = addr
	d.handlers = h
	block, err := d.block, d.err
	d.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}

	session := &fakeSession{}
	d.mu.Lock()
	d.session = session
	d.mu.Unlock()
	return session, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) Session() *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

func (d *fakeDialer) Handlers() SessionHandlers {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handlers
}

// deliver a message as if received on the latest session
func (d *fakeDialer) deliver(topic string, payload string) {
	d.Handlers().OnMessage(topic, []byte(payload))
}

// drop the latest session as if the network failed
func (d *fakeDialer) drop(err error) {
	d.Handlers().OnConnectionLost(err)
}

type transition struct {
	state State
	err   error
}

// stateRecorder collects state transitions
type stateRecorder struct {
	mu          sync.Mutex
	transitions []transition
}

func (r *stateRecorder) record(state State, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, transition{state: state, err: err})
}

func (r *stateRecorder) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make([]State, len(r.transitions))
	for i, t := range r.transitions {
		states[i] = t.state
	}
	return states
}

func (r *stateRecorder) Last() transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.transitions) == 0 {
		return transition{}
	}
	return r.transitions[len(r.transitions)-1]
}
