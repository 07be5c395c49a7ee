// Package actor implements one goroutine-per-satellite actor (spec.md
// §4.3, §9's "actor per satellite → goroutines/threads + mailbox" design
// note). Every mutation of a satellite's live state is serialized through
// its own inbox channel; there is no shared lock between satellites and no
// lock at all within one, since only the owning goroutine ever touches the
// state.
package actor

import (
	"context"
	"fmt"
	"sync"

	"github.com/stellarops/stellarops/internal/domain"
)

type opKind int

const (
	opGetState opKind = iota
	opUpdateEnergy
	opUpdateMemory
	opUpdatePosition
	opSetMode
)

type request struct {
	kind  opKind
	delta float64
	pos   domain.Position
	mode  domain.Mode
	reply chan reply
}

type reply struct {
	state domain.SatelliteState
	err   error
}

// Actor owns one satellite's live state behind an inbox channel.
type Actor struct {
	inbox    chan request
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	id       string
}

// Start launches the actor's owning goroutine for sat and returns its
// handle. The goroutine runs until Stop is called or ctx is cancelled.
func Start(ctx context.Context, sat domain.Satellite) *Actor {
	a := &Actor{
		inbox: make(chan request, 32),
		done:  make(chan struct{}),
		stop:  make(chan struct{}),
		id:    sat.ID,
	}
	go a.run(ctx, sat)
	return a
}

// ID returns the satellite id this actor owns.
func (a *Actor) ID() string { return a.id }

func (a *Actor) run(ctx context.Context, sat domain.Satellite) {
	defer close(a.done)
	defer func() {
		// A panic here must not take down the process — only this
		// satellite's goroutine. The registry's supervisor treats a
		// closed done channel as a crash and restarts the actor with
		// fresh default state.
		recover() //nolint:errcheck
	}()
	state := domain.SatelliteState{Satellite: sat, Alive: true}

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case req, ok := <-a.inbox:
			if !ok {
				return
			}
			switch req.kind {
			case opGetState:
				req.reply <- reply{state: state}
			case opUpdateEnergy:
				state.Energy = domain.ClampEnergy(state.Energy + req.delta)
				state.Mode = domain.EnergyToMode(state.Energy, state.Mode)
				req.reply <- reply{state: state}
			case opUpdateMemory:
				if err := domain.ValidateMemory(req.delta); err != nil {
					req.reply <- reply{err: err}
					continue
				}
				state.MemoryUsed = req.delta
				req.reply <- reply{state: state}
			case opUpdatePosition:
				state.Position = req.pos
				req.reply <- reply{state: state}
			case opSetMode:
				if !req.mode.Valid() {
					req.reply <- reply{err: domain.NewError(domain.KindValidation, "invalid satellite mode: "+string(req.mode))}
					continue
				}
				state.Mode = req.mode
				req.reply <- reply{state: state}
			}
		}
	}
}

func (a *Actor) send(ctx context.Context, req request) (domain.SatelliteState, error) {
	select {
	case <-a.stop:
		return domain.SatelliteState{}, domain.NewError(domain.KindNotFound, "actor stopped")
	default:
	}

	select {
	case a.inbox <- req:
	case <-a.done:
		return domain.SatelliteState{}, domain.NewError(domain.KindNotFound, "actor stopped")
	case <-ctx.Done():
		return domain.SatelliteState{}, domain.WrapError(domain.KindTimeout, "actor send timed out", ctx.Err())
	}

	select {
	case r := <-req.reply:
		return r.state, r.err
	case <-a.done:
		return domain.SatelliteState{}, domain.NewError(domain.KindNotFound, "actor stopped")
	case <-ctx.Done():
		return domain.SatelliteState{}, domain.WrapError(domain.KindTimeout, "actor reply timed out", ctx.Err())
	}
}

// GetState returns a snapshot of the satellite's current live state.
func (a *Actor) GetState(ctx context.Context) (domain.SatelliteState, error) {
	return a.send(ctx, request{kind: opGetState, reply: make(chan reply, 1)})
}

// UpdateEnergy applies a signed delta to the satellite's energy, clamping
// to [0,100] and recomputing mode per domain.EnergyToMode.
func (a *Actor) UpdateEnergy(ctx context.Context, delta float64) (domain.SatelliteState, error) {
	return a.send(ctx, request{kind: opUpdateEnergy, delta: delta, reply: make(chan reply, 1)})
}

// UpdateMemory sets the satellite's reported memory utilization.
func (a *Actor) UpdateMemory(ctx context.Context, value float64) (domain.SatelliteState, error) {
	return a.send(ctx, request{kind: opUpdateMemory, delta: value, reply: make(chan reply, 1)})
}

// UpdatePosition sets the satellite's last-known position.
func (a *Actor) UpdatePosition(ctx context.Context, pos domain.Position) (domain.SatelliteState, error) {
	return a.send(ctx, request{kind: opUpdatePosition, pos: pos, reply: make(chan reply, 1)})
}

// SetMode forces the satellite's operating mode, validating it first.
func (a *Actor) SetMode(ctx context.Context, mode domain.Mode) (domain.SatelliteState, error) {
	return a.send(ctx, request{kind: opSetMode, mode: mode, reply: make(chan reply, 1)})
}

// Stop terminates the actor's goroutine. Subsequent calls return an error.
// Calling Stop more than once is a no-op.
func (a *Actor) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
}

// Done returns a channel that closes once the actor's owning goroutine has
// exited, whether from Stop, context cancellation, or (in principle) a
// panic. The registry's supervisor watches this to detect a crash.
func (a *Actor) Done() <-chan struct{} { return a.done }

var _ domain.ActorHandle = (*Actor)(nil)

func (a *Actor) String() string { return fmt.Sprintf("actor(%s)", a.id) }
