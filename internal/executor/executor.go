// Package executor implements the command executor (spec.md §4.5): for
// every dispatch event it selects a ground station, walks the command
// through acknowledge/execute/complete-or-fail with simulated ground-link
// delays, and reports the outcome back through domain.CommandSink.
//
// Ground-station selection is grounded on the teacher's
// scheduler.go NodeCandidate/ScoreNode/RankNodes weighted matcher,
// simplified to the one factor spec.md actually asks for ("prefer lower
// load") plus an online/offline hard filter mirroring ScoreNode's hard
// disqualification for missing hardware.
package executor

import (
	"context"
	"log"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/stellarops/stellarops/internal/domain"
	"github.com/stellarops/stellarops/internal/infra/dsa"
	"github.com/stellarops/stellarops/internal/queue"
)

// GroundStation is a candidate relay for a command's transmission.
type GroundStation struct {
	ID     string
	Online bool
	Load   float64 // [0,1], lower is better
}

// Delay is a (base, jitter) pair for one phase of execution.
type Delay struct {
	Base   time.Duration
	Jitter time.Duration
}

// delayTable is spec.md §4.5's per-type processing delay table.
var delayTable = map[string]Delay{
	"collect_telemetry": {60 * time.Second, 5 * time.Second},
	"set_mode":          {time.Second, 2 * time.Second},
	"system_diagnostic": {30 * time.Second, 5 * time.Second},
	"update_energy":     {500 * time.Millisecond, time.Second},
	"download_data":     {2 * time.Second, 4 * time.Second},
	"reboot":            {60 * time.Second, 5 * time.Second},
}

var defaultDelay = Delay{time.Second, 2 * time.Second}

func delayFor(cmdType string) Delay {
	if d, ok := delayTable[cmdType]; ok {
		return d
	}
	return defaultDelay
}

// transmissionDelay is spec.md §4.5 step 3's fixed base_transmission/jitter.
var transmissionDelay = Delay{500 * time.Millisecond, 500 * time.Millisecond}

// Registry is the subset of domain.Registry the executor needs: looking up
// an actor to run type handlers against, and restarting one for "reboot".
type Registry interface {
	Lookup(id string) (domain.ActorHandle, bool)
	Start(ctx context.Context, sat domain.Satellite) (domain.ActorHandle, error)
	Stop(ctx context.Context, id string) error
}

// GroundStationProvider supplies the current set of known ground stations.
type GroundStationProvider interface {
	Stations() []GroundStation
}

// Executor consumes dispatch events and drives each command to a terminal
// acknowledge/execute/complete-or-fail outcome.
type Executor struct {
	sink       domain.CommandSink
	registry   Registry
	stations   GroundStationProvider
	lastFailed sync.Map // command ID -> ground station ID that last failed it
	now        func() time.Time
	sleep      func(time.Duration)
	rand       func(max time.Duration) time.Duration
	logger     *log.Logger
}

// New builds an Executor. sink is normally the command queue (it satisfies
// domain.CommandSink); registry resolves satellite actors for type
// handlers and reboot.
func New(sink domain.CommandSink, registry Registry, stations GroundStationProvider) *Executor {
	return &Executor{
		sink:     sink,
		registry: registry,
		stations: stations,
		now:      time.Now,
		sleep:    time.Sleep,
		rand:     jitterDuration,
		logger:   log.New(os.Stderr, "[executor] ", log.LstdFlags),
	}
}

func jitterDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

// Handle spawns one detached worker per dispatch event (spec.md §4.5:
// "workers may run in parallel across different satellites").
func (e *Executor) Handle(ev queue.DispatchEvent) {
	go e.run(ev.Command)
}

func (e *Executor) run(cmd domain.Command) {
	start := e.now()
	station, err := e.selectStation(cmd.ID)
	if err != nil {
		e.logger.Printf("command %s: no ground station available", cmd.ID)
		e.sink.Fail(cmd.ID, string(domain.KindNoGroundStation))
		return
	}

	e.sink.Acknowledge(cmd.ID)
	e.sleep(transmissionDelay.Base + e.rand(transmissionDelay.Jitter))

	e.sink.StartExecution(cmd.ID)

	handle, alive := e.registry.Lookup(cmd.SatelliteID)
	if !alive {
		e.sleep(delayFor(cmd.Type).Base)
		e.recordStationFailure(cmd.ID, station.ID)
		e.logger.Printf("command %s: satellite %s not running via station %s", cmd.ID, cmd.SatelliteID, station.ID)
		e.sink.Fail(cmd.ID, "satellite_not_running")
		return
	}

	d := delayFor(cmd.Type)
	e.sleep(d.Base + e.rand(d.Jitter))

	result, err := e.executeType(context.Background(), cmd, handle)
	if err != nil {
		e.recordStationFailure(cmd.ID, station.ID)
		e.logger.Printf("command %s: type %s failed via station %s: %v", cmd.ID, cmd.Type, station.ID, err)
		e.sink.Fail(cmd.ID, err.Error())
		return
	}
	e.logger.Printf("command %s: type %s completed via station %s in %s", cmd.ID, cmd.Type, station.ID, e.now().Sub(start))
	e.sink.Complete(cmd.ID, result)
}

// selectStation picks an online station, preferring lower load (spec.md
// §4.5 step 1: "prefer lower load"). If this command previously failed
// transmission through a station, the consistent-hash ring is consulted to
// prefer a *different* one on retry (SPEC_FULL.md §12's ground-station
// affinity), the same LookupN-and-skip-the-failed-node idiom as the
// teacher's RetryQueue.SuggestNode — but only among stations that are
// still tied for lowest load, so affinity never overrides the documented
// load-based rule.
func (e *Executor) selectStation(commandID string) (GroundStation, error) {
	stations := e.stations.Stations()
	var online []GroundStation
	for _, s := range stations {
		if s.Online {
			online = append(online, s)
		}
	}
	if len(online) == 0 {
		return GroundStation{}, domain.ErrNoGroundStation
	}

	sort.Slice(online, func(i, j int) bool { return online[i].Load < online[j].Load })

	lowest := online[0].Load
	var tied []GroundStation
	for _, s := range online {
		if s.Load == lowest {
			tied = append(tied, s)
		}
	}
	if len(tied) == 1 {
		return tied[0], nil
	}

	failedID, hadFailure := e.lastFailed.Load(commandID)
	if !hadFailure {
		return tied[0], nil
	}

	ring := dsa.NewHashRing(dsa.DefaultHashRingConfig())
	for _, s := range tied {
		ring.AddNode(s.ID)
	}
	for _, pick := range ring.LookupN(commandID, len(tied)) {
		if pick != failedID.(string) {
			for _, s := range tied {
				if s.ID == pick {
					return s, nil
				}
			}
		}
	}
	return tied[0], nil
}

// failureRecorder is implemented by ground station providers that want to
// quarantine stations after repeated transmission failures (see
// internal/daemon's staticStationProvider). Optional: providers that don't
// implement it simply never quarantine.
type failureRecorder interface {
	RecordFailure(stationID string)
}

func (e *Executor) recordStationFailure(commandID, stationID string) {
	e.lastFailed.Store(commandID, stationID)
	if fr, ok := e.stations.(failureRecorder); ok {
		fr.RecordFailure(stationID)
	}
}

// executeType runs the type-specific handler of spec.md §4.5.
func (e *Executor) executeType(ctx context.Context, cmd domain.Command, handle domain.ActorHandle) (map[string]any, error) {
	switch cmd.Type {
	case "set_mode":
		modeStr, _ := cmd.Payload["mode"].(string)
		mode := domain.Mode(modeStr)
		st, err := handle.SetMode(ctx, mode)
		if err != nil {
			return nil, err
		}
		return map[string]any{"mode": st.Mode}, nil

	case "collect_telemetry":
		st, err := handle.GetState(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"energy":      st.Energy,
			"memory_used": st.MemoryUsed,
			"mode":        st.Mode,
			"position":    st.Position,
		}, nil

	case "update_energy":
		delta, _ := cmd.Payload["delta"].(float64)
		st, err := handle.UpdateEnergy(ctx, delta)
		if err != nil {
			return nil, err
		}
		return map[string]any{"energy": st.Energy, "mode": st.Mode}, nil

	case "system_diagnostic":
		st, err := handle.GetState(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"alive":  st.Alive,
			"mode":   st.Mode,
			"energy": st.Energy,
		}, nil

	case "download_data":
		sizeBytes, _ := cmd.Payload["size_bytes"].(float64)
		downloadDelay := time.Duration(sizeBytes/1024) * time.Millisecond
		if downloadDelay > time.Second {
			downloadDelay = time.Second
		}
		e.sleep(downloadDelay)
		return map[string]any{"bytes": sizeBytes}, nil

	case "reboot":
		sat := domain.Satellite{ID: cmd.SatelliteID}
		if err := e.registry.Stop(ctx, cmd.SatelliteID); err != nil {
			return nil, err
		}
		if _, err := e.registry.Start(ctx, sat); err != nil {
			return nil, err
		}
		return map[string]any{"rebooted": true}, nil

	default:
		return map[string]any{"synthetic": true, "type": cmd.Type}, nil
	}
}
