package animation

import "time"

// State is the playback state of a Player.
type State int

const (
	Stopped State = iota
	Playing
	Looping
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Looping:
		return "looping"
	default:
		return "stopped"
	}
}

// MarshalText makes State render as its name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name; unknown names read as Stopped.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "playing":
		*s = Playing
	case "looping":
		*s = Looping
	default:
		*s = Stopped
	}
	return nil
}

// Clock is the time source a Player measures elapsed playback with.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// Frame describes one sampling pass.
type Frame struct {
	Sequence uint64  `json:"sequence"`
	State    State   `json:"state"`
	Time     float64 `json:"time"`
	Duration float64 `json:"duration"`
	Applied  int     `json:"applied"`
}

// Player is the playback context of one avatar: the current animation with
// its name map, the playback clock, and the request sequence counter. At most
// one animation is current; installing another replaces it and restarts the
// clock without blending. A Player is not safe for concurrent use.
type Player struct {
	clock Clock

	state    State
	current  *AnimationData
	names    NameLookup
	duration float64
	started  time.Time

	issued    uint64
	installed uint64

	idle      *AnimationData
	idleNames NameLookup
}

// NewPlayer returns a stopped player. A nil clock means SystemClock.
func NewPlayer(clock Clock) *Player {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Player{clock: clock}
}

// Begin hands out the sequence number for a new animation request. Numbers
// increase monotonically; take one when the request is issued, not when its
// response arrives.
func (p *Player) Begin() uint64 {
	p.issued++
	return p.issued
}

// Install makes data current if seq is newer than the installed animation and
// reports whether it did. A response to an older request than the one playing
// is stale and discarded. A nil data never replaces the current animation.
func (p *Player) Install(seq uint64, data *AnimationData, names NameLookup) bool {
	if data == nil || seq <= p.installed {
		return false
	}
	if seq > p.issued {
		p.issued = seq
	}
	p.current = data
	p.names = names
	p.installed = seq
	p.duration = ComputeDuration(data)
	p.started = p.clock.Now()
	p.state = Playing
	return true
}

// Play installs data under a fresh sequence number.
func (p *Player) Play(data *AnimationData, names NameLookup) bool {
	return p.Install(p.Begin(), data, names)
}

// Stop drops the current animation. The skeleton keeps its last pose.
func (p *Player) Stop() {
	p.current = nil
	p.names = nil
	p.duration = 0
	p.state = Stopped
}

// SetIdle stores an idle animation. It is not played automatically when the
// current animation ends; call PlayIdle to switch to it.
func (p *Player) SetIdle(data *AnimationData, names NameLookup) {
	p.idle = data
	p.idleNames = names
}

// HasIdle reports whether an idle animation is stored.
func (p *Player) HasIdle() bool { return p.idle != nil }

// PlayIdle makes the stored idle animation current.
func (p *Player) PlayIdle() bool {
	if p.idle == nil {
		return false
	}
	return p.Play(p.idle, p.idleNames)
}

// State returns the playback state.
func (p *Player) State() State { return p.state }

// Sequence returns the sequence number of the current animation.
func (p *Player) Sequence() uint64 { return p.installed }

// Duration returns the length of the current animation in seconds.
func (p *Player) Duration() float64 { return p.duration }

// Current returns the current animation, or nil.
func (p *Player) Current() *AnimationData { return p.current }

// Elapsed returns seconds since the clock was last (re)started.
func (p *Player) Elapsed() float64 {
	if p.state == Stopped {
		return 0
	}
	return p.clock.Now().Sub(p.started).Seconds()
}

// Tick samples the current animation at the playback clock and applies it to
// rig. Once the clock reaches the duration the clock restarts and the player
// loops. Without a current animation nothing is touched.
func (p *Player) Tick(rig Rig) Frame {
	if p.current == nil || p.state == Stopped {
		return Frame{Sequence: p.installed, State: Stopped}
	}

	now := p.clock.Now()
	elapsed := now.Sub(p.started).Seconds()
	t := elapsed
	if t > p.duration {
		t = p.duration
	}

	f := Frame{
		Sequence: p.installed,
		State:    p.state,
		Time:     t,
		Duration: p.duration,
		Applied:  SampleAndApply(rig, p.current, p.names, t, p.duration),
	}

	if elapsed >= p.duration {
		p.started = now
		p.state = Looping
	}
	return f
}

// SampleAt applies the current animation at an explicit time without touching
// the playback clock.
func (p *Player) SampleAt(rig Rig, t float64) Frame {
	f := Frame{Sequence: p.installed, State: p.state, Duration: p.duration}
	if p.current == nil {
		return f
	}
	f.Time = t
	if p.duration > 0 && t > p.duration {
		f.Time = p.duration
	}
	f.Applied = SampleAndApply(rig, p.current, p.names, t, p.duration)
	return f
}
