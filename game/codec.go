package game

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedMessage is returned for any wire string that does not parse.
var ErrMalformedMessage = errors.New("malformed message")

// Snapshot is the wire form of a world snapshot: a timestamp in unix
// milliseconds and one compact record per player.
//
// Record layout: "x,y;rotation;lastInputSeq;lastAngleSeq[;vx,vy;thrust]".
// Positions carry 2 decimals, rotation and velocity 3.
type Snapshot struct {
	T       int64             `json:"t" msgpack:"t"`
	Players map[string]string `json:"players" msgpack:"players"`
}

// PlayerSnapshot is one player's authoritative state inside a snapshot.
type PlayerSnapshot struct {
	ID           string
	Position     Vector
	Rotation     float64
	LastInputSeq uint32
	LastAngleSeq uint32

	// HasMotion is false when the record omitted velocity and thrust.
	HasMotion bool
	Velocity  Vector
	Driving   bool
}

// DecodedSnapshot is a Snapshot with typed fields.
type DecodedSnapshot struct {
	Time    int64
	Players map[string]PlayerSnapshot
}

// EncodeSnapshot packs player states into the wire snapshot.
func EncodeSnapshot(now time.Time, players []PlayerSnapshot) Snapshot {
	s := Snapshot{T: now.UnixMilli(), Players: make(map[string]string, len(players))}
	for _, p := range players {
		s.Players[p.ID] = encodePlayer(p)
	}
	return s
}

func encodePlayer(p PlayerSnapshot) string {
	var b strings.Builder
	b.Grow(48)
	b.WriteString(formatFloat(p.Position.X, 2))
	b.WriteByte(',')
	b.WriteString(formatFloat(p.Position.Y, 2))
	b.WriteByte(';')
	b.WriteString(formatFloat(p.Rotation, 3))
	b.WriteByte(';')
	b.WriteString(strconv.FormatUint(uint64(p.LastInputSeq), 10))
	b.WriteByte(';')
	b.WriteString(strconv.FormatUint(uint64(p.LastAngleSeq), 10))
	if p.HasMotion {
		b.WriteByte(';')
		b.WriteString(formatFloat(p.Velocity.X, 3))
		b.WriteByte(',')
		b.WriteString(formatFloat(p.Velocity.Y, 3))
		if p.Driving {
			b.WriteString(";1")
		} else {
			b.WriteString(";0")
		}
	}
	return b.String()
}

func formatFloat(v float64, prec int) string {
	s := strconv.FormatFloat(v, 'f', prec, 64)
	if strings.Trim(s, "-0.") == "" {
		// no negative zero on the wire
		return strconv.FormatFloat(0, 'f', prec, 64)
	}
	return s
}

// DecodeSnapshot reverses EncodeSnapshot. Records with only the first four
// fields are accepted and leave HasMotion false.
func DecodeSnapshot(s Snapshot) (DecodedSnapshot, error) {
	out := DecodedSnapshot{Time: s.T, Players: make(map[string]PlayerSnapshot, len(s.Players))}
	for id, rec := range s.Players {
		p, err := decodePlayer(rec)
		if err != nil {
			return DecodedSnapshot{}, fmt.Errorf("player %s: %w", id, err)
		}
		p.ID = id
		out.Players[id] = p
	}
	return out, nil
}

func decodePlayer(rec string) (PlayerSnapshot, error) {
	var p PlayerSnapshot
	fields := strings.Split(rec, ";")
	if len(fields) != 4 && len(fields) != 6 {
		return p, ErrMalformedMessage
	}
	pos, err := parsePair(fields[0], ',')
	if err != nil {
		return p, err
	}
	rot, err := parseFinite(fields[1])
	if err != nil {
		return p, err
	}
	iseq, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return p, ErrMalformedMessage
	}
	aseq, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return p, ErrMalformedMessage
	}
	p.Position = pos
	p.Rotation = rot
	p.LastInputSeq = uint32(iseq)
	p.LastAngleSeq = uint32(aseq)
	if len(fields) == 6 {
		vel, err := parsePair(fields[4], ',')
		if err != nil {
			return p, err
		}
		switch fields[5] {
		case "1":
			p.Driving = true
		case "0":
		default:
			return p, ErrMalformedMessage
		}
		p.Velocity = vel
		p.HasMotion = true
	}
	return p, nil
}

func parsePair(s string, sep byte) (Vector, error) {
	i := strings.IndexByte(s, sep)
	if i < 0 {
		return Vector{}, ErrMalformedMessage
	}
	x, err := parseFinite(s[:i])
	if err != nil {
		return Vector{}, err
	}
	y, err := parseFinite(s[i+1:])
	if err != nil {
		return Vector{}, err
	}
	return Vector{X: x, Y: y}, nil
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrMalformedMessage
	}
	return v, nil
}

// CommandKind tags the variants of a client command.
type CommandKind uint8

const (
	CmdInput CommandKind = iota + 1
	CmdAim
	CmdFire
	CmdPing
)

// Command is a decoded client command string. Only the field matching
// Kind is meaningful.
type Command struct {
	Kind  CommandKind
	Input InputCommand
	Aim   AimCommand
	Fire  FireCommand
	Ping  string
}

// AimCommand points the ship at a map coordinate.
type AimCommand struct {
	Seq    uint32
	Target Vector
}

// FireCommand shoots towards a map coordinate.
type FireCommand struct {
	Target Vector
}

// ParseCommand decodes one compact client command:
//
//	i.<keys|d+|d->.<seq>   movement, keys are l,r,u,d joined by '-'
//	m.<x>-<y>.<seq>        aim
//	f.<x>-<y>              fire
//	p.<millis>             ping
func ParseCommand(raw string) (Command, error) {
	parts := strings.Split(raw, ".")
	if len(parts) < 2 {
		return Command{}, ErrMalformedMessage
	}
	switch parts[0] {
	case "i":
		if len(parts) != 3 {
			return Command{}, ErrMalformedMessage
		}
		seq, err := parseSeq(parts[2])
		if err != nil {
			return Command{}, err
		}
		in := InputCommand{Seq: seq}
		switch parts[1] {
		case "d+":
			in.Drive = true
		case "d-":
		default:
			keys, err := parseKeys(parts[1])
			if err != nil {
				return Command{}, err
			}
			in.Keys = keys
		}
		return Command{Kind: CmdInput, Input: in}, nil
	case "m":
		if len(parts) != 3 {
			return Command{}, ErrMalformedMessage
		}
		target, err := parsePoint(parts[1])
		if err != nil {
			return Command{}, err
		}
		seq, err := parseSeq(parts[2])
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: CmdAim, Aim: AimCommand{Seq: seq, Target: target}}, nil
	case "f":
		if len(parts) != 2 {
			return Command{}, ErrMalformedMessage
		}
		target, err := parsePoint(parts[1])
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: CmdFire, Fire: FireCommand{Target: target}}, nil
	case "p":
		if len(parts) != 2 {
			return Command{}, ErrMalformedMessage
		}
		if _, err := strconv.ParseInt(parts[1], 10, 64); err != nil {
			return Command{}, ErrMalformedMessage
		}
		return Command{Kind: CmdPing, Ping: parts[1]}, nil
	}
	return Command{}, ErrMalformedMessage
}

// String encodes the command back into its wire form.
func (c Command) String() string {
	switch c.Kind {
	case CmdInput:
		return "i." + formatInput(c.Input) + "." + strconv.FormatUint(uint64(c.Input.Seq), 10)
	case CmdAim:
		return "m." + formatPoint(c.Aim.Target) + "." + strconv.FormatUint(uint64(c.Aim.Seq), 10)
	case CmdFire:
		return "f." + formatPoint(c.Fire.Target)
	case CmdPing:
		return "p." + c.Ping
	}
	return ""
}

func parseSeq(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil || v == 0 {
		return 0, ErrMalformedMessage
	}
	return uint32(v), nil
}

var keyBits = map[string]Direction{"l": DirLeft, "r": DirRight, "u": DirUp, "d": DirDown}

func parseKeys(s string) (Direction, error) {
	var d Direction
	for _, k := range strings.Split(s, "-") {
		bit, ok := keyBits[k]
		if !ok {
			return 0, ErrMalformedMessage
		}
		d |= bit
	}
	return d, nil
}

func formatInput(in InputCommand) string {
	if in.Keys == 0 {
		if in.Drive {
			return "d+"
		}
		return "d-"
	}
	var keys []string
	for _, k := range []string{"l", "r", "u", "d"} {
		if in.Keys&keyBits[k] != 0 {
			keys = append(keys, k)
		}
	}
	return strings.Join(keys, "-")
}

// parsePoint reads "<x>-<y>" with integer coordinates. The separator is
// the first '-' after the leading character so negative values survive.
func parsePoint(s string) (Vector, error) {
	if len(s) < 3 {
		return Vector{}, ErrMalformedMessage
	}
	i := strings.IndexByte(s[1:], '-')
	if i < 0 {
		return Vector{}, ErrMalformedMessage
	}
	i++
	x, err := strconv.Atoi(s[:i])
	if err != nil {
		return Vector{}, ErrMalformedMessage
	}
	y, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return Vector{}, ErrMalformedMessage
	}
	return Vector{X: float64(x), Y: float64(y)}, nil
}

func formatPoint(v Vector) string {
	return strconv.Itoa(int(math.Round(v.X))) + "-" + strconv.Itoa(int(math.Round(v.Y)))
}
