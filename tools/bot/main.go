// Command bot joins a match as a scripted pilot. It runs the same client
// prediction engine a browser would and is handy for load and soak tests.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"io/fs"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/vmihailenco/msgpack/v5"

	"spaceshooter/game"
	"spaceshooter/predict"
)

const (
	physicsPeriod = 15 * time.Millisecond
	framePeriod   = 16 * time.Millisecond
	pingPeriod    = 2 * time.Second
	actionPeriod  = 250 * time.Millisecond
)

type options struct {
	url      string
	match    string
	password string
	name     string
	color    int
	noPred   bool
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("[bot] .env: %v", err)
	}

	var opt options
	flag.StringVar(&opt.url, "url", envOr("BOT_URL", "ws://localhost:8080/ws"), "Server WebSocket URL")
	flag.StringVar(&opt.match, "match", envOr("BOT_MATCH", "Public"), "Match to join")
	flag.StringVar(&opt.password, "password", os.Getenv("BOT_PASSWORD"), "Match password")
	flag.StringVar(&opt.name, "name", envOr("BOT_NAME", "bot"), "Pilot name")
	flag.IntVar(&opt.color, "color", rand.IntN(0xffffff), "Ship color")
	flag.BoolVar(&opt.noPred, "no-predict", false, "Disable client-side prediction")
	flag.Parse()

	conn, _, err := websocket.DefaultDialer.Dial(opt.url, nil)
	if err != nil {
		log.Fatalf("[bot] dial %s: %v", opt.url, err)
	}
	defer conn.Close()
	log.Printf("[bot] connected to %s", opt.url)

	id, early, err := join(conn, opt)
	if err != nil {
		log.Fatalf("[bot] join %q: %v", opt.match, err)
	}
	log.Printf("[bot] joined %q as %s", opt.match, id)

	cfg := predict.DefaultConfig()
	cfg.Prediction = !opt.noPred
	engine := predict.NewEngine(id, predict.SenderFunc(func(cmd string) error {
		return conn.WriteMessage(websocket.TextMessage, []byte(cmd))
	}), cfg)
	for _, env := range early {
		engine.HandleEvent(env)
	}

	if err := sendControl(conn, "player-ready", nil); err != nil {
		log.Fatalf("[bot] ready: %v", err)
	}

	closed := make(chan error, 1)
	go readLoop(conn, engine, closed)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	fly(engine, cfg.Match, closed, stop)
	sendControl(conn, "leave-game", nil)
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// join requests a seat and returns the assigned id along with the events
// that arrived before the confirmation.
func join(conn *websocket.Conn, opt options) (string, []game.InEnvelope, error) {
	req := map[string]interface{}{
		"matchName":   opt.match,
		"password":    opt.password,
		"playerName":  opt.name,
		"playerColor": opt.color,
	}
	if err := sendControl(conn, "game-request", req); err != nil {
		return "", nil, err
	}

	var early []game.InEnvelope
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			return "", nil, err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var env game.InEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		switch env.T {
		case "connection-success":
			var ok struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(env.Data, &ok); err != nil {
				return "", nil, err
			}
			return ok.ID, early, nil
		case "connection-fail":
			var fail struct {
				Reason string `json:"reason"`
			}
			json.Unmarshal(env.Data, &fail)
			return "", nil, errors.New(fail.Reason)
		default:
			early = append(early, env)
		}
	}
}

// readLoop hands every server frame to the engine until the socket closes.
func readLoop(conn *websocket.Conn, engine *predict.Engine, closed chan<- error) {
	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			closed <- err
			return
		}
		if msgType == websocket.BinaryMessage {
			var sf game.SnapshotFrame
			if err := msgpack.Unmarshal(raw, &sf); err != nil {
				log.Printf("[bot] bad snapshot frame: %v", err)
				continue
			}
			if err := engine.PushSnapshot(sf.Data, time.Now()); err != nil {
				log.Printf("[bot] snapshot: %v", err)
			}
			continue
		}
		var env game.InEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("[bot] bad frame %q: %v", raw, err)
			continue
		}
		if env.T == "ready-fail" {
			log.Printf("[bot] ready rejected: %s", env.Data)
			continue
		}
		if err := engine.HandleEvent(env); err != nil {
			log.Printf("[bot] event %s: %v", env.T, err)
		}
	}
}

// fly drives the engine at client frame rate and issues random commands
// once the match is running.
func fly(engine *predict.Engine, cfg game.MatchConfig, closed <-chan error, stop <-chan os.Signal) {
	physics := time.NewTicker(physicsPeriod)
	defer physics.Stop()
	frame := time.NewTicker(framePeriod)
	defer frame.Stop()
	action := time.NewTicker(actionPeriod)
	defer action.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	driving := false
	for {
		select {
		case err := <-closed:
			log.Printf("[bot] connection closed: %v", err)
			return
		case <-stop:
			log.Println("[bot] interrupted")
			return
		case <-physics.C:
			engine.PhysicsStep()
		case now := <-frame.C:
			engine.Frame(now)
			if ended, winner := engine.Ended(); ended {
				self, _ := engine.Self()
				switch winner {
				case "":
					log.Println("[bot] match ended without a winner")
				case self.ID:
					log.Println("[bot] won the match")
				default:
					log.Printf("[bot] lost, winner %s", winner)
				}
				return
			}
		case <-ping.C:
			if err := engine.Ping(); err != nil {
				log.Printf("[bot] ping: %v", err)
			}
			if rtt, _ := engine.Latency(); rtt > 0 {
				log.Printf("[bot] rtt %v", rtt)
			}
		case <-action.C:
			if engine.Countdown() != 0 {
				continue
			}
			if err := act(engine, cfg, &driving); err != nil {
				log.Printf("[bot] send: %v", err)
				return
			}
		}
	}
}

// act aims at a random opponent, or a random point, and sometimes fires
// or toggles thrust.
func act(engine *predict.Engine, cfg game.MatchConfig, driving *bool) error {
	target := game.Vector{X: rand.Float64() * cfg.MapWidth, Y: rand.Float64() * cfg.MapHeight}
	self, _ := engine.Self()
	var foes []game.PlayerInfo
	for _, p := range engine.Players() {
		if p.ID != self.ID && p.Alive {
			foes = append(foes, p)
		}
	}
	if len(foes) > 0 {
		target = foes[rand.IntN(len(foes))].Position
	}

	if err := engine.Aim(target); err != nil {
		return err
	}
	if rand.IntN(3) == 0 {
		*driving = !*driving
		if err := engine.Input(*driving); err != nil {
			return err
		}
	}
	if rand.IntN(2) == 0 {
		return engine.Fire(target)
	}
	return nil
}

func sendControl(conn *websocket.Conn, t string, data interface{}) error {
	raw, err := json.Marshal(game.Envelope{T: t, Data: data})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
