package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// joydrive-watch follows a joydrive daemon's /ws/state feed and prints one
// line per message.

type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type controlState struct {
	Session   string `json:"session"`
	Device    string `json:"device"`
	Connected bool   `json:"connected"`
	State     struct {
		Steering         float64 `json:"steering"`
		Throttle         float64 `json:"throttle"`
		Mode             string  `json:"mode"`
		Recording        bool    `json:"recording"`
		MaxThrottle      float64 `json:"max_throttle"`
		ConstantThrottle bool    `json:"constant_throttle"`
		Chaos            int     `json:"chaos"`
		Halted           bool    `json:"halted"`
	} `json:"state"`
	Latest struct {
		Button      string  `json:"button"`
		ButtonState bool    `json:"button_state"`
		Axis        string  `json:"axis"`
		AxisValue   float64 `json:"axis_value"`
	} `json:"latest"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:3002/ws/state", "joydrive state websocket URL")
		raw   = flag.Bool("raw", false, "Print raw JSON frames")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected (press Ctrl+C to exit)")

	var writeMu sync.Mutex

	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	go func() {
		for range pingTicker.C {
			writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				log.Printf("ping failed: %v", err)
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var last string
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			// The daemon's frames keep the read deadline fresh between pongs.
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if messageType != websocket.TextMessage {
				continue
			}
			if *raw {
				fmt.Println(string(message))
				continue
			}
			line := formatMessage(message)
			// control_state repeats when only the output jitter moved.
			if line == last {
				continue
			}
			last = line
			fmt.Println(line)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// formatMessage renders one frame as a single human-readable line.
func formatMessage(message []byte) string {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return "[TEXT] " + string(message)
	}

	switch env.Type {
	case "state_init", "control_state":
		var cs controlState
		if err := json.Unmarshal(env.Data, &cs); err != nil {
			break
		}
		tag := "[STATE]"
		if env.Type == "state_init" {
			tag = "[INIT]"
		}
		if !cs.Connected {
			return fmt.Sprintf("%s no controller; mode=%s halted=%t", tag, cs.State.Mode, cs.State.Halted)
		}
		s := cs.State
		return fmt.Sprintf("%s steering=%+.2f throttle=%+.2f mode=%s rec=%t max=%.2f const=%t chaos=%d halted=%t",
			tag, s.Steering, s.Throttle, s.Mode, s.Recording, s.MaxThrottle, s.ConstantThrottle, s.Chaos, s.Halted)

	case "device_connected":
		var d struct {
			Session string `json:"session"`
			Device  string `json:"device"`
			Axes    int    `json:"axes"`
			Buttons int    `json:"buttons"`
			Hats    int    `json:"hats"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			break
		}
		return fmt.Sprintf("[CONNECTED] %q session=%s axes=%d buttons=%d hats=%d", d.Device, d.Session, d.Axes, d.Buttons, d.Hats)

	case "device_disconnected":
		var d struct {
			Device string `json:"device"`
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			break
		}
		return fmt.Sprintf("[DISCONNECTED] %q (%s)", d.Device, d.Reason)

	case "erase_records":
		var d struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			break
		}
		return fmt.Sprintf("[ERASE] last %d records", d.Count)

	case "emergency_stop":
		return "[E-STOP] vehicle halted"

	case "mode_changed":
		var d struct {
			Mode string `json:"mode"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			break
		}
		return "[MODE] " + d.Mode
	}

	return fmt.Sprintf("[%s] %s", env.Type, string(env.Data))
}
