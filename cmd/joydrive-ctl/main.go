package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"

	"joydrive/internal/input"
)

// ============================================================================
// joydrive-ctl - Command-line IPC Client
// ============================================================================
// Sends named controller events to a running joydrive daemon, or prints its
// current state.
//
// Usage:
//   joydrive-ctl press A              (button down, then up)
//   joydrive-ctl down RB              (button down only)
//   joydrive-ctl up RB                (button up only)
//   joydrive-ctl axis right_stick_vert -0.4
//   joydrive-ctl state
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/joydrive.sock)
// ============================================================================

const defaultSocketPath = "/tmp/joydrive.sock"

// IPCResponse mirrors the daemon's response. State is kept raw and printed as-is.
type IPCResponse struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	State  json.RawMessage `json:"state,omitempty"`
}

func main() {
	socketPath := defaultSocketPath

	args := os.Args[1:]
	if len(args) > 0 && (args[0] == "-socket" || args[0] == "--socket") {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage()
		return
	}

	reqs, err := buildRequests(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		printUsage()
		os.Exit(1)
	}

	for _, req := range reqs {
		resp, err := send(socketPath, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if len(resp.State) > 0 {
			var buf bytes.Buffer
			if err := json.Indent(&buf, resp.State, "", "  "); err != nil {
				fmt.Println(string(resp.State))
			} else {
				fmt.Println(buf.String())
			}
			return
		}
	}

	fmt.Println("ok")
}

// buildRequests turns a command line into the IPC request lines to send.
func buildRequests(args []string) ([][]byte, error) {
	switch args[0] {
	case "press", "down", "up":
		if len(args) != 2 {
			return nil, fmt.Errorf("%s requires a button name", args[0])
		}
		name := args[1]
		var edges []bool
		switch args[0] {
		case "press":
			edges = []bool{true, false}
		case "down":
			edges = []bool{true}
		case "up":
			edges = []bool{false}
		}
		var out [][]byte
		for _, state := range edges {
			b, err := input.MarshalEvent(input.ButtonChanged{Name: name, State: state})
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		}
		return out, nil

	case "axis":
		if len(args) != 3 {
			return nil, fmt.Errorf("axis requires a name and a value")
		}
		v, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid axis value: %w", err)
		}
		if v < -1 || v > 1 {
			return nil, fmt.Errorf("axis value %v outside [-1, 1]", v)
		}
		b, err := input.MarshalEvent(input.AxisChanged{Name: args[1], Value: v})
		if err != nil {
			return nil, err
		}
		return [][]byte{b}, nil

	case "state":
		return [][]byte{[]byte(`{"type":"get_state"}`)}, nil

	default:
		return nil, fmt.Errorf("unknown command: %s", args[0])
	}
}

func send(socketPath string, req []byte) (IPCResponse, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n", req); err != nil {
		return IPCResponse{}, fmt.Errorf("send request: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return resp, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return resp, nil
}

func printUsage() {
	fmt.Println("joydrive-ctl - joydrive IPC client")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  joydrive-ctl [-socket PATH] COMMAND [ARGS]")
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  press NAME          Press and release a button")
	fmt.Println("  down NAME           Press a button")
	fmt.Println("  up NAME             Release a button")
	fmt.Println("  axis NAME VALUE     Move an axis to VALUE in [-1, 1]")
	fmt.Println("  state               Print the daemon's current state")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Printf("  -socket PATH        Unix domain socket path (default: %s)\n", defaultSocketPath)
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  joydrive-ctl press start           # cycle drive mode")
	fmt.Println("  joydrive-ctl axis left_stick_horz 0.3")
}
