package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	"joydrive/internal/input"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// Remote buttons and scripts drive the controller through the same named
// events a joystick produces. The socket also answers state queries.
//
// Protocol: line-delimited JSON
//   - {"type": "button_changed", "data": {"name": "a_button", "state": true}}
//   - {"type": "axis_changed", "data": {"name": "left_stick_horz", "value": 0.5}}
//   - {"type": "get_state"}
//
// Responses: {"status": "ok"}, {"status": "ok", "state": {...}} or
// {"status": "error", "error": "msg"}
// ============================================================================

const ipcTypeGetState = "get_state"

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Error  string    `json:"error,omitempty"` // error message if status == "error"
	State  *Snapshot `json:"state,omitempty"` // set for get_state
}

// runIPCServer serves the Unix socket until ctx is canceled.
func runIPCServer(ctx context.Context, socketPath string, events chan<- input.Event, store *snapshotStore, m *metrics, logger *slog.Logger) error {
	socketPath = ExpandPath(socketPath)

	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0660); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Closing the listener unblocks Accept.
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}
			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(conn, events, store, m, logger)
	}
}

// handleIPCConnection serves one client until it hangs up.
func handleIPCConnection(conn net.Conn, events chan<- input.Event, store *snapshotStore, m *metrics, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Debug("IPC received", "line", line)

		resp := handleIPCRequest([]byte(line), events, store)
		if m != nil {
			m.ipcRequests.WithLabelValues(resp.Status).Inc()
		}
		if err := encoder.Encode(resp); err != nil {
			logger.Error("IPC failed to send response", "error", err)
			return
		}
	}

	logger.Debug("IPC connection closed")
}

func handleIPCRequest(line []byte, events chan<- input.Event, store *snapshotStore) IPCResponse {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return ipcError(fmt.Errorf("parse request: %w", err))
	}

	if head.Type == ipcTypeGetState {
		snap, ok := store.Load()
		if !ok {
			return ipcError(errors.New("state not available yet"))
		}
		return IPCResponse{Status: "ok", State: &snap}
	}

	ev, err := input.UnmarshalEvent(line)
	if err != nil {
		return ipcError(fmt.Errorf("parse event: %w", err))
	}

	select {
	case events <- ev:
		return IPCResponse{Status: "ok"}
	default:
		return ipcError(errors.New("event queue full"))
	}
}

func ipcError(err error) IPCResponse {
	return IPCResponse{Status: "error", Error: err.Error()}
}

// SendIPCEvent sends one event to the daemon and waits for the reply.
func SendIPCEvent(socketPath string, ev input.Event) error {
	data, err := input.MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = ipcRoundTrip(socketPath, data)
	return err
}

// RequestIPCState asks the daemon for its current snapshot.
func RequestIPCState(socketPath string) (Snapshot, error) {
	resp, err := ipcRoundTrip(socketPath, []byte(`{"type":"`+ipcTypeGetState+`"}`))
	if err != nil {
		return Snapshot{}, err
	}
	if resp.State == nil {
		return Snapshot{}, errors.New("ipc: response has no state")
	}
	return *resp.State, nil
}

func ipcRoundTrip(socketPath string, req []byte) (IPCResponse, error) {
	conn, err := net.Dial("unix", ExpandPath(socketPath))
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n", strings.TrimSpace(string(req))); err != nil {
		return IPCResponse{}, fmt.Errorf("send request: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return resp, fmt.Errorf("ipc error: %s", resp.Error)
	}
	return resp, nil
}
