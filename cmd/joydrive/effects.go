package main

import (
	"log/slog"
	"time"

	"joydrive/internal/control"
)

// runEffect carries out a single handler-emitted Command. Handlers never do
// I/O themselves; everything that leaves the process (log lines the operator
// watches for, websocket notifications) happens here.
func runEffect(cmd control.Command, logger *slog.Logger, emit func(StateBroadcast)) error {
	if emit == nil {
		emit = func(StateBroadcast) {}
	}
	now := time.Now().UTC()

	switch c := cmd.(type) {
	case control.CmdEraseRecords:
		logger.Info("erase records requested", "count", c.Count)
		emit(BroadcastEraseRecords{Count: c.Count, At: now})

	case control.CmdEmergencyStop:
		logger.Warn("emergency stop engaged; vehicle halted until restart")
		emit(BroadcastEmergencyStop{At: now})

	case control.CmdModeChanged:
		logger.Info("drive mode changed", "mode", c.Mode)
		emit(BroadcastModeChanged{Mode: c.Mode, At: now})

	default:
		logger.Warn("unknown command type", "command", cmd.String())
		return errUnknownCommand{cmd: cmd}
	}
	return nil
}

type errUnknownCommand struct {
	cmd control.Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }
