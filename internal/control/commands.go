package control

import "fmt"

// Command is a side effect requested by a handler. The controller never
// performs I/O itself; the daemon loop executes commands after dispatch.
type Command interface {
	commandMarker()
	String() string
}

// CmdEraseRecords asks the recorder to drop its most recent samples.
type CmdEraseRecords struct {
	Count int
}

func (CmdEraseRecords) commandMarker() {}
func (c CmdEraseRecords) String() string {
	return fmt.Sprintf("CmdEraseRecords(count=%d)", c.Count)
}

// CmdEmergencyStop announces that the controller latched its halt state.
type CmdEmergencyStop struct{}

func (CmdEmergencyStop) commandMarker() {}
func (CmdEmergencyStop) String() string { return "CmdEmergencyStop()" }

// CmdModeChanged announces a new drive mode.
type CmdModeChanged struct {
	Mode Mode
}

func (CmdModeChanged) commandMarker() {}
func (c CmdModeChanged) String() string { return fmt.Sprintf("CmdModeChanged(mode=%s)", c.Mode) }
