package standalone

import (
	"errors"
	"fmt"

	"gopper/core"
	"gopper/standalone/config"
	"gopper/standalone/gcode"
	"gopper/standalone/kinematics"
	"gopper/standalone/planner"
)

// Manager coordinates all standalone mode components
type Manager struct {
	config      *MachineConfig
	parser      *gcode.Parser
	interpreter *gcode.Interpreter
	planner     *planner.Planner
	kinematics  kinematics.Kinematics
	heaters     *HeaterBank
	fans        *FanBank

	// Serial interface
	inputBuffer  []byte
	outputBuffer []byte

	// lineQueue holds complete lines not yet executed: a line is only
	// dequeued once no prior M109/M190 wait is outstanding, so the host
	// sees "ok" in the same order its lines were sent.
	lineQueue []string
	waiting   bool

	// Status
	initialized bool
	running     bool
}

// NewManager creates a new standalone mode manager
func NewManager(configData []byte) (*Manager, error) {
	// Load configuration
	cfg, err := config.LoadConfig(configData)
	if err != nil {
		return nil, err
	}

	return NewManagerWithConfig(cfg)
}

// NewManagerWithConfig creates a manager with an existing config
func NewManagerWithConfig(cfg *MachineConfig) (*Manager, error) {
	mgr := &Manager{
		config:       cfg,
		parser:       gcode.NewParser(),
		inputBuffer:  make([]byte, 0, 256),
		outputBuffer: make([]byte, 0, 256),
		initialized:  false,
		running:      false,
	}

	return mgr, nil
}

// Initialize sets up all components
func (m *Manager) Initialize(gpioDriver core.GPIODriver) error {
	if m.initialized {
		return errors.New("already initialized")
	}

	// Create kinematics based on config
	var kin kinematics.Kinematics
	var err error

	switch m.config.Kinematics {
	case "cartesian":
		kin, err = kinematics.NewCartesian(m.config)
	default:
		return errors.New("unsupported kinematics: " + m.config.Kinematics)
	}

	if err != nil {
		return err
	}

	m.kinematics = kin

	// Create planner
	m.planner = planner.NewPlanner(m.config, kin)

	// Initialize steppers
	err = m.planner.InitSteppers(gpioDriver)
	if err != nil {
		return err
	}

	if len(m.config.Heaters) > 0 {
		m.heaters, err = NewHeaterBank(m.config.Heaters)
		if err != nil {
			return err
		}
	}
	if len(m.config.Fans) > 0 {
		m.fans, err = NewFanBank(m.config.Fans)
		if err != nil {
			return err
		}
	}

	// Create interpreter
	m.interpreter = gcode.NewInterpreter(m.config, m.planner, heatersInterface(m.heaters), fansInterface(m.fans))

	m.initialized = true
	return nil
}

// heatersInterface returns b as a gcode.Heaters, or nil if no heaters are
// configured; a concrete (*HeaterBank)(nil) assigned directly to the
// interface would compare non-nil, so this keeps the interpreter's
// nil-check on interp.heaters meaningful.
func heatersInterface(b *HeaterBank) gcode.Heaters {
	if b == nil {
		return nil
	}
	return b
}

// fansInterface is heatersInterface's counterpart for *FanBank.
func fansInterface(b *FanBank) gcode.Fans {
	if b == nil {
		return nil
	}
	return b
}

// ProcessLine executes a single line of G-code immediately, bypassing
// the deferred-ack queue ProcessByte uses. Intended for direct/test use;
// callers streaming from a serial host should use ProcessByte instead so
// M109/M190 waits hold "ok" back correctly.
func (m *Manager) ProcessLine(line string) error {
	if !m.initialized {
		return errors.New("manager not initialized")
	}

	cmd, err := m.parser.ParseLine(line)
	if err != nil {
		return err
	}
	if cmd != nil {
		if err := m.interpreter.Execute(cmd); err != nil {
			return err
		}
	}
	for _, l := range m.interpreter.TakeOutput() {
		m.SendResponse(l + "\n")
	}
	return nil
}

// ProcessByte processes a single byte of input (for serial streaming).
// Complete lines are queued and drained one at a time by Tick/runQueue
// so a line that arms an M109/M190 wait holds back every line after it
// until the wait clears, the same ordering a real serial host expects.
func (m *Manager) ProcessByte(b byte) error {
	m.inputBuffer = append(m.inputBuffer, b)

	if b != '\n' && b != '\r' {
		return nil
	}

	line := string(m.inputBuffer)
	m.inputBuffer = m.inputBuffer[:0]

	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r' || line[len(line)-1] == ' ') {
		line = line[:len(line)-1]
	}

	// A blank line still occupies a slot in the host's send/ack
	// pipeline, so it gets an "ok" the same as a comment-only line.
	m.lineQueue = append(m.lineQueue, line)
	m.drainQueue()
	return nil
}

// drainQueue executes queued lines until one arms a wait or the queue
// empties.
func (m *Manager) drainQueue() {
	for !m.waiting && len(m.lineQueue) > 0 {
		line := m.lineQueue[0]
		m.lineQueue = m.lineQueue[1:]

		cmd, err := m.parser.ParseLine(line)
		if err != nil {
			m.SendResponse(fmt.Sprintf("error: %v\n", err))
			continue
		}
		if cmd != nil {
			if err := m.interpreter.Execute(cmd); err != nil {
				m.SendResponse(fmt.Sprintf("error: %v\n", err))
				continue
			}
		}
		for _, l := range m.interpreter.TakeOutput() {
			m.SendResponse(l + "\n")
		}

		if m.GetState().WaitingForTemp != "" {
			m.waiting = true
			return
		}
		m.SendResponse("ok\n")
	}
}

// Tick advances the heater PID loops and the pending temperature wait
// (if any), then resumes draining queued lines once it clears. Call
// this at the same cadence as core.ProcessTimers() from the main loop.
func (m *Manager) Tick(dt float64) {
	if m.planner != nil {
		m.planner.RefillSteps()
	}
	if m.heaters != nil {
		m.heaters.Tick(dt)
	}
	if m.waiting && m.interpreter.PollWait() {
		m.waiting = false
		m.SendResponse("ok\n")
		m.drainQueue()
	}
}

// SendResponse queues a response to be sent to the host
func (m *Manager) SendResponse(response string) {
	m.outputBuffer = append(m.outputBuffer, []byte(response)...)
}

// GetOutput returns any pending output and clears the buffer
func (m *Manager) GetOutput() []byte {
	if len(m.outputBuffer) == 0 {
		return nil
	}

	output := make([]byte, len(m.outputBuffer))
	copy(output, m.outputBuffer)
	m.outputBuffer = m.outputBuffer[:0]
	return output
}

// Start begins standalone operation
func (m *Manager) Start() error {
	if !m.initialized {
		return errors.New("manager not initialized")
	}

	m.running = true
	m.SendResponse("Gopper Standalone Mode Ready\n")
	return nil
}

// Stop halts all operation
func (m *Manager) Stop() {
	m.running = false
	if m.planner != nil {
		m.planner.ClearQueue()
	}
}

// IsRunning returns whether the manager is running
func (m *Manager) IsRunning() bool {
	return m.running
}

// GetState returns the current machine state
func (m *Manager) GetState() *MachineState {
	if m.interpreter != nil {
		return m.interpreter.GetState()
	}
	return nil
}

// EmergencyStop halts all motion and drives every heater and fan to
// zero output immediately, without waiting for their control loops'
// next scheduled tick.
func (m *Manager) EmergencyStop() {
	m.Stop()
	if m.heaters != nil {
		m.heaters.EmergencyOff()
	}
	if m.fans != nil {
		m.fans.EmergencyOff()
	}
	m.lineQueue = nil
	m.waiting = false
}
