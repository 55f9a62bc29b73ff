// Package planner implements the motion planner: a lookahead-buffered
// queue of G-code moves that is resolved into trapezoidal velocity
// profiles with junction-velocity cornering, committed to a trapq.Queue,
// and expanded into discrete step edges for each axis's core.Stepper via
// itersolve. Ported from app/toolhead.c's lookahead_push/lookahead_process/
// lookahead_flush/generate_steps and calc_trapezoidal_profile/
// calc_junction_velocity.
package planner

import (
	"math"

	"gopper/core"
	"gopper/standalone"
	"gopper/standalone/errs"
	"gopper/standalone/itersolve"
	"gopper/standalone/kinematics"
	"gopper/standalone/trapq"
)

// lookaheadSize bounds the pending-move buffer, matching LOOKAHEAD_SIZE.
const lookaheadSize = 16

// minMoveDistance below which a move is dropped as a no-op.
const minMoveDistance = 1e-6

// axisOrder fixes the X,Y,Z,E index assignment used throughout the
// planner and trapq.Move.AxisD.
var axisOrder = [trapq.NumAxes]string{"x", "y", "z", "e"}

// pendingMove is one not-yet-committed lookahead entry.
type pendingMove struct {
	startPos [trapq.NumAxes]float64
	endPos   [trapq.NumAxes]float64
	distance float64
	maxV     float64

	maxStartV float64
	maxEndV   float64

	startV  float64
	cruiseV float64
	endV    float64
}

// axisDrive bundles a configured axis's stepper and the scaling/limits
// needed to turn mm into steps.
type axisDrive struct {
	stepper    *core.Stepper
	endstop    *core.Endstop
	stepsPerMM float64
	cfg        standalone.AxisConfig

	// pushedTo is the printTime up to which this axis has successfully
	// pushed every edge into its stepper's bounded queue. Step
	// generation resumes from here on the next call instead of
	// recomputing and re-pushing edges that are already queued.
	pushedTo float64
}

// Planner owns the lookahead buffer, the trapq segment queue, and every
// configured axis's stepper/endstop.
type Planner struct {
	config *standalone.MachineConfig
	kin    kinematics.Kinematics

	axes map[string]*axisDrive
	q    *trapq.Queue

	lookahead []pendingMove

	commandedPos [trapq.NumAxes]float64
	printTime    float64 // seconds, relative to queueBaseTicks

	haveBase       bool
	queueBaseTicks uint32

	flushedTo float64 // printTime already converted to step edges

	homed [trapq.NumAxes]bool
}

// NewPlanner creates a planner bound to config and kin.
func NewPlanner(config *standalone.MachineConfig, kin kinematics.Kinematics) *Planner {
	return &Planner{
		config:    config,
		kin:       kin,
		axes:      make(map[string]*axisDrive),
		q:         trapq.NewQueue(),
		lookahead: make([]pendingMove, 0, lookaheadSize),
	}
}

// InitSteppers configures the stepper and endstop for every axis named by
// the kinematics, using gpioDriver to resolve pin strings.
func (p *Planner) InitSteppers(gpioDriver core.GPIODriver) error {
	for i, name := range axisOrder {
		axisCfg, ok := p.config.Axes[name]
		if !ok {
			continue
		}

		stepPin, err := standalone.ParsePin(axisCfg.StepPin)
		if err != nil {
			return err
		}
		dirPin, err := standalone.ParsePin(axisCfg.DirPin)
		if err != nil {
			return err
		}

		stepper, err := core.NewStepper(uint8(i), uint8(stepPin), uint8(dirPin), false, axisCfg.MinStepInterval)
		if err != nil {
			return err
		}
		stepper.InvertDir = axisCfg.InvertDir
		if axisCfg.PulseWidthTicks > 0 {
			stepper.PulseWidthTicks = axisCfg.PulseWidthTicks
		}

		drive := &axisDrive{
			stepper:    stepper,
			stepsPerMM: axisCfg.StepsPerMM,
			cfg:        axisCfg,
		}

		if esCfg, ok := p.config.Endstops[name]; ok {
			pin, err := standalone.ParsePin(esCfg.Pin)
			if err != nil {
				return err
			}
			es, err := core.NewEndstop(pin, esCfg.PullUp, !esCfg.Invert)
			if err != nil {
				return err
			}
			drive.endstop = es
		}

		p.axes[name] = drive
	}
	return nil
}

// QueueMove validates limits, computes the move's 4D distance and
// velocity caps, and pushes it onto the lookahead buffer, flushing and
// resolving steps when the buffer runs low on room (mirrors
// toolhead_move's "flush when nearly full, keep last 2" behavior).
func (p *Planner) QueueMove(move *standalone.Move) error {
	end := positionToVec(move.End)
	if err := p.kin.CheckLimits(move.End); err != nil {
		return err
	}

	start := p.commandedPos
	distance := distance4D(start, end)
	if distance < minMoveDistance {
		return nil
	}

	maxV := move.Velocity
	if maxV <= 0 || maxV > p.config.DefaultVelocity {
		maxV = p.config.DefaultVelocity
	}
	maxV = p.clampAxisVelocity(start, end, distance, maxV)

	pm := pendingMove{
		startPos: start,
		endPos:   end,
		distance: distance,
		maxV:     maxV,
	}

	p.lookahead = append(p.lookahead, pm)
	p.commandedPos = end

	if len(p.lookahead) >= lookaheadSize-2 {
		p.processLookahead()
		for len(p.lookahead) > 2 {
			p.flushOne()
		}
		p.generateSteps()
	}
	return nil
}

// clampAxisVelocity reduces maxV so no single axis exceeds its own
// MaxVelocity, scaled by that axis's share of the total distance.
func (p *Planner) clampAxisVelocity(start, end [trapq.NumAxes]float64, distance, maxV float64) float64 {
	for i, name := range axisOrder {
		drive, ok := p.axes[name]
		if !ok || drive.cfg.MaxVelocity <= 0 {
			continue
		}
		d := math.Abs(end[i] - start[i])
		if d <= 0 {
			continue
		}
		axisV := maxV * d / distance
		if axisV > drive.cfg.MaxVelocity {
			maxV = drive.cfg.MaxVelocity * distance / d
		}
	}
	return maxV
}

// FlushLookahead resolves every buffered move into the trapq and
// generates its step edges, used when the interpreter needs the queue
// fully drained (M400, end of homing, etc).
func (p *Planner) FlushLookahead() {
	p.processLookahead()
	for len(p.lookahead) > 0 {
		p.flushOne()
	}
	p.generateSteps()
}

// processLookahead runs the backward max-start-velocity sweep followed
// by the forward actual-velocity sweep, exactly as lookahead_process.
func (p *Planner) processLookahead() {
	n := len(p.lookahead)
	if n == 0 {
		return
	}
	maxAccel := p.config.DefaultAccel
	maxAccelToDecel := p.config.MaxAccelToDecel
	if maxAccelToDecel <= 0 {
		maxAccelToDecel = maxAccel
	}
	squareCornerV := p.config.SquareCornerVelocity
	if squareCornerV <= 0 {
		squareCornerV = 5.0
	}

	p.lookahead[n-1].maxEndV = 0
	for i := n - 1; i > 0; i-- {
		curr := &p.lookahead[i]
		prev := &p.lookahead[i-1]

		maxStartV := math.Sqrt(curr.maxEndV*curr.maxEndV + 2*maxAccel*curr.distance)
		if maxStartV > curr.maxV {
			maxStartV = curr.maxV
		}
		curr.maxStartV = maxStartV

		prevDir := direction4D(prev.startPos, prev.endPos, prev.distance)
		currDir := direction4D(curr.startPos, curr.endPos, curr.distance)
		junctionV := calcJunctionVelocity(prevDir, currDir, maxStartV, squareCornerV, maxAccel)
		if junctionV < curr.maxStartV {
			curr.maxStartV = junctionV
		}
		prev.maxEndV = curr.maxStartV
	}
	// First move in the batch starts from rest unless a previous batch
	// left a nonzero exit velocity; conservatively require a full stop
	// at the start of every flush so step generation never straddles a
	// planner-restart boundary with a nonzero assumed velocity.
	firstMaxStartV := math.Sqrt(2 * maxAccel * p.lookahead[0].distance)
	if firstMaxStartV > p.lookahead[0].maxV {
		firstMaxStartV = p.lookahead[0].maxV
	}
	p.lookahead[0].maxStartV = firstMaxStartV

	prevEndV := 0.0
	for i := 0; i < n; i++ {
		m := &p.lookahead[i]
		m.startV = math.Min(prevEndV, m.maxStartV)

		maxCruiseV := math.Sqrt(m.startV*m.startV + 2*maxAccel*m.distance)
		if maxCruiseV > m.maxV {
			maxCruiseV = m.maxV
		}
		m.cruiseV = maxCruiseV

		endVSq := m.cruiseV*m.cruiseV - 2*maxAccelToDecel*m.distance
		maxEndV := 0.0
		if endVSq > 0 {
			maxEndV = math.Sqrt(endVSq)
		}
		if maxEndV > m.maxEndV {
			maxEndV = m.maxEndV
		}
		m.endV = maxEndV
		prevEndV = m.endV
	}
}

// flushOne pops the oldest lookahead entry, resolves its trapezoidal
// profile, and appends it to the trapq.
func (p *Planner) flushOne() {
	m := p.lookahead[0]
	p.lookahead = p.lookahead[1:]

	accelT, cruiseT, decelT := calcTrapezoidalProfile(m.distance, m.startV, m.cruiseV, m.endV, p.config.DefaultAccel)

	seg := trapq.Move{
		PrintTime: p.printTime,
		StartPos:  m.startPos,
		StartV:    m.startV,
		CruiseV:   m.cruiseV,
		Accel:     p.config.DefaultAccel,
		AccelT:    accelT,
		CruiseT:   cruiseT,
		DecelT:    decelT,
	}
	if m.distance > 0 {
		for i := 0; i < trapq.NumAxes; i++ {
			seg.AxisD[i] = (m.endPos[i] - m.startPos[i]) / m.distance
		}
	}

	if _, err := p.q.Append(seg); err != nil {
		// Pool exhausted: drop the oldest retired history and retry once
		// via FinalizeMoves, matching the bounded-memory contract of the
		// pool-backed queue; a second failure means truly starved and is
		// silently dropped rather than blocking the planner forever.
		p.q.FinalizeMoves(p.printTime)
		_, _ = p.q.Append(seg)
	}

	p.printTime += accelT + cruiseT + decelT
}

// generateSteps tops up every axis's bounded stepper queue with edges
// computed from the active trapq segments. Each axis resumes from its
// own drive.pushedTo rather than a single shared cursor: a move's step
// count routinely exceeds core.StepperQueueSize (800 edges for a 10mm
// move at 80 steps/mm, 16 slots in the queue), so a queue that fills
// mid-move simply stops pushing and picks back up here on the next
// call instead of silently dropping the rest of the move. Callers that
// may outrun a single generateSteps pass (QueueMove, RefillSteps' tick
// path, the homing/idle spin loops) all rely on being called
// repeatedly until the queue and lookahead are drained.
func (p *Planner) generateSteps() {
	base, ok := p.tickBase()
	if !ok {
		return
	}

	minPushed := p.printTime
	configured := false

	for i, name := range axisOrder {
		drive, ok := p.axes[name]
		if !ok || drive.stepsPerMM == 0 {
			continue
		}
		configured = true
		stepDist := 1.0 / drive.stepsPerMM

	moves:
		for _, m := range p.q.Active() {
			if m.EndTime() <= drive.pushedTo {
				continue
			}

			// A negative stepDist makes itersolve step toward lower
			// coordinates; one move never reverses on a single axis.
			sd := stepDist
			if m.AxisD[i] < 0 {
				sd = -stepDist
			}
			steps := itersolve.GenerateSteps(m, i, sd)
			for _, s := range steps {
				absTime := m.PrintTime + s.Time
				if absTime <= drive.pushedTo {
					continue
				}
				if drive.stepper.QueueCount() >= drive.stepper.QueueCapacity() {
					break moves
				}
				ticks := base + uint32(absTime*core.TimerFreq)
				if err := drive.stepper.PushEdge(ticks, s.Dir); err != nil {
					break moves
				}
				drive.pushedTo = absTime
			}
			// This move contributed every edge it has on this axis (or
			// none at all): advance past it so a move with no travel on
			// this axis never blocks finalization.
			drive.pushedTo = m.EndTime()
		}

		if drive.pushedTo < minPushed {
			minPushed = drive.pushedTo
		}
	}

	if configured {
		p.flushedTo = minPushed
		p.q.FinalizeMoves(minPushed)
	} else {
		p.flushedTo = p.printTime
		p.q.FinalizeMoves(p.printTime)
	}
}

// RefillSteps re-runs step generation against the current queue state.
// Call it every scheduler tick (Manager.Tick does) so a move whose step
// count exceeds any stepper's queue capacity keeps draining instead of
// stalling after generateSteps' first, queue-limited burst.
func (p *Planner) RefillSteps() {
	p.generateSteps()
}

// tickBase returns the tick value corresponding to printTime == 0,
// latching it the first time the queue has anything to emit.
func (p *Planner) tickBase() (uint32, bool) {
	if !p.haveBase {
		p.queueBaseTicks = core.GetTime()
		p.haveBase = true
	}
	return p.queueBaseTicks, true
}

// GetCurrentPosition returns the machine's realised position (lagging
// the commanded position while queued moves are still executing). With
// no segment ever queued, or right after SetPosition clears the queue,
// there is nothing to lag behind, so it reports the forced/commanded
// position directly instead of trapq's empty-queue zero value.
func (p *Planner) GetCurrentPosition() standalone.Position {
	if p.q.Empty() {
		return vecToPosition(p.commandedPos)
	}
	vec := p.q.GetPosition(p.printTime)
	return vecToPosition(vec)
}

// SetPosition forces both the commanded and realised position without
// motion (G92, and the post-trigger zeroing step of homing).
func (p *Planner) SetPosition(pos standalone.Position) {
	vec := positionToVec(pos)
	p.commandedPos = vec
	p.q.Reset()
	p.printTime = 0
	p.flushedTo = 0
	p.haveBase = false

	for i, name := range axisOrder {
		drive, ok := p.axes[name]
		if !ok {
			continue
		}
		drive.stepper.SetPosition(int64(math.Round(vec[i] * drive.stepsPerMM)))
		drive.pushedTo = 0
	}
}

// ClearQueue drops every buffered and queued move and stops all motion.
func (p *Planner) ClearQueue() {
	p.lookahead = p.lookahead[:0]
	p.q.Reset()
	p.printTime = 0
	p.flushedTo = 0
	p.haveBase = false
	for _, drive := range p.axes {
		drive.stepper.Stop()
		drive.pushedTo = 0
	}
}

// IsIdle reports whether every axis has no pulses in flight or queued
// and the lookahead buffer is empty.
func (p *Planner) IsIdle() bool {
	if len(p.lookahead) > 0 {
		return false
	}
	for _, drive := range p.axes {
		if drive.stepper.IsActive() {
			return false
		}
	}
	return true
}

// Home runs the blocking fast-approach/retract homing sequence for the
// named axes, mirroring toolhead_home. It spins the scheduler itself
// (sched_main in the original) since homing needs the endstop's sampled
// trigger and the stepper's pulse timers to keep advancing while it
// waits; this is acceptable for G28 specifically, unlike a temperature
// wait, because a homing pass is expected to complete in a bounded,
// short window and nothing else needs to run concurrently with it.
func (p *Planner) Home(axisNames []string, homingSpeed, retractDist, timeoutSeconds float64) error {
	p.FlushLookahead()

	if homingSpeed <= 0 {
		homingSpeed = p.config.HomingSpeed
	}
	if homingSpeed <= 0 {
		homingSpeed = 10.0
	}
	if retractDist <= 0 {
		retractDist = p.config.HomingRetract
	}
	if retractDist <= 0 {
		retractDist = 5.0
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = p.config.HomingTimeout
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30.0
	}

	restTicks := core.TimerFromUS(1000)

	var drives []*axisDrive
	for _, name := range axisNames {
		drive, ok := p.axes[name]
		if !ok || drive.endstop == nil {
			continue
		}
		drives = append(drives, drive)
		drive.endstop.StartHoming(restTicks)
	}
	if len(drives) == 0 {
		return errs.ErrBadArgument
	}

	target := p.commandedPos
	for i, name := range axisOrder {
		for _, n := range axisNames {
			if n == name {
				if axCfg, ok := p.config.Axes[name]; ok {
					target[i] = axCfg.MinPosition - 10.0
				}
			}
		}
	}
	if err := p.queueRawMove(target, homingSpeed*2.0); err != nil {
		return err
	}
	p.FlushLookahead()

	deadline := p.printTime + timeoutSeconds
	triggered := false
	for !triggered && p.printTime < deadline {
		core.ProcessTimers()
		p.generateSteps()
		for _, drive := range drives {
			if drive.endstop.Triggered() {
				triggered = true
			}
		}
	}

	for _, drive := range drives {
		drive.stepper.Stop()
		drive.endstop.StopHoming()
	}

	if !triggered {
		return errs.ErrHomingFailed
	}

	pos := p.GetCurrentPosition()
	vec := positionToVec(pos)
	for i, name := range axisOrder {
		for _, n := range axisNames {
			if n == name {
				vec[i] = 0
			}
		}
	}
	p.SetPosition(vecToPosition(vec))

	retractTarget := p.commandedPos
	for i, name := range axisOrder {
		for _, n := range axisNames {
			if n == name {
				retractTarget[i] = retractDist
			}
		}
	}
	if err := p.queueRawMove(retractTarget, homingSpeed); err != nil {
		return err
	}
	p.FlushLookahead()
	p.waitIdleSpin()

	return nil
}

// queueRawMove bypasses QueueMove's limit check, used internally by
// homing where the target is deliberately outside the configured travel.
func (p *Planner) queueRawMove(end [trapq.NumAxes]float64, maxV float64) error {
	start := p.commandedPos
	distance := distance4D(start, end)
	if distance < minMoveDistance {
		return nil
	}
	pm := pendingMove{startPos: start, endPos: end, distance: distance, maxV: maxV}
	p.lookahead = append(p.lookahead, pm)
	p.commandedPos = end
	return nil
}

// waitIdleSpin advances the scheduler until every stepper has drained
// its queue, used by Home's retract step and by WaitIdle.
func (p *Planner) waitIdleSpin() {
	for !p.IsIdle() {
		core.ProcessTimers()
		p.generateSteps()
	}
}

// WaitIdle blocks until every queued move has been stepped out.
func (p *Planner) WaitIdle() error {
	p.FlushLookahead()
	p.waitIdleSpin()
	return nil
}

// calcTrapezoidalProfile resolves accel/cruise/decel durations for a
// move, falling back to a triangle (no-cruise) profile when distance is
// too short to reach cruiseV. Ported from calc_trapezoidal_profile.
func calcTrapezoidalProfile(distance, startV, cruiseV, endV, accel float64) (accelT, cruiseT, decelT float64) {
	var accelDist, decelDist float64
	if cruiseV > startV {
		accelT = (cruiseV - startV) / accel
		accelDist = (startV + cruiseV) * 0.5 * accelT
	}
	if cruiseV > endV {
		decelT = (cruiseV - endV) / accel
		decelDist = (cruiseV + endV) * 0.5 * decelT
	}

	cruiseDist := distance - accelDist - decelDist
	if cruiseDist < 0 {
		peakVSq := (startV*startV+endV*endV)*0.5 + accel*distance
		peakV := math.Sqrt(math.Max(peakVSq, 0))
		if peakV < startV {
			peakV = startV
		}
		if peakV < endV {
			peakV = endV
		}

		if peakV > startV {
			accelT = (peakV - startV) / accel
		} else {
			accelT = 0
		}
		if peakV > endV {
			decelT = (peakV - endV) / accel
		} else {
			decelT = 0
		}
		cruiseT = 0
		return
	}
	cruiseT = cruiseDist / cruiseV
	return
}

// calcJunctionVelocity bounds the cornering speed between two moves by
// the angle between their direction vectors, using only the X, Y, Z
// components (extrusion direction never affects cornering). Ported from
// calc_junction_velocity.
func calcJunctionVelocity(prevDir, currDir [trapq.NumAxes]float64, maxV, squareCornerVelocity, maxAccel float64) float64 {
	dot := prevDir[0]*currDir[0] + prevDir[1]*currDir[1] + prevDir[2]*currDir[2]

	if dot < -0.999 {
		return 0
	}
	if dot > 0.999 {
		return maxV
	}

	sinHalfTheta := math.Sqrt((1.0 - dot) * 0.5)
	deviation := squareCornerVelocity * squareCornerVelocity / maxAccel
	junctionV := math.Sqrt(maxAccel * deviation / sinHalfTheta)
	if junctionV > maxV {
		junctionV = maxV
	}
	return junctionV
}

func distance4D(a, b [trapq.NumAxes]float64) float64 {
	var sum float64
	for i := 0; i < trapq.NumAxes; i++ {
		d := b[i] - a[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func direction4D(start, end [trapq.NumAxes]float64, distance float64) [trapq.NumAxes]float64 {
	var dir [trapq.NumAxes]float64
	if distance <= 0 {
		return dir
	}
	for i := 0; i < trapq.NumAxes; i++ {
		dir[i] = (end[i] - start[i]) / distance
	}
	return dir
}

func positionToVec(pos standalone.Position) [trapq.NumAxes]float64 {
	return [trapq.NumAxes]float64{pos.X, pos.Y, pos.Z, pos.E}
}

func vecToPosition(vec [trapq.NumAxes]float64) standalone.Position {
	return standalone.Position{X: vec[0], Y: vec[1], Z: vec[2], E: vec[3]}
}
