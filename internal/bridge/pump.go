package bridge

import (
	"github.com/bnema/segbridge/internal/input"
	"github.com/bnema/segbridge/internal/shmif"
)

// Pump drains the segment's inbound queue. It returns true when any
// device event reached the input queue and a sync is due.
func (s *DisplaySegment) Pump() bool {
	var (
		ev      shmif.Event
		handled bool
		drained int
	)
	limit := s.bridge.opts.DrainCap

	for s.t.Poll(&ev) {
		switch ev.Category {
		case shmif.CategoryIO:
			if s.handleInput(&ev.IO) {
				handled = true
			}
		case shmif.CategoryTarget:
			if s.handleCommand(&ev.Target) {
				handled = true
			}
		default:
			s.log.Debug("Ignoring event", "category", ev.Category)
		}

		drained++
		if limit > 0 && drained >= limit {
			s.log.Debug("Drain cap reached, deferring remaining events", "cap", limit)
			break
		}
	}
	return handled
}

// Refresh asks the guest for a redraw, pumps events and syncs input once
// when anything was handled.
func (s *DisplaySegment) Refresh() {
	s.bridge.host.RequestRedraw()
	if !s.Pump() {
		return
	}
	if err := s.bridge.queue.Sync(); err != nil {
		s.log.Debug("Input sync failed", "error", err)
	}
}

func (s *DisplaySegment) handleInput(io *shmif.IOEvent) bool {
	q := s.bridge.queue

	if io.DevKind != shmif.DevKeyboard && io.DevKind != shmif.DevMouse {
		s.log.Debug("Ignoring input device", "devkind", io.DevKind)
		return false
	}

	switch io.DataType {
	case shmif.DataTranslated:
		code := input.Translate(io.Scancode)
		if code == input.KeyUnmapped {
			s.log.Debug("Dropping unmapped scancode", "scancode", io.Scancode)
			return false
		}
		s.pressed[io.Scancode] = io.Active
		if err := q.QueueKey(code, io.Active); err != nil {
			s.log.Debug("Key not queued", "key", code, "error", err)
		}
		return true

	case shmif.DataDigital:
		btn, ok := buttonFor(io.SubID)
		if !ok {
			s.log.Debug("Ignoring button", "subid", io.SubID)
			return false
		}
		if err := q.QueueButton(btn, io.Active); err != nil {
			s.log.Debug("Button not queued", "button", btn, "error", err)
		}
		return true

	case shmif.DataAnalog:
		axis, extent := input.AxisX, s.t.Width()
		if io.SubID != 0 {
			axis, extent = input.AxisY, s.t.Height()
		}
		value := int(io.Axis[0])

		var err error
		if io.Relative {
			err = q.QueueRelativeAxis(axis, value)
		} else {
			err = q.QueueAbsoluteAxis(axis, value, 0, extent)
		}
		if err != nil {
			s.log.Debug("Motion not queued", "axis", axis, "error", err)
		}
		return true
	}

	s.log.Debug("Ignoring input event", "devkind", io.DevKind, "datatype", io.DataType)
	return false
}

func buttonFor(subID uint16) (input.Button, bool) {
	switch subID {
	case shmif.MouseLeft:
		return input.ButtonLeft, true
	case shmif.MouseRight:
		return input.ButtonRight, true
	case shmif.MouseMiddle:
		return input.ButtonMiddle, true
	case shmif.MouseWheelUp:
		return input.ButtonWheelUp, true
	case shmif.MouseWheelDown:
		return input.ButtonWheelDown, true
	default:
		return 0, false
	}
}

// handleCommand applies a compositor command. It returns true when key
// releases were queued.
func (s *DisplaySegment) handleCommand(cmd *shmif.TargetEvent) bool {
	run := s.bridge.run

	switch cmd.Kind {
	case shmif.TargetExit:
		s.log.Info("Compositor requested exit")
		run.RequestShutdown(CauseHostUI)

	case shmif.TargetReset:
		switch cmd.Args[0] {
		case 0, 1:
			s.log.Info("Compositor requested reset", "level", cmd.Args[0])
			run.RequestReset(CauseGuestReset)
		case 2, 3:
			s.log.Debug("Compositor state lost, re-announcing", "level", cmd.Args[0])
			s.bridge.BroadcastStatus()
		}
		s.PushRegion(0, 0, s.t.Width(), s.t.Height())

	case shmif.TargetPause:
		if run.IsRunning() {
			s.log.Debug("Pause requested")
		}

	case shmif.TargetUnpause:
		if !run.IsRunning() {
			s.log.Debug("Unpause requested")
		}

	case shmif.TargetDisplayHint:
		return s.applyDisplayHint(cmd.Args[2])

	case shmif.TargetNewSegment, shmif.TargetOutputHint, shmif.TargetDeviceNode,
		shmif.TargetSetIODev, shmif.TargetStore, shmif.TargetRestore:
		s.log.Debug("Acknowledged command", "kind", cmd.Kind)

	default:
		s.log.Debug("Ignoring command", "kind", cmd.Kind)
	}
	return false
}

// applyDisplayHint handles the visibility and focus bits of a display hint.
func (s *DisplaySegment) applyDisplayHint(flags int32) bool {
	if flags&shmif.DisplayHintIgnore != 0 {
		return false
	}

	if flags&shmif.DisplayHintInvisible != 0 {
		s.setInterval(s.bridge.opts.HiddenRefreshInterval)
		s.hidden = true
	} else if s.hidden {
		s.setInterval(s.bridge.opts.RefreshInterval)
		s.hidden = false
	}

	if flags&shmif.DisplayHintUnfocused != 0 {
		return s.ResetPressed() > 0
	}
	return false
}
