package shmif

// Category splits the event stream into device input, commands aimed at
// the segment owner and messages aimed at the compositor.
type Category uint8

const (
	CategoryIO Category = iota + 1
	CategoryTarget
	CategoryExternal
)

// DevKind is the kind of device an IO event originates from.
type DevKind uint8

const (
	DevKeyboard DevKind = iota + 1
	DevMouse
	DevGame
	DevTouch
)

// DataType says how an IO event payload is to be read.
type DataType uint8

const (
	DataTranslated DataType = iota + 1
	DataDigital
	DataAnalog
	DataTouch
)

// Mouse button sub-ids for digital IO events.
const (
	MouseLeft uint16 = iota + 1
	MouseRight
	MouseMiddle
	MouseWheelUp
	MouseWheelDown
)

// AxisCount is the number of analog samples an IO event can carry.
const AxisCount = 4

// IOEvent is a device input event.
type IOEvent struct {
	DevKind  DevKind
	DataType DataType
	SubID    uint16

	// DataTranslated: Linux scan code and key state.
	// DataDigital: button state.
	Scancode uint16
	Active   bool

	// DataAnalog
	Relative bool
	Axis     [AxisCount]int32
}

// TargetKind enumerates commands sent from the compositor to the segment
// owner.
type TargetKind uint8

const (
	TargetExit TargetKind = iota + 1
	TargetReset
	TargetNewSegment
	TargetPause
	TargetUnpause
	TargetSetIODev
	TargetStore
	TargetRestore
	TargetDisplayHint
	TargetOutputHint
	TargetDeviceNode
)

func (k TargetKind) String() string {
	switch k {
	case TargetExit:
		return "exit"
	case TargetReset:
		return "reset"
	case TargetNewSegment:
		return "newsegment"
	case TargetPause:
		return "pause"
	case TargetUnpause:
		return "unpause"
	case TargetSetIODev:
		return "setiodev"
	case TargetStore:
		return "store"
	case TargetRestore:
		return "restore"
	case TargetDisplayHint:
		return "displayhint"
	case TargetOutputHint:
		return "outputhint"
	case TargetDeviceNode:
		return "devicenode"
	default:
		return "unknown"
	}
}

// TargetArgs is the number of integer arguments a target command carries.
const TargetArgs = 4

// Display hint flags, carried in argument 2 of a DisplayHint command.
const (
	DisplayHintInvisible int32 = 1 << 1
	DisplayHintUnfocused int32 = 1 << 2
	DisplayHintIgnore    int32 = 1 << 7
)

// TargetEvent is a command for the segment owner.
type TargetEvent struct {
	Kind TargetKind
	Args [TargetArgs]int32
}

// ExternalKind enumerates messages sent to the compositor.
type ExternalKind uint8

const (
	ExternalIdent ExternalKind = iota + 1
	ExternalCursorHint
	ExternalMessage
)

// MessageCapacity is the fixed size of an external message buffer,
// including the terminator. Text is limited to MessageCapacity-1 bytes.
const MessageCapacity = 78

// ExternalEvent is a message for the compositor.
type ExternalEvent struct {
	Kind    ExternalKind
	Message string
}

// Event is one entry of a segment event ring. Only the member selected by
// Category is meaningful.
type Event struct {
	Category Category
	IO       IOEvent
	Target   TargetEvent
	External ExternalEvent
}

// KeyEvent builds a translated keyboard event.
func KeyEvent(scancode uint16, pressed bool) Event {
	return Event{
		Category: CategoryIO,
		IO: IOEvent{
			DevKind:  DevKeyboard,
			DataType: DataTranslated,
			Scancode: scancode,
			Active:   pressed,
		},
	}
}

// ButtonEvent builds a digital mouse button event.
func ButtonEvent(subID uint16, pressed bool) Event {
	return Event{
		Category: CategoryIO,
		IO: IOEvent{
			DevKind:  DevMouse,
			DataType: DataDigital,
			SubID:    subID,
			Active:   pressed,
		},
	}
}

// AxisEvent builds an analog mouse axis event. Axis 0 is X.
func AxisEvent(axis uint16, value int32, relative bool) Event {
	ev := Event{
		Category: CategoryIO,
		IO: IOEvent{
			DevKind:  DevMouse,
			DataType: DataAnalog,
			SubID:    axis,
			Relative: relative,
		},
	}
	ev.IO.Axis[0] = value
	return ev
}

// Command builds a target command with up to TargetArgs arguments.
func Command(kind TargetKind, args ...int32) Event {
	ev := Event{Category: CategoryTarget, Target: TargetEvent{Kind: kind}}
	copy(ev.Target.Args[:], args)
	return ev
}

// DisplayHint builds a display hint command carrying the given flags.
func DisplayHint(width, height, flags int32) Event {
	return Command(TargetDisplayHint, width, height, flags)
}

// Message builds an external event.
func Message(kind ExternalKind, text string) Event {
	return Event{
		Category: CategoryExternal,
		External: ExternalEvent{Kind: kind, Message: text},
	}
}
