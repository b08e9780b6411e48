package input

import "fmt"

// KeyCode is a canonical key identifier as understood by the guest's
// virtual keyboard. KeyUnmapped is never sent to a device.
type KeyCode int

const (
	KeyUnmapped KeyCode = iota
	KeyEsc
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
	Key0
	KeyMinus
	KeyEqual
	KeyBackspace
	KeyTab
	KeyQ
	KeyW
	KeyE
	KeyR
	KeyT
	KeyY
	KeyU
	KeyI
	KeyO
	KeyP
	KeyBracketLeft
	KeyBracketRight
	KeyReturn
	KeyCtrl
	KeyA
	KeyS
	KeyD
	KeyF
	KeyG
	KeyH
	KeyJ
	KeyK
	KeyL
	KeySemicolon
	KeyApostrophe
	KeyGraveAccent
	KeyShift
	KeyBackslash
	KeyZ
	KeyX
	KeyC
	KeyV
	KeyB
	KeyN
	KeyM
	KeyComma
	KeyDot
	KeySlash
	KeyShiftR
	KeyKPMultiply
	KeyAlt
	KeySpace
	KeyCapsLock
	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyNumLock
	KeyScrollLock
	KeyKP7
	KeyKP8
	KeyKP9
	KeyKPSubtract
	KeyKP4
	KeyKP5
	KeyKP6
	KeyKPAdd
	KeyKP1
	KeyKP2
	KeyKP3
	KeyKP0
	KeyKPDecimal
	KeyLess
	KeyF11
	KeyF12
	KeyKPEnter
	KeyCtrlR
	KeyKPDivide
	KeySysRq
	KeyAltR
	KeyHome
	KeyUp
	KeyPageUp
	KeyLeft
	KeyRight
	KeyEnd
	KeyDown
	KeyPageDown
	KeyInsert
	KeyDelete
	KeyMetaL
	KeyMetaR
	KeyMenu

	keyCount
)

// MaxScancode bounds the Linux scan codes the translation table covers.
const MaxScancode = 256

var keyTable = []struct {
	linux uint16
	key   KeyCode
	name  string
}{
	{1, KeyEsc, "esc"},
	{2, Key1, "1"},
	{3, Key2, "2"},
	{4, Key3, "3"},
	{5, Key4, "4"},
	{6, Key5, "5"},
	{7, Key6, "6"},
	{8, Key7, "7"},
	{9, Key8, "8"},
	{10, Key9, "9"},
	{11, Key0, "0"},
	{12, KeyMinus, "minus"},
	{13, KeyEqual, "equal"},
	{14, KeyBackspace, "backspace"},
	{15, KeyTab, "tab"},
	{16, KeyQ, "q"},
	{17, KeyW, "w"},
	{18, KeyE, "e"},
	{19, KeyR, "r"},
	{20, KeyT, "t"},
	{21, KeyY, "y"},
	{22, KeyU, "u"},
	{23, KeyI, "i"},
	{24, KeyO, "o"},
	{25, KeyP, "p"},
	{26, KeyBracketLeft, "bracket_left"},
	{27, KeyBracketRight, "bracket_right"},
	{28, KeyReturn, "ret"},
	{29, KeyCtrl, "ctrl"},
	{30, KeyA, "a"},
	{31, KeyS, "s"},
	{32, KeyD, "d"},
	{33, KeyF, "f"},
	{34, KeyG, "g"},
	{35, KeyH, "h"},
	{36, KeyJ, "j"},
	{37, KeyK, "k"},
	{38, KeyL, "l"},
	{39, KeySemicolon, "semicolon"},
	{40, KeyApostrophe, "apostrophe"},
	{41, KeyGraveAccent, "grave_accent"},
	{42, KeyShift, "shift"},
	{43, KeyBackslash, "backslash"},
	{44, KeyZ, "z"},
	{45, KeyX, "x"},
	{46, KeyC, "c"},
	{47, KeyV, "v"},
	{48, KeyB, "b"},
	{49, KeyN, "n"},
	{50, KeyM, "m"},
	{51, KeyComma, "comma"},
	{52, KeyDot, "dot"},
	{53, KeySlash, "slash"},
	{54, KeyShiftR, "shift_r"},
	{55, KeyKPMultiply, "kp_multiply"},
	{56, KeyAlt, "alt"},
	{57, KeySpace, "spc"},
	{58, KeyCapsLock, "caps_lock"},
	{59, KeyF1, "f1"},
	{60, KeyF2, "f2"},
	{61, KeyF3, "f3"},
	{62, KeyF4, "f4"},
	{63, KeyF5, "f5"},
	{64, KeyF6, "f6"},
	{65, KeyF7, "f7"},
	{66, KeyF8, "f8"},
	{67, KeyF9, "f9"},
	{68, KeyF10, "f10"},
	{69, KeyNumLock, "num_lock"},
	{70, KeyScrollLock, "scroll_lock"},
	{71, KeyKP7, "kp_7"},
	{72, KeyKP8, "kp_8"},
	{73, KeyKP9, "kp_9"},
	{74, KeyKPSubtract, "kp_subtract"},
	{75, KeyKP4, "kp_4"},
	{76, KeyKP5, "kp_5"},
	{77, KeyKP6, "kp_6"},
	{78, KeyKPAdd, "kp_add"},
	{79, KeyKP1, "kp_1"},
	{80, KeyKP2, "kp_2"},
	{81, KeyKP3, "kp_3"},
	{82, KeyKP0, "kp_0"},
	{83, KeyKPDecimal, "kp_decimal"},
	{86, KeyLess, "less"},
	{87, KeyF11, "f11"},
	{88, KeyF12, "f12"},
	{96, KeyKPEnter, "kp_enter"},
	{97, KeyCtrlR, "ctrl_r"},
	{98, KeyKPDivide, "kp_divide"},
	{99, KeySysRq, "sysrq"},
	{100, KeyAltR, "alt_r"},
	{102, KeyHome, "home"},
	{103, KeyUp, "up"},
	{104, KeyPageUp, "pgup"},
	{105, KeyLeft, "left"},
	{106, KeyRight, "right"},
	{107, KeyEnd, "end"},
	{108, KeyDown, "down"},
	{109, KeyPageDown, "pgdn"},
	{110, KeyInsert, "insert"},
	{111, KeyDelete, "delete"},
	{125, KeyMetaL, "meta_l"},
	{126, KeyMetaR, "meta_r"},
	{139, KeyMenu, "menu"},
}

var (
	fromLinux [MaxScancode]KeyCode
	toLinux   [keyCount]uint16
	keyNames  [keyCount]string
)

func init() {
	for _, k := range keyTable {
		fromLinux[k.linux] = k.key
		toLinux[k.key] = k.linux
		keyNames[k.key] = k.name
	}
}

// Translate maps a Linux evdev scan code to a KeyCode. Codes outside the
// table yield KeyUnmapped.
func Translate(scancode uint16) KeyCode {
	if int(scancode) >= MaxScancode {
		return KeyUnmapped
	}
	return fromLinux[scancode]
}

// Linux returns the evdev scan code for k.
func (k KeyCode) Linux() (uint16, bool) {
	if k <= KeyUnmapped || k >= keyCount {
		return 0, false
	}
	return toLinux[k], true
}

func (k KeyCode) String() string {
	if k <= KeyUnmapped || k >= keyCount {
		return fmt.Sprintf("unmapped(%d)", int(k))
	}
	return keyNames[k]
}
