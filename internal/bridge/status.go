package bridge

import (
	"fmt"
	"unicode/utf8"

	"github.com/bnema/segbridge/internal/shmif"
)

// maxIdentLen leaves room for the message terminator.
const maxIdentLen = shmif.MessageCapacity - 1

// BroadcastStatus sends the identity line to every live segment.
func (b *Bridge) BroadcastStatus() {
	running := b.run.IsRunning()
	for _, s := range b.segments {
		if !s.t.Connected() {
			continue
		}
		msg := FormatIdent(s.index, b.led, b.opts.Label, running)
		if err := s.t.Enqueue(shmif.Message(shmif.ExternalIdent, msg)); err != nil {
			s.log.Debug("Status not delivered", "error", err)
		}
	}
}

// FormatIdent renders VM[<index>][<S><N><C>]:<label>(<state>) and truncates
// the result to fit one message without splitting a UTF-8 sequence.
func FormatIdent(index, led int, label string, running bool) string {
	flags := make([]byte, 0, 3)
	if led&LEDScroll != 0 {
		flags = append(flags, 'S')
	}
	if led&LEDNum != 0 {
		flags = append(flags, 'N')
	}
	if led&LEDCaps != 0 {
		flags = append(flags, 'C')
	}

	state := "Suspended"
	if running {
		state = "Running"
	}
	return truncateUTF8(fmt.Sprintf("VM[%d][%s]:%s(%s)", index, flags, label, state), maxIdentLen)
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
