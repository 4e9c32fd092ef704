// Package keyboard implements the keyboard codec.
//
// A key binding names one key press, written either as "Ctrl+Shift+P" or in
// Vim notation as "<C-S-p>". The canonical spec of the press is the message
// identifier and the mask is always empty, so a keyboard binding fires for
// every press of its key.
package keyboard

import (
	"fmt"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/cuecontrol/internal/codec"
	"github.com/dshills/cuecontrol/internal/dispatch"
	"github.com/dshills/cuecontrol/internal/dispatch/mask"
)

// Protocol is the registry name of the codec.
const Protocol = "keyboard"

// Codec is the keyboard codec. The zero value is ready to use.
type Codec struct{}

// New returns a keyboard codec.
func New() *Codec {
	return &Codec{}
}

// Protocol implements codec.Codec.
func (c *Codec) Protocol() string {
	return Protocol
}

// ParseIdentifier returns the canonical spec of the key in wire.
func (c *Codec) ParseIdentifier(wire string) (dispatch.Identifier, error) {
	k, err := Parse(wire)
	if err != nil {
		return "", &codec.ParseError{Protocol: Protocol, Wire: wire, Err: err}
	}
	return dispatch.Identifier(k.String()), nil
}

// ParseMask validates wire and returns the empty mask.
func (c *Codec) ParseMask(wire string) (mask.Mask, error) {
	if _, err := Parse(wire); err != nil {
		return nil, &codec.ParseError{Protocol: Protocol, Wire: wire, Err: err}
	}
	return mask.Mask{}, nil
}

// Format returns the identifier itself. Keyboard masks must be empty.
func (c *Codec) Format(id dispatch.Identifier, m mask.Mask) (string, error) {
	if m.Len() != 0 {
		return "", fmt.Errorf("keyboard: mask must be empty, got %s", m)
	}
	if _, err := Parse(string(id)); err != nil {
		return "", fmt.Errorf("keyboard: %w", err)
	}
	return string(id), nil
}

// Decode converts a terminal key event into its identifier. ok is false for
// keys with no canonical name.
func Decode(ev *tcell.EventKey) (dispatch.Identifier, bool) {
	k := FromTcell(ev)
	if k.IsZero() {
		return "", false
	}
	return dispatch.Identifier(k.String()), true
}

// FromTcell converts a terminal key event into a normalized Key.
func FromTcell(ev *tcell.EventKey) Key {
	mods := convertMod(ev.Modifiers())

	switch tk := ev.Key(); {
	case tk == tcell.KeyRune:
		return Key{Code: CodeRune, Rune: ev.Rune(), Mods: mods}.Normalize()
	case tk == tcell.KeyCtrlSpace:
		return Key{Code: CodeSpace, Mods: mods.With(ModCtrl)}
	case tk >= tcell.KeyCtrlA && tk <= tcell.KeyCtrlZ && !isControlAlias(tk):
		r := rune('a' + (tk - tcell.KeyCtrlA))
		return Key{Code: CodeRune, Rune: r, Mods: mods.With(ModCtrl)}.Normalize()
	default:
		code, ok := tcellCodes[tk]
		if !ok {
			return Key{}
		}
		return Key{Code: code, Mods: mods}
	}
}

// isControlAlias reports control codes that terminals send for named keys.
func isControlAlias(k tcell.Key) bool {
	return k == tcell.KeyTab || k == tcell.KeyEnter || k == tcell.KeyBackspace
}

var tcellCodes = map[tcell.Key]Code{
	tcell.KeyEscape:     CodeEscape,
	tcell.KeyEnter:      CodeEnter,
	tcell.KeyTab:        CodeTab,
	tcell.KeyBackspace:  CodeBackspace,
	tcell.KeyBackspace2: CodeBackspace,
	tcell.KeyDelete:     CodeDelete,
	tcell.KeyInsert:     CodeInsert,
	tcell.KeyHome:       CodeHome,
	tcell.KeyEnd:        CodeEnd,
	tcell.KeyPgUp:       CodePageUp,
	tcell.KeyPgDn:       CodePageDown,
	tcell.KeyUp:         CodeUp,
	tcell.KeyDown:       CodeDown,
	tcell.KeyLeft:       CodeLeft,
	tcell.KeyRight:      CodeRight,
	tcell.KeyF1:         CodeF1,
	tcell.KeyF2:         CodeF2,
	tcell.KeyF3:         CodeF3,
	tcell.KeyF4:         CodeF4,
	tcell.KeyF5:         CodeF5,
	tcell.KeyF6:         CodeF6,
	tcell.KeyF7:         CodeF7,
	tcell.KeyF8:         CodeF8,
	tcell.KeyF9:         CodeF9,
	tcell.KeyF10:        CodeF10,
	tcell.KeyF11:        CodeF11,
	tcell.KeyF12:        CodeF12,
	tcell.KeyPause:      CodePause,
}

// ToTcell builds the terminal event for k, the inverse of FromTcell.
func ToTcell(k Key) *tcell.EventKey {
	k = k.Normalize()
	mods := toTcellMod(k.Mods)

	switch k.Code {
	case CodeRune:
		r := k.Rune
		if k.Mods.HasShift() {
			r = toUpper(r)
		}
		return tcell.NewEventKey(tcell.KeyRune, r, mods)
	case CodeSpace:
		return tcell.NewEventKey(tcell.KeyRune, ' ', mods)
	}
	for tk, code := range tcellCodes {
		if code == k.Code && tk != tcell.KeyBackspace2 {
			return tcell.NewEventKey(tk, 0, mods)
		}
	}
	return tcell.NewEventKey(tcell.KeyRune, 0, mods)
}

func toUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}

func convertMod(m tcell.ModMask) Modifier {
	var result Modifier
	if m&tcell.ModShift != 0 {
		result |= ModShift
	}
	if m&tcell.ModCtrl != 0 {
		result |= ModCtrl
	}
	if m&tcell.ModAlt != 0 {
		result |= ModAlt
	}
	if m&tcell.ModMeta != 0 {
		result |= ModMeta
	}
	return result
}

func toTcellMod(m Modifier) tcell.ModMask {
	var result tcell.ModMask
	if m.Has(ModShift) {
		result |= tcell.ModShift
	}
	if m.Has(ModCtrl) {
		result |= tcell.ModCtrl
	}
	if m.Has(ModAlt) {
		result |= tcell.ModAlt
	}
	if m.Has(ModMeta) {
		result |= tcell.ModMeta
	}
	return result
}
