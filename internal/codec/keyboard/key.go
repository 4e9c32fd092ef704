package keyboard

import (
	"fmt"
	"strings"
	"unicode"
)

// Code identifies a non-character key. Character keys use CodeRune.
type Code uint8

const (
	CodeNone Code = iota
	CodeEscape
	CodeEnter
	CodeTab
	CodeBackspace
	CodeDelete
	CodeInsert
	CodeHome
	CodeEnd
	CodePageUp
	CodePageDown
	CodeUp
	CodeDown
	CodeLeft
	CodeRight
	CodeF1
	CodeF2
	CodeF3
	CodeF4
	CodeF5
	CodeF6
	CodeF7
	CodeF8
	CodeF9
	CodeF10
	CodeF11
	CodeF12
	CodeSpace
	CodePause

	// CodeRune is a character key; the character is in Key.Rune.
	CodeRune
)

var codeNames = map[Code]string{
	CodeEscape:    "Escape",
	CodeEnter:     "Enter",
	CodeTab:       "Tab",
	CodeBackspace: "Backspace",
	CodeDelete:    "Delete",
	CodeInsert:    "Insert",
	CodeHome:      "Home",
	CodeEnd:       "End",
	CodePageUp:    "PageUp",
	CodePageDown:  "PageDown",
	CodeUp:        "Up",
	CodeDown:      "Down",
	CodeLeft:      "Left",
	CodeRight:     "Right",
	CodeF1:        "F1",
	CodeF2:        "F2",
	CodeF3:        "F3",
	CodeF4:        "F4",
	CodeF5:        "F5",
	CodeF6:        "F6",
	CodeF7:        "F7",
	CodeF8:        "F8",
	CodeF9:        "F9",
	CodeF10:       "F10",
	CodeF11:       "F11",
	CodeF12:       "F12",
	CodeSpace:     "Space",
	CodePause:     "Pause",
}

// String returns the canonical key name.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	if c == CodeRune {
		return "Rune"
	}
	return fmt.Sprintf("Code(%d)", c)
}

// codeAliases maps lowercase names, including Vim aliases, to codes.
var codeAliases = map[string]Code{
	"escape":    CodeEscape,
	"esc":       CodeEscape,
	"enter":     CodeEnter,
	"return":    CodeEnter,
	"cr":        CodeEnter,
	"tab":       CodeTab,
	"backspace": CodeBackspace,
	"bs":        CodeBackspace,
	"delete":    CodeDelete,
	"del":       CodeDelete,
	"insert":    CodeInsert,
	"ins":       CodeInsert,
	"home":      CodeHome,
	"end":       CodeEnd,
	"pageup":    CodePageUp,
	"pgup":      CodePageUp,
	"pagedown":  CodePageDown,
	"pgdn":      CodePageDown,
	"up":        CodeUp,
	"down":      CodeDown,
	"left":      CodeLeft,
	"right":     CodeRight,
	"f1":        CodeF1,
	"f2":        CodeF2,
	"f3":        CodeF3,
	"f4":        CodeF4,
	"f5":        CodeF5,
	"f6":        CodeF6,
	"f7":        CodeF7,
	"f8":        CodeF8,
	"f9":        CodeF9,
	"f10":       CodeF10,
	"f11":       CodeF11,
	"f12":       CodeF12,
	"space":     CodeSpace,
	"pause":     CodePause,
}

// runeAliases are Vim names for characters that are awkward in key specs.
var runeAliases = map[string]rune{
	"lt":     '<',
	"gt":     '>',
	"bar":    '|',
	"bslash": '\\',
	"plus":   '+',
	"minus":  '-',
}

// Key is a normalized key press: a code or character plus modifiers.
type Key struct {
	Code Code
	Rune rune
	Mods Modifier
}

// Normalize returns the canonical form of k so that equal presses compare
// equal regardless of how they were written or reported.
//
// The space character becomes CodeSpace. For plain characters Shift is
// folded into the character ("Shift+a" is "A"). With Ctrl, Alt or Meta held
// letters are stored lowercase and Shift is kept as a modifier.
func (k Key) Normalize() Key {
	if k.Code != CodeRune {
		k.Rune = 0
		return k
	}
	if k.Rune == ' ' {
		return Key{Code: CodeSpace, Mods: k.Mods}
	}

	chord := k.Mods&(ModCtrl|ModAlt|ModMeta) != 0
	switch {
	case !chord:
		if k.Mods.HasShift() {
			k.Rune = unicode.ToUpper(k.Rune)
		}
		k.Mods = k.Mods.Without(ModShift)
	case unicode.IsUpper(k.Rune):
		k.Rune = unicode.ToLower(k.Rune)
		k.Mods = k.Mods.With(ModShift)
	}
	return k
}

// String returns the canonical spec, e.g. "Ctrl+Shift+P", "F5" or "a".
func (k Key) String() string {
	k = k.Normalize()

	var name string
	switch k.Code {
	case CodeRune:
		if k.Mods.IsEmpty() {
			return string(k.Rune)
		}
		name = string(unicode.ToUpper(k.Rune))
		if k.Rune == '+' {
			name = "Plus"
		}
	case CodeNone:
		return ""
	default:
		name = k.Code.String()
	}

	if k.Mods.IsEmpty() {
		return name
	}
	return k.Mods.String() + "+" + name
}

// IsZero reports whether k is the empty key.
func (k Key) IsZero() bool {
	return k.Code == CodeNone
}

func lookupName(name string) (Key, bool) {
	lower := strings.ToLower(strings.TrimSpace(name))
	if c, ok := codeAliases[lower]; ok {
		return Key{Code: c}, true
	}
	if r, ok := runeAliases[lower]; ok {
		return Key{Code: CodeRune, Rune: r}, true
	}
	return Key{}, false
}
