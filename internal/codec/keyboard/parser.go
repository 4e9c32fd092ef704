package keyboard

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Parse errors.
var (
	ErrEmptySpec   = errors.New("empty key specification")
	ErrInvalidSpec = errors.New("invalid key specification")
)

// Parse parses a key specification.
//
// Supported formats:
//   - Single character: "a", "A", "1", "@"
//   - Key names: "Enter", "Escape", "Space", "F5"
//   - With modifiers: "Ctrl+S", "Alt+F4", "Ctrl+Shift+P"
//   - Vim-style: "<C-s>", "<A-F4>", "<C-S-p>", "<CR>", "<Space>"
func Parse(spec string) (Key, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Key{}, ErrEmptySpec
	}

	if utf8.RuneCountInString(spec) == 1 {
		r, _ := utf8.DecodeRuneInString(spec)
		return Key{Code: CodeRune, Rune: r}.Normalize(), nil
	}

	if strings.HasPrefix(spec, "<") && strings.HasSuffix(spec, ">") {
		return parseVim(spec[1 : len(spec)-1])
	}

	if strings.Contains(spec, "+") {
		return parseChord(spec)
	}

	return parseKey(spec, ModNone)
}

// parseVim parses the inside of <...>, e.g. "C-s" or "CR".
func parseVim(inner string) (Key, error) {
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return Key{}, ErrInvalidSpec
	}

	parts := strings.Split(inner, "-")
	// "<C-->" binds Ctrl and the minus key.
	if strings.HasSuffix(inner, "--") {
		parts = append(strings.Split(strings.TrimSuffix(inner, "--"), "-"), "-")
	}

	var mods Modifier
	for _, p := range parts[:len(parts)-1] {
		mod, ok := vimModifiers[strings.ToLower(strings.TrimSpace(p))]
		if !ok {
			return Key{}, fmt.Errorf("%w: unknown modifier %q", ErrInvalidSpec, p)
		}
		mods = mods.With(mod)
	}
	return parseKey(parts[len(parts)-1], mods)
}

// parseChord parses "Ctrl+Shift+P" notation.
func parseChord(spec string) (Key, error) {
	parts := strings.Split(spec, "+")
	// "Ctrl++" binds Ctrl and the plus key.
	if strings.HasSuffix(spec, "++") {
		parts = append(strings.Split(strings.TrimSuffix(spec, "++"), "+"), "+")
	}

	var mods Modifier
	for _, p := range parts[:len(parts)-1] {
		mod, ok := modifierNames[strings.ToLower(strings.TrimSpace(p))]
		if !ok {
			return Key{}, fmt.Errorf("%w: unknown modifier %q", ErrInvalidSpec, p)
		}
		mods = mods.With(mod)
	}
	return parseKey(parts[len(parts)-1], mods)
}

// parseKey parses the key part of a spec with already-known modifiers.
func parseKey(part string, mods Modifier) (Key, error) {
	part = strings.TrimSpace(part)
	if part == "" {
		return Key{}, fmt.Errorf("%w: missing key", ErrInvalidSpec)
	}

	if k, ok := lookupName(part); ok {
		k.Mods = mods
		return k.Normalize(), nil
	}

	if utf8.RuneCountInString(part) == 1 {
		r, _ := utf8.DecodeRuneInString(part)
		k := Key{Code: CodeRune, Rune: r, Mods: mods}
		// "Ctrl+S" means the S key, not Ctrl+Shift+S.
		if mods&(ModCtrl|ModAlt|ModMeta) != 0 && !mods.HasShift() {
			k.Rune = toLower(r)
		}
		return k.Normalize(), nil
	}

	return Key{}, fmt.Errorf("%w: unknown key %q", ErrInvalidSpec, part)
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

// MustParse parses a key specification and panics on error.
// Use only for known-valid specs in initialization code.
func MustParse(spec string) Key {
	k, err := Parse(spec)
	if err != nil {
		panic("invalid key specification: " + spec + ": " + err.Error())
	}
	return k
}
