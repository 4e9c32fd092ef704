package control

import (
	"fmt"
	"strings"
	"unicode"
)

// CueAction is what a cue binding asks its cue to do.
type CueAction string

// Cue actions.
const (
	CueDefault          CueAction = "default"
	CueStart            CueAction = "start"
	CueResume           CueAction = "resume"
	CuePause            CueAction = "pause"
	CueStop             CueAction = "stop"
	CueInterrupt        CueAction = "interrupt"
	CueFadeInStart      CueAction = "fade_in_start"
	CueFadeOutStop      CueAction = "fade_out_stop"
	CueFadeOutPause     CueAction = "fade_out_pause"
	CueFadeOutInterrupt CueAction = "fade_out_interrupt"
)

var cueActions = []struct {
	action CueAction
	label  string
}{
	{CueDefault, "Default"},
	{CueStart, "Start"},
	{CueResume, "Resume"},
	{CuePause, "Pause"},
	{CueStop, "Stop"},
	{CueInterrupt, "Interrupt"},
	{CueFadeInStart, "Fade in and start"},
	{CueFadeOutStop, "Fade out and stop"},
	{CueFadeOutPause, "Fade out and pause"},
	{CueFadeOutInterrupt, "Fade out and interrupt"},
}

// CueActions returns every cue action in display order.
func CueActions() []CueAction {
	out := make([]CueAction, len(cueActions))
	for i, a := range cueActions {
		out[i] = a.action
	}
	return out
}

// ParseCueAction resolves a name the way ParseAction does. An empty name is
// the cue's default action.
func ParseCueAction(name string) (CueAction, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return CueDefault, nil
	}
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	for _, a := range cueActions {
		if string(a.action) == normalized {
			return a.action, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCueAction, name)
}

// Label returns the human readable name of the action.
func (a CueAction) Label() string {
	for _, info := range cueActions {
		if info.action == a {
			return info.label
		}
	}
	return string(a)
}

// String returns the action name.
func (a CueAction) String() string {
	return string(a)
}

// CueTarget performs actions on single cues. A Target that also implements
// CueTarget can serve cue bindings.
type CueTarget interface {
	PerformCue(cue string, action CueAction) error
}

// ValidateCueID checks that id can name a cue in logs and OSC addresses.
func ValidateCueID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty cue id", ErrInvalidBinding)
	}
	for _, r := range id {
		if r == '/' || unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return fmt.Errorf("%w: cue id %q contains %q", ErrInvalidBinding, id, r)
		}
	}
	return nil
}
