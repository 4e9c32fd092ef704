package control

import (
	"fmt"
	"strings"
)

// Action is a session-wide command a binding can trigger.
type Action string

// Session actions without arguments.
const (
	ActionGo                Action = "go"
	ActionPauseAll          Action = "pause_all"
	ActionResumeAll         Action = "resume_all"
	ActionStopAll           Action = "stop_all"
	ActionInterruptAll      Action = "interrupt_all"
	ActionSelectNext        Action = "select_next"
	ActionSelectPrev        Action = "select_prev"
	ActionReset             Action = "reset"
	ActionPauseSelected     Action = "pause_selected"
	ActionResumeSelected    Action = "resume_selected"
	ActionStopSelected      Action = "stop_selected"
	ActionInterruptSelected Action = "interrupt_selected"
)

// Session actions taking a cue or page index.
const (
	ActionGoNum        Action = "go_num"
	ActionPauseNum     Action = "pause_num"
	ActionResumeNum    Action = "resume_num"
	ActionStopNum      Action = "stop_num"
	ActionInterruptNum Action = "interrupt_num"
	ActionSelectNum    Action = "select_num"
	ActionPage         Action = "page"
)

type actionInfo struct {
	label string
	arity int
}

var actions = map[Action]actionInfo{
	ActionGo:                {"Go", 0},
	ActionPauseAll:          {"Pause all", 0},
	ActionResumeAll:         {"Resume all", 0},
	ActionStopAll:           {"Stop all", 0},
	ActionInterruptAll:      {"Interrupt all", 0},
	ActionSelectNext:        {"Select next", 0},
	ActionSelectPrev:        {"Select previous", 0},
	ActionReset:             {"Reset", 0},
	ActionPauseSelected:     {"Pause selected", 0},
	ActionResumeSelected:    {"Resume selected", 0},
	ActionStopSelected:      {"Stop selected", 0},
	ActionInterruptSelected: {"Interrupt selected", 0},
	ActionGoNum:             {"Go [Cue index]", 1},
	ActionPauseNum:          {"Pause [Cue index]", 1},
	ActionResumeNum:         {"Resume [Cue index]", 1},
	ActionStopNum:           {"Stop [Cue index]", 1},
	ActionInterruptNum:      {"Interrupt [Cue index]", 1},
	ActionSelectNum:         {"Select [Cue index]", 1},
	ActionPage:              {"Page [Page index]", 1},
}

// actionOrder is the display order of Actions.
var actionOrder = []Action{
	ActionGo, ActionPauseAll, ActionResumeAll, ActionStopAll, ActionInterruptAll,
	ActionSelectNext, ActionSelectPrev, ActionReset,
	ActionPauseSelected, ActionResumeSelected, ActionStopSelected, ActionInterruptSelected,
	ActionGoNum, ActionPauseNum, ActionResumeNum, ActionStopNum, ActionInterruptNum,
	ActionSelectNum, ActionPage,
}

// Actions returns every session action in display order.
func Actions() []Action {
	return append([]Action(nil), actionOrder...)
}

// ParseAction resolves a name case-insensitively. Spaces and dashes are
// accepted in place of underscores.
func ParseAction(name string) (Action, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	a := Action(normalized)
	if _, ok := actions[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	return a, nil
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	_, ok := actions[a]
	return ok
}

// Arity returns the number of integer arguments the action takes.
func (a Action) Arity() int {
	return actions[a].arity
}

// Label returns the human readable name of the action.
func (a Action) Label() string {
	if info, ok := actions[a]; ok {
		return info.label
	}
	return string(a)
}

// String returns the action name.
func (a Action) String() string {
	return string(a)
}
