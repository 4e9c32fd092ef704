package transport

import (
	"context"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/cuecontrol/internal/codec/keyboard"
	"github.com/dshills/cuecontrol/internal/dispatch"
	"github.com/dshills/cuecontrol/internal/logging"
)

// DefaultQuitKey stops the keyboard input.
const DefaultQuitKey = "Ctrl+Q"

// KeyboardInput reads key presses from a terminal screen.
type KeyboardInput struct {
	screen  tcell.Screen
	handler EventHandler
	logger  *logging.Logger
	quit    dispatch.Identifier

	mu       sync.Mutex
	status   string
	finiOnce sync.Once
}

// NewKeyboardInput creates an input reading from screen, which must already
// be initialized. quitKey is a key spec such as "Ctrl+Q"; empty selects
// DefaultQuitKey.
func NewKeyboardInput(screen tcell.Screen, quitKey string, h EventHandler, opts ...Option) (*KeyboardInput, error) {
	o := buildOptions("keyboard", opts)
	if quitKey == "" {
		quitKey = DefaultQuitKey
	}
	quit, err := keyboard.New().ParseIdentifier(quitKey)
	if err != nil {
		return nil, err
	}
	return &KeyboardInput{
		screen:  screen,
		handler: h,
		logger:  o.logger,
		quit:    quit,
	}, nil
}

// Serve polls key events until ctx is cancelled or the quit key is pressed,
// in which case it returns ErrQuit. The screen is finalized on return.
func (k *KeyboardInput) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, k.fini)
	defer stop()
	defer k.fini()

	k.setStatus("waiting for keys")
	for {
		ev := k.screen.PollEvent()
		if ev == nil {
			return nil
		}

		switch e := ev.(type) {
		case *tcell.EventKey:
			id, ok := keyboard.Decode(e)
			if !ok {
				continue
			}
			if id == k.quit {
				k.logger.Info("quit key pressed")
				return ErrQuit
			}
			k.setStatus(string(id))
			deliver(ctx, k.handler, k.logger, keyboard.Protocol, id, nil)
		case *tcell.EventResize:
			k.draw()
		}
	}
}

func (k *KeyboardInput) fini() {
	k.finiOnce.Do(k.screen.Fini)
}

// Status returns the line shown on screen.
func (k *KeyboardInput) Status() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.status
}

func (k *KeyboardInput) setStatus(s string) {
	k.mu.Lock()
	k.status = s
	k.mu.Unlock()
	k.draw()
}

func (k *KeyboardInput) draw() {
	k.screen.Clear()
	k.putLine(0, "cuecontrol keyboard input ("+string(k.quit)+" to quit)", tcell.StyleDefault.Bold(true))
	k.putLine(2, k.Status(), tcell.StyleDefault)
	k.screen.Show()
}

func (k *KeyboardInput) putLine(y int, s string, style tcell.Style) {
	width, _ := k.screen.Size()
	x := 0
	for _, r := range s {
		if x >= width {
			break
		}
		k.screen.SetContent(x, y, r, nil, style)
		x++
	}
}
