// Package dispatch routes control-input messages to registered handlers.
//
// Every protocol event is reduced to a message identifier plus a tuple of
// values. Handlers register under an identifier and a value mask whose cells
// either pin a value or are wildcards:
//
//	note_on ─┬─ 0 ─┬─ 1 ─── *   ->  go_num     (0, 1, *)
//	         │     └─ 2 ─── 3   ->  pause      (0, 2, 3)
//	         └─ 1 ─── 3 ─── 1   ->  interrupt  (1, 3, 1)
//	Space                       ->  go         ()
//
// # Lookup
//
// Lookup walks values left to right, taking the concrete child before the
// wildcard child at each depth, and stops at the first leaf. A registration
// with a shorter mask therefore wins over longer masks below it, and an
// identifier registered with the empty mask fires for any values.
//
// # Arguments
//
// Filter drops the values pinned by concrete cells. Wildcard positions are
// forwarded to the handler, so a note wildcard becomes the cue number of a
// go_num action.
//
// # Ownership
//
// The tree holds handlers through weak pointers. Register returns a token
// whose Release removes the registration; when a handler is garbage collected
// it is evicted automatically. Empty nodes are pruned eagerly in both cases.
//
// # Basic Usage
//
//	d := dispatch.New[Action](dispatch.WithLogger(log))
//	reg, err := d.Register("note_on", mask.Of(0, nil, 1), action)
//	if err != nil {
//	    return err
//	}
//	defer reg.Release()
//
//	if m, ok := d.Dispatch("note_on", 0, 42, 1); ok {
//	    for _, h := range m.Handlers {
//	        h.Invoke(m.Args) // m.Args == []any{42}
//	    }
//	}
package dispatch
