// Package server implements the PLC side of the sorting cell: a TCP listener
// that speaks the cell's small stateful command protocol.
//
// # Protocol
//
// The PLC connects, sends one command per packet and waits for the reply.
// Every inbound packet carries a 2-byte header that is discarded; the rest
// is UTF-8 text, trimmed of whitespace and NUL padding, and matched by
// case-sensitive prefix:
//
//   - Start: advance to the next scan area (A, B, C, D, A, ...), run a scan
//     detection and send the first object record, if any.
//   - Sort: run a realignment detection for the current area. In movement
//     mode an empty result sends "0xError,Pos<area>" and switches to
//     re-detection mode; any object sends "0xOver" and returns to movement
//     mode.
//   - OK: send the next queued object record, if any.
//   - Stop: clear all per-session state.
//
// Anything else is logged and ignored; the connection stays open.
//
// # Wire Format
//
// Outbound messages are ASCII without terminator:
//
//	0xS,+012.34,-005.00,-793.79,R   square/rectangle/diamond/trapezoid
//	0xH,+012.34,-005.00,-176.39,B   hexagon
//	0xC,+012.34,-005.00,+000.00,G   circle (never oriented)
//	0xError,PosB
//	0xOver
//
// X and Y are robot coordinates, Angle is the orientation remapped onto the
// PLC's rotary travel (see Codec). The last field is the first letter of
// the color name, or U.
//
// # Sessions
//
// Each connection is owned by one Session goroutine; commands on a
// connection are handled strictly in order. Sessions are registered by a
// random UUID so the listener can close them all on Stop. A send failure,
// EOF or socket error ends the session; read timeouts only give the loop a
// chance to observe shutdown.
//
// # Detection
//
// Sessions call a Detector for every Start and Sort. The call is bounded by
// the detect timeout; an error or timeout counts as an empty result and is
// never fatal to the session.
//
//	srv := server.New(opts, detector, log)
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//	defer srv.Stop()
package server
