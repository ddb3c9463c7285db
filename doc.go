// Package wiihost implements a host-side Bluetooth BR/EDR stack slice that
// discovers, pairs with, and reads sensor frames from a Nintendo Wii
// Balance Board over HCI and L2CAP.
//
// The package sits directly atop an HCI transport (see Transport): it
// formats HCI commands and ACL/L2CAP frames outbound, parses HCI events
// and ACL frames inbound, and drives two protocol state machines - HCI
// link setup/pairing and L2CAP channel management - to deliver a small
// high-level event stream to the application through Station.
//
// Supported hardware
//
// This stack speaks only the legacy-PIN pairing path and the Wii HID
// dialect used by the Balance Board (Nintendo RVL-WBC-01). It does not
// implement Secure Simple Pairing, ACL fragmentation/reassembly, or any
// other Bluetooth profile.
//
// Control flow
//
// The hosting event loop owns exactly one entry point, Engine.Process,
// called once per tick. Process never blocks (the engine uses its rings
// with a zero timeout); a state machine
// that is waiting for a peer simply stays in its current state and
// re-evaluates on the next tick.
package wiihost
