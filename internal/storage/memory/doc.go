// Package memory provides an in-process settings store.
//
// Values live in a sharded concurrent map and are lost when the process
// exits. Enumeration order follows map iteration and is deliberately not
// stable, which makes the store useful for checking that consumers do not
// depend on order. The log store uses it as its live index.
package memory
