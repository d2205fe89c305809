// Package checker provides a transparent protocol checker for approximately-timed links.
//
// A Checker is inserted between an initiator-side and a target-side participant. It tracks the
// phase of every transaction and the request and response windows of the link, and raises a
// fatal protocol error through tlm.Fatal on the first illegal transition, exclusion breach,
// missing response status or annotated time that goes backwards.
package checker
