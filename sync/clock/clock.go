// Package clock normalizes client-claimed logical timestamps before
// they enter conflict resolution.
package clock

// Clamp bounds a client-claimed unix-millisecond timestamp. Values at
// or below zero collapse to zero, which callers treat as "use server
// time". Values ahead of nowMs by more than maxSkewMs are pulled back
// to the skew ceiling so a device with a runaway clock cannot pin an
// entity against all future writers.
func Clamp(claimedMs, nowMs, maxSkewMs int64) int64 {
	if claimedMs <= 0 {
		return 0
	}
	if ceiling := nowMs + maxSkewMs; claimedMs > ceiling {
		return ceiling
	}
	return claimedMs
}
