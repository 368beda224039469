// Package gray implements the reflected-binary code used to move
// multi-bit counters across a domain boundary.
//
// Successive binary values map to codes that differ in exactly one bit,
// so a sample torn while the counter increments differs from the true
// value by at most one unit instead of being arbitrarily wrong.
package gray

// Encode converts a binary value to its reflected-binary form.
func Encode(v uint64) uint64 {
	return v ^ (v >> 1)
}

// Decode converts a reflected-binary value back to plain binary.
func Decode(g uint64) uint64 {
	b := g
	for shift := 1; shift < 64; shift <<= 1 {
		b ^= b >> shift
	}
	return b
}
