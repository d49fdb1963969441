/*
Package expr provides value resolution and comparison for event attribute matching.

# Overview

Event payloads are loosely typed maps decoded from JSON, YAML or built by hand.
expr resolves dot paths into those maps and compares the values it finds with
the operands of a pattern predicate.

# Path Resolution

	Lookup(payload, "user.address.city")

walks nested map[string]any values one segment at a time. A segment that is
missing, or a non-map value in the middle of the path, reports not found.

# Equality

Equal treats all Go numeric kinds as one domain, so an int 1 equals a float64
1.0 and a uint8 1. Booleans are not numbers. Everything else falls back to
reflect.DeepEqual.

# Ordering

CompareNumbers orders two values only when both are numeric. Callers treat
"not comparable" as a failed predicate, never as an error.
*/
package expr
