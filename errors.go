package inzone

import "fmt"

// GeometryError is returned when an engine can't be built from its inputs.
// Payload is the position of the offending payload, or -1 when the whole set
// is rejected.
type GeometryError struct {
	Payload int
	Err     error
}

func (e *GeometryError) Error() string {
	if e.Payload < 0 {
		return fmt.Sprintf("invalid zone payloads: %v", e.Err)
	}
	return fmt.Sprintf("invalid zone payload %d: %v", e.Payload, e.Err)
}

func (e *GeometryError) Unwrap() error { return e.Err }

// LengthMismatchError is returned by batch queries when the latitude and
// longitude slices differ in length.
type LengthMismatchError struct {
	Lats int
	Lngs int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("input arrays different lengths: %d latitudes, %d longitudes", e.Lats, e.Lngs)
}
