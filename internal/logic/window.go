package logic

// IsPermitted reports whether the valve may run during the given local hour.
// Minutes and seconds are not considered.
func IsPermitted(hour int) bool {
	return (hour >= 7 && hour < 9) || (hour >= 16 && hour < 19)
}

// WindowOpen is IsPermitted for a clock reading. Without a valid reading the
// window is always closed.
func WindowOpen(r Reading) bool {
	return r.Valid && IsPermitted(r.Hour)
}
