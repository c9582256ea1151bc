package align

// LargeOffsetThreshold is the coarse azimuth offset, in lines, at which the
// master clone is re-shifted before projecting the DEM.
const LargeOffsetThreshold = 1000

// OffsetPolicy selects how a coarse offset is compensated.
type OffsetPolicy int

const (
	// SmallOffset leaves the master clone at the time-shift position.
	SmallOffset OffsetPolicy = iota
	// LargeOffset moves the master clone by -tmp_da lines and carries the
	// compensation into the fit table and the resampling shift.
	LargeOffset
)

// PolicyFor returns SmallOffset when |tmpDA| < LargeOffsetThreshold.
func PolicyFor(tmpDA int) OffsetPolicy {
	if tmpDA > -LargeOffsetThreshold && tmpDA < LargeOffsetThreshold {
		return SmallOffset
	}
	return LargeOffset
}

func (p OffsetPolicy) String() string {
	if p == LargeOffset {
		return "large"
	}
	return "small"
}

// AzimuthShift is the whole-line shift the policy restores at resampling
// time: 0 for small offsets, tmpDA for large ones.
func (p OffsetPolicy) AzimuthShift(tmpDA int) int {
	if p == LargeOffset {
		return tmpDA
	}
	return 0
}
