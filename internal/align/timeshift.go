// Package align estimates how far each acquisition sits from the
// super-master in azimuth and derives the offset samples that drive its
// resampling.
package align

import (
	"math"

	"github.com/banshee-data/topsalign/internal/prm"
	"github.com/banshee-data/topsalign/internal/timeutil"
)

// EstimateTimeShift returns the azimuth line offset of target relative to
// ref: floor((t_target - t_ref) * PRF_ref * 86400 + 0.2), where t is the
// bare clock_start in days. The result may be negative.
func EstimateTimeShift(ref, target *prm.Record) (int, error) {
	t1, err := ref.Float(prm.KeyClockStart)
	if err != nil {
		return 0, err
	}
	t2, err := target.Float(prm.KeyClockStart)
	if err != nil {
		return 0, err
	}
	prf, err := ref.Float(prm.KeyPRF)
	if err != nil {
		return 0, err
	}
	return int(math.Floor((t2-t1)*prf*timeutil.SecondsPerDay + 0.2)), nil
}
