package sacd

import (
	"fmt"
	"math"
)

// checkOverloads reports the first clipping channel of every sample frame
// of pcm. Reports are throttled per track.
func (d *Decoder) checkOverloads(pcm []float64) {
	if !d.cfg.LogOverloads {
		return
	}
	ch := d.channels
	for i := 0; i+ch <= len(pcm); i += ch {
		for c, v := range pcm[i : i+ch] {
			if math.Abs(v) <= overloadThreshold {
				continue
			}
			at := float64(d.pcmOffset+uint64(i/ch)) / float64(d.pcmRate)
			d.overloads.Do(func() {
				d.log.Infof("[%s] overload at '%s' ch:%d [%s]", d.sid, d.trackName, c, timestamp(at))
			})
			break
		}
	}
}

// timestamp formats seconds as hh:mm.ss.fff.
func timestamp(t float64) string {
	whole := math.Floor(t)
	fraction := int((t - whole) * 1000)
	second := int(whole)
	minute := second / 60
	hour := minute / 60
	return fmt.Sprintf("%02d:%02d.%02d.%03d", hour%60, minute%60, second%60, fraction)
}
