package model

// Resolution is a rung label in the transcode ladder.
type Resolution string

const (
	ResolutionSD  Resolution = "SD"
	ResolutionHD  Resolution = "HD"
	ResolutionFHD Resolution = "FHD"
	ResolutionUHD Resolution = "UHD"
)

// rungSpec pairs a resolution label with the ladder policy defaults.
type rungSpec struct {
	width            int
	height           int
	videoBitrateKbps int
	audioBitrateKbps int
}

var rungSpecs = map[Resolution]rungSpec{
	ResolutionSD:  {width: 854, height: 480, videoBitrateKbps: 1000, audioBitrateKbps: 128},
	ResolutionHD:  {width: 1280, height: 720, videoBitrateKbps: 2500, audioBitrateKbps: 128},
	ResolutionFHD: {width: 1920, height: 1080, videoBitrateKbps: 5000, audioBitrateKbps: 192},
	ResolutionUHD: {width: 3840, height: 2160, videoBitrateKbps: 15000, audioBitrateKbps: 192},
}

// DefaultLadder returns the ladder rungs in ascending quality order.
func DefaultLadder() []Resolution {
	return []Resolution{ResolutionSD, ResolutionHD, ResolutionFHD, ResolutionUHD}
}

func (r Resolution) IsValid() bool {
	_, ok := rungSpecs[r]
	return ok
}

func (r Resolution) Height() int {
	return rungSpecs[r].height
}

// Width returns the 16:9 frame width for the rung's target height. The
// encoder keeps the source aspect ratio; this value only feeds the
// RESOLUTION attribute in the master playlist.
func (r Resolution) Width() int {
	return rungSpecs[r].width
}

func (r Resolution) VideoBitrateKbps() int {
	return rungSpecs[r].videoBitrateKbps
}

func (r Resolution) AudioBitrateKbps() int {
	return rungSpecs[r].audioBitrateKbps
}

// TotalBitrateBps is used to order #EXT-X-STREAM-INF entries by ascending
// bandwidth.
func (r Resolution) TotalBitrateBps() int {
	spec := rungSpecs[r]
	return (spec.videoBitrateKbps + spec.audioBitrateKbps) * 1000
}
