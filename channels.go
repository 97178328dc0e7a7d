package sacd

import "strings"

// ChannelMask is a set of speaker positions using the WAVE_FORMAT_EXTENSIBLE
// bit assignment.
type ChannelMask uint32

// Speaker positions.
const (
	SpeakerFrontLeft   ChannelMask = 0x01
	SpeakerFrontRight  ChannelMask = 0x02
	SpeakerFrontCenter ChannelMask = 0x04
	SpeakerLFE         ChannelMask = 0x08
	SpeakerBackLeft    ChannelMask = 0x10
	SpeakerBackRight   ChannelMask = 0x20
)

const (
	maskStereo = SpeakerFrontLeft | SpeakerFrontRight
	maskQuad   = maskStereo | SpeakerBackLeft | SpeakerBackRight
)

var speakerNames = []struct {
	bit  ChannelMask
	name string
}{
	{SpeakerFrontLeft, "FL"},
	{SpeakerFrontRight, "FR"},
	{SpeakerFrontCenter, "FC"},
	{SpeakerLFE, "LFE"},
	{SpeakerBackLeft, "BL"},
	{SpeakerBackRight, "BR"},
}

// ChannelMaskForLoudspeaker returns the speakers of a SACD loudspeaker
// configuration code, or 0 for codes without a fixed layout.
func ChannelMaskForLoudspeaker(config int) ChannelMask {
	switch config {
	case 0:
		return maskStereo
	case 1:
		return maskQuad
	case 2:
		return maskStereo | SpeakerFrontCenter | SpeakerLFE
	case 3:
		return maskQuad | SpeakerFrontCenter
	case 4:
		return maskQuad | SpeakerFrontCenter | SpeakerLFE
	case 5:
		return SpeakerFrontCenter
	case 6:
		return maskStereo | SpeakerFrontCenter
	default:
		return 0
	}
}

// ChannelMaskForChannels returns the conventional speakers for a bare
// channel count, or 0 when there is none.
func ChannelMaskForChannels(channels int) ChannelMask {
	switch channels {
	case 1:
		return SpeakerFrontCenter
	case 2:
		return maskStereo
	case 3:
		return maskStereo | SpeakerFrontCenter
	case 4:
		return maskQuad
	case 5:
		return maskQuad | SpeakerFrontCenter
	case 6:
		return maskQuad | SpeakerFrontCenter | SpeakerLFE
	default:
		return 0
	}
}

// channelMask prefers the loudspeaker code and falls back to the channel count.
func channelMask(loudspeaker, channels int) ChannelMask {
	if m := ChannelMaskForLoudspeaker(loudspeaker); m != 0 {
		return m
	}
	return ChannelMaskForChannels(channels)
}

// Count returns the number of speakers in the mask.
func (m ChannelMask) Count() int {
	n := 0
	for _, s := range speakerNames {
		if m&s.bit != 0 {
			n++
		}
	}
	return n
}

// String returns the speakers joined by "|", such as "FL|FR".
func (m ChannelMask) String() string {
	if m == 0 {
		return "none"
	}
	var names []string
	for _, s := range speakerNames {
		if m&s.bit != 0 {
			names = append(names, s.name)
		}
	}
	return strings.Join(names, "|")
}
