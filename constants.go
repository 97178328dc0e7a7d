package sacd

// PCM output rates.
const (
	// Rate44k1 is the CD sample rate and the smallest PCM output rate.
	Rate44k1 = 44100

	// Rate88k2 is twice the CD rate.
	Rate88k2 = 88200

	// Rate176k4 is four times the CD rate.
	Rate176k4 = 176400

	// Rate352k8 is eight times the CD rate.
	Rate352k8 = 352800
)

// Decoder limits
const (
	maxDSTSlots   = 64   // Upper bound for Config.DSTSlots
	maxGainDB     = 60.0 // Absolute gain limit in dB
	maxFaults     = 1000 // Consecutive faults before a track is abandoned
	bitrateFrames = 16   // Frames in the bitrate moving average
	bitsPerByte   = 8
)

// Overload reporting
const (
	overloadThreshold = 1.0 // PCM magnitude above which a sample is reported
	overloadBurst     = 8   // Reports logged before throttling starts
)
