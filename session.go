package sacd

import (
	"github.com/pion/logging"

	"github.com/tphakala/go-sacd/internal/dsdpcm"
)

// Session carries converter state across the tracks of one playback run.
// Decoders initialised with the same Session share a converter, so a track
// that follows a completed one of the same format continues the filter state
// instead of starting over.
type Session struct {
	// TrackCompleted is set when a track decoded in this session reached its
	// end. The next Initialize consumes it.
	TrackCompleted bool

	engine *dsdpcm.Engine
}

// NewSession returns a playback session whose converter logs through f.
func NewSession(f logging.LoggerFactory) *Session {
	return &Session{engine: dsdpcm.New(f)}
}

// Close stops the shared converter.
func (s *Session) Close() {
	s.engine.Close()
}
