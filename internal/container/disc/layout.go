package disc

// Sector geometry.
const (
	lsnSize = 2048 // logical sector payload
	psnSize = 2064 // raw sector with 12-byte header and 4-byte trailer

	psnHeaderSize = 12

	masterTOCStart   = 510
	masterTOCSectors = 10
	masterTextCount  = 8

	supportedVersionMajor = 1
	supportedVersionMinor = 20
)

// Master TOC field offsets.
const (
	mtocVersionMajor  = 8
	mtocVersionMinor  = 9
	mtocAlbumSetSize  = 16
	mtocAlbumSequence = 18
	mtocArea1TOC1     = 64
	mtocArea2TOC1     = 72
	mtocArea1TOCSize  = 84
	mtocArea2TOCSize  = 86
	mtocDiscYear      = 120
	mtocDiscMonth     = 122
	mtocDiscDay       = 123
	mtocLocales       = 136

	localeCharsetOffset = 2
)

// Master text positions, relative to the SACDText sector.
const (
	mtextAlbumTitle     = 16
	mtextAlbumArtist    = 18
	mtextAlbumPublisher = 20
	mtextAlbumCopyright = 22
	mtextDiscTitle      = 32
	mtextDiscArtist     = 34
	mtextDiscPublisher  = 36
	mtextDiscCopyright  = 38
)

// Area TOC field offsets.
const (
	atocVersionMajor    = 8
	atocVersionMinor    = 9
	atocSize            = 10
	atocMaxByteRate     = 16
	atocSampleFreq      = 20
	atocFrameFormat     = 21
	atocChannelCount    = 32
	atocLoudspeaker     = 33
	atocTotalPlaytime   = 64
	atocTrackOffset     = 68
	atocTrackCount      = 69
	atocTrackStart      = 72
	atocTrackEnd        = 76
	atocLanguages       = 88
	atocDescription     = 144
	atocCopyright       = 146
	frameFormatMask     = 0x0f
	loudspeakerMask     = 0x1f
	frameFormatDST      = 0
	frameFormatDSD3in14 = 2
)

// Area sub-sector layout.
const (
	trackTextPositions = 8

	iglGenreTable        = 8 + 255*12 + 4
	genreEntrySize       = 4
	genreGenreOffset     = 3
	genreCategoryGeneral = 1

	trl1StartTable    = 8
	trl1LengthTable   = 8 + 255*4
	trl2StartTable    = 8
	trl2DurationTable = 8 + 255*4

	iglSectors = 2
	accSectors = 32
)

// Track text item types.
const (
	textTitle        = 0x01
	textPerformer    = 0x02
	textSongwriter   = 0x03
	textComposer     = 0x04
	textArranger     = 0x05
	textMessage      = 0x06
	textExtraMessage = 0x07
)

// Audio sector layout.
const (
	sectorHeaderSize = 1
	packetInfoSize   = 2
	frameInfoSizeDST = 4
	frameInfoSizeDSD = 3
	maxPackets       = 7

	dataTypeAudio         = 2
	dataTypeSupplementary = 3
	dataTypePadding       = 7

	maxReadAttempts = 3
)

// Genre names indexed by the SACD genre code.
var genres = [...]string{
	"Not used",
	"Not defined",
	"Adult Contemporary",
	"Alternative Rock",
	"Children's Music",
	"Classical",
	"Contemporary Christian",
	"Country",
	"Dance",
	"Easy Listening",
	"Erotic",
	"Folk",
	"Gospel",
	"Hip Hop",
	"Jazz",
	"Latin",
	"Musical",
	"New Age",
	"Opera",
	"Operetta",
	"Pop Music",
	"RAP",
	"Reggae",
	"Rock Music",
	"Rhythm & Blues",
	"Sound Effects",
	"Sound Track",
	"Spoken Word",
	"World Music",
	"Blues",
}
