// Command sacd-info lists the areas, tracks and tags of a SACD image, DSF or
// DSDIFF file, and edits the tags of file containers.
//
// Usage:
//
//	sacd-info album.iso
//	sacd-info -area 2ch -tags album.iso
//	sacd-info -track 1 -set title="Intro" -set artist=Band song.dsf
//	sacd-info -dsd 128 mislabeled.dff                       # Fix the header rate
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	sacd "github.com/tphakala/go-sacd"
	"github.com/tphakala/go-sacd/internal/logutil"
)

// setFlags collects repeated -set field=value arguments.
type setFlags []string

func (s *setFlags) String() string { return strings.Join(*s, ",") }

func (s *setFlags) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("expected field=value, got %q", v)
	}
	*s = append(*s, v)
	return nil
}

func main() {
	var sets setFlags
	var (
		area        = flag.String("area", "both", "Disc area: both, 2ch or mch")
		editMaster  = flag.Bool("edit-master", false, "Play pre-gaps as part of the previous track")
		singleTrack = flag.Bool("single-track", false, "Ignore DSDIFF markers")
		showTags    = flag.Bool("tags", false, "Print all tags of every track")
		track       = flag.Int("track", 0, "Track (1-based) whose tags -set edits")
		verbose     = flag.Bool("v", false, "Log container parsing")
		dsdRate     = flag.Int("dsd", 0, "Rewrite the file's DSD rate as a multiple of 44.1 kHz (64, 128, 256, ...)")
	)
	flag.Var(&sets, "set", "Set a tag of -track, as field=value (repeatable)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] input\n\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	input := flag.Arg(0)

	cfg := sacd.DefaultConfig()
	cfg.EditMaster = *editMaster
	cfg.SingleTrack = *singleTrack
	if !*verbose {
		cfg.LoggerFactory = logutil.Discard()
	}
	a, err := sacd.ParseAreaSelect(*area)
	if err != nil {
		log.Fatal(err)
	}
	cfg.Area = a

	if *dsdRate > 0 {
		changed, err := sacd.SetSampleRate(input, *dsdRate*sacd.Rate44k1)
		if err != nil {
			log.Fatalf("Failed to set sample rate: %v", err)
		}
		if changed {
			log.Printf("Sample rate set to DSD%d", *dsdRate)
		}
	}
	if len(sets) > 0 {
		if err := applyTags(input, cfg, *track, sets); err != nil {
			log.Fatalf("Failed to edit tags: %v", err)
		}
	}
	if err := describe(os.Stdout, input, cfg, *showTags); err != nil {
		log.Fatal(err)
	}
}

// describe prints one line per track, followed by the tags when showTags is set.
func describe(w io.Writer, path string, cfg sacd.Config, showTags bool) error {
	d, err := sacd.Open(path, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	fmt.Fprintf(w, "Container: %s\n", d.Container())
	fmt.Fprintf(w, "Tracks:    %d\n\n", d.SubsongCount())

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tArea\tCodec\tChannels\tLayout\tDuration\tTitle")
	infos := make([]sacd.TrackInfo, d.SubsongCount())
	for i := range infos {
		info, err := d.Info(i)
		if err != nil {
			return fmt.Errorf("track %d: %w", i+1, err)
		}
		infos[i] = info
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%s\n",
			i+1, info.Area, info.Codec, info.Channels, info.ChannelMask,
			formatDuration(info.Duration.Seconds()), info.Tags.Title)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !showTags {
		return nil
	}
	for i, info := range infos {
		fmt.Fprintf(w, "\nTrack %d\n", i+1)
		for _, f := range tagFields {
			if v := f.get(&info.Tags); v != "" {
				fmt.Fprintf(w, "  %-12s %s\n", f.name+":", v)
			}
		}
	}
	return nil
}

// applyTags sets the given fields of track and commits them to the file.
func applyTags(path string, cfg sacd.Config, track int, sets []string) error {
	cfg.EditableTags = true
	d, err := sacd.Open(path, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	if track < 1 || track > d.SubsongCount() {
		return fmt.Errorf("track %d out of range (1-%d)", track, d.SubsongCount())
	}
	tags, err := d.Tags(track - 1)
	if err != nil {
		return err
	}
	for _, s := range sets {
		name, value, _ := strings.Cut(s, "=")
		if err := setTag(&tags, name, value); err != nil {
			return err
		}
	}
	if err := d.SetTags(track-1, tags); err != nil {
		return err
	}
	return d.Commit()
}

type tagField struct {
	name string
	get  func(*sacd.Tags) string
	set  func(*sacd.Tags, string) error
}

func text(name string, p func(*sacd.Tags) *string) tagField {
	return tagField{
		name: name,
		get:  func(t *sacd.Tags) string { return *p(t) },
		set:  func(t *sacd.Tags, v string) error { *p(t) = v; return nil },
	}
}

func number(name string, p func(*sacd.Tags) *int) tagField {
	get := func(t *sacd.Tags) string {
		if n := *p(t); n > 0 {
			return strconv.Itoa(n)
		}
		return ""
	}
	set := func(t *sacd.Tags, v string) error {
		if v == "" {
			*p(t) = 0
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid number %q", v)
		}
		*p(t) = n
		return nil
	}
	return tagField{name: name, get: get, set: set}
}

var tagFields = []tagField{
	text("title", func(t *sacd.Tags) *string { return &t.Title }),
	text("artist", func(t *sacd.Tags) *string { return &t.Artist }),
	text("albumartist", func(t *sacd.Tags) *string { return &t.AlbumArtist }),
	text("album", func(t *sacd.Tags) *string { return &t.Album }),
	text("composer", func(t *sacd.Tags) *string { return &t.Composer }),
	text("performer", func(t *sacd.Tags) *string { return &t.Performer }),
	text("songwriter", func(t *sacd.Tags) *string { return &t.Songwriter }),
	text("arranger", func(t *sacd.Tags) *string { return &t.Arranger }),
	text("genre", func(t *sacd.Tags) *string { return &t.Genre }),
	text("comment", func(t *sacd.Tags) *string { return &t.Comment }),
	text("date", func(t *sacd.Tags) *string { return &t.Date }),
	number("track", func(t *sacd.Tags) *int { return &t.TrackNumber }),
	number("tracktotal", func(t *sacd.Tags) *int { return &t.TrackTotal }),
	number("disc", func(t *sacd.Tags) *int { return &t.DiscNumber }),
	number("disctotal", func(t *sacd.Tags) *int { return &t.DiscTotal }),
}

func setTag(t *sacd.Tags, name, value string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, f := range tagFields {
		if f.name == name {
			return f.set(t, value)
		}
	}
	return fmt.Errorf("unknown tag field %q", name)
}

// formatDuration formats seconds as m:ss.
func formatDuration(seconds float64) string {
	s := int(seconds + 0.5)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
