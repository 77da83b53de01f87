// Command meshfile-dump prints the chunk contents of a stem bundle file:
// format, duration, BPM/LUFS/key, beat grid size, hot cues, saved loops,
// drop marker, and stem links. It exists both as an operator diagnostic
// tool and as the fixture the meshio round-trip test drives under a pty.
package main

/*------------------------------------------------------------------
 *
 * Purpose:	Small standalone report generator over meshio.StemBundle,
 *		in the spirit of the teacher's small cmd/* test harnesses
 *		(tnctest, gen_tone) that take file/port arguments on the
 *		command line and print a plain textual report.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"os"

	"mesh/meshio"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: meshfile-dump <stem-bundle.wav>\n")
		os.Exit(1)
	}

	bundle, err := meshio.ReadStemBundleFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "meshfile-dump: %v\n", err)
		os.Exit(1)
	}

	dump(os.Stdout, bundle)
}

func dump(w *os.File, b *meshio.StemBundle) {
	fmt.Fprintf(w, "format: tag=%d channels=%d rate=%d bits=%d\n",
		b.Format.FormatTag, b.Format.Channels, b.Format.SampleRate, b.Format.BitsPerSample)
	fmt.Fprintf(w, "frames: %d\n", b.FrameCount)

	if b.Meta.Artist != "" {
		fmt.Fprintf(w, "artist: %s\n", b.Meta.Artist)
	}
	if b.Meta.HasBPM {
		fmt.Fprintf(w, "bpm: %.2f\n", b.Meta.BPM)
	}
	if b.Meta.HasLUFS {
		fmt.Fprintf(w, "lufs: %.2f\n", b.Meta.LUFS)
	}
	if b.Meta.HasKey {
		fmt.Fprintf(w, "key: %s\n", b.Meta.Key)
	}
	fmt.Fprintf(w, "grid: %d beats\n", len(b.Meta.Grid.Beats))

	if b.Meta.Drop.Set {
		fmt.Fprintf(w, "drop: sample %d\n", b.Meta.Drop.Position)
	}

	for i, set := range b.Meta.HotCuesSet {
		if !set {
			continue
		}
		c := b.Meta.HotCues[i]
		fmt.Fprintf(w, "hot cue %d: sample %d label=%q\n", c.Index, c.Position, c.Label)
	}

	for _, l := range b.Meta.SavedLoops {
		fmt.Fprintf(w, "saved loop %d: %d-%d label=%q\n", l.Index, l.Start, l.End, l.Label)
	}

	for _, l := range b.Meta.StemLinks {
		fmt.Fprintf(w, "stem link: stem=%d source=%s source_stem=%d\n", l.StemIndex, l.SourcePath, l.SourceStem)
	}
}
