package meshio

/*------------------------------------------------------------------
 *
 * Purpose:	The data model of §3 as it is carried inside a stem bundle's
 *		chunks (§6), plus the encode/decode pair for each chunk.
 *
 * Description:	`bext`, `cue `, and `adtl` reuse standard WAV chunk IDs but
 *		this package only reads/writes the subset of fields Mesh
 *		actually needs (artist, original BPM, LUFS, key for bext;
 *		position+label for cue/adtl). Colors are not part of the
 *		standard cue/adtl layout, so they ride along inside the
 *		adtl LIST as a private `lcol` sub-chunk per cue point — a
 *		reader that does not know about `lcol` can skip it, since
 *		LIST sub-chunks are self-describing.
 *
 *		`wvfm`, `mslk`, `mdrp`, `mlop`, and `mgrd` are wholly custom
 *		and documented here as their own byte layout.
 *
 *------------------------------------------------------------------*/

import (
	"encoding/binary"
	"fmt"
)

// CuePoint is a hot-cue slot as stored in the cue/adtl chunks.
type CuePoint struct {
	Index    int
	Position uint64
	Label    string
	HasColor bool
	ColorR   uint8
	ColorG   uint8
	ColorB   uint8
}

// SavedLoop is a persisted loop region as stored in the mlop chunk.
type SavedLoop struct {
	Index    int
	Start    uint64
	End      uint64
	Label    string
	HasColor bool
	ColorR   uint8
	ColorG   uint8
	ColorB   uint8
}

// DropMarker is the structural drop position stored in the mdrp chunk.
type DropMarker struct {
	Position uint64
	Set      bool
}

// BeatGrid is the explicit beat-position list stored in the mgrd chunk.
// Positions are stored verbatim rather than regenerated from BPM/first-beat
// so the round-trip law of §8 ("positions exact") holds even if the
// regeneration formula in engine/model.go ever changes.
type BeatGrid struct {
	Beats []uint64
}

// WaveformPreview is the low-resolution peak series stored in the wvfm
// chunk, one flattened (min,max) sequence per stem.
type WaveformPreview struct {
	Peaks [NumStems][]float32
}

// StemLinkReference is one entry of the mslk chunk: a pre-configured link
// to a stem from another track.
type StemLinkReference struct {
	StemIndex        uint8
	SourcePath       string
	SourceStem       uint8
	SourceDropMarker uint64
}

// TrackMetadata is the full set of auxiliary data a stem bundle carries
// beyond its raw PCM, per §3 and §6.
type TrackMetadata struct {
	Artist  string
	HasBPM  bool
	BPM     float64
	HasLUFS bool
	LUFS    float32
	HasKey  bool
	Key     string

	Grid       BeatGrid
	HotCues    [NumHotCues]CuePoint
	HotCuesSet [NumHotCues]bool
	SavedLoops []SavedLoop
	Drop       DropMarker
	Preview    WaveformPreview
	StemLinks  []StemLinkReference
}

// --- bext -------------------------------------------------------------

func encodeBext(m TrackMetadata) []byte {
	var body []byte
	body = appendString(body, m.Artist)
	body = append(body, boolByte(m.HasBPM))
	body = appendFloat64(body, m.BPM)
	body = append(body, boolByte(m.HasLUFS))
	body = appendFloat32(body, m.LUFS)
	body = append(body, boolByte(m.HasKey))
	body = appendString(body, m.Key)
	return body
}

func decodeBext(body []byte, m *TrackMetadata) error {
	r := newByteReader(body)
	var err error
	if m.Artist, err = r.readString(); err != nil {
		return fmt.Errorf("%w: bext artist: %v", ErrTruncated, err)
	}
	if m.HasBPM, err = r.readBool(); err != nil {
		return err
	}
	if m.BPM, err = r.readFloat64(); err != nil {
		return err
	}
	if m.HasLUFS, err = r.readBool(); err != nil {
		return err
	}
	if m.LUFS, err = r.readFloat32(); err != nil {
		return err
	}
	if m.HasKey, err = r.readBool(); err != nil {
		return err
	}
	if m.Key, err = r.readString(); err != nil {
		return err
	}
	return nil
}

// --- cue / adtl ---------------------------------------------------------

// cuePointRecord is the standard 24-byte WAV cue point record.
type cuePointRecord struct {
	ID             uint32
	Position       uint32
	ChunkID        [4]byte
	ChunkStart     uint32
	BlockStart     uint32
	SampleOffset   uint32
}

func encodeCueAdtl(m TrackMetadata) (cueBody, adtlBody []byte) {
	var records []cuePointRecord
	var labels [][]byte
	var colors [][]byte

	for i := 0; i < NumHotCues; i++ {
		if !m.HotCuesSet[i] {
			continue
		}
		c := m.HotCues[i]
		records = append(records, cuePointRecord{
			ID:       uint32(i),
			Position: uint32(c.Position),
			ChunkID:  [4]byte{'d', 'a', 't', 'a'},
		})
		labels = append(labels, encodeLabl(uint32(i), c.Label))
		if c.HasColor {
			colors = append(colors, encodeLcol(uint32(i), c.ColorR, c.ColorG, c.ColorB))
		}
	}

	cueBody = make([]byte, 4)
	binary.LittleEndian.PutUint32(cueBody, uint32(len(records)))
	for _, rec := range records {
		var buf [24]byte
		binary.LittleEndian.PutUint32(buf[0:4], rec.ID)
		binary.LittleEndian.PutUint32(buf[4:8], rec.Position)
		copy(buf[8:12], rec.ChunkID[:])
		binary.LittleEndian.PutUint32(buf[12:16], rec.ChunkStart)
		binary.LittleEndian.PutUint32(buf[16:20], rec.BlockStart)
		binary.LittleEndian.PutUint32(buf[20:24], rec.SampleOffset)
		cueBody = append(cueBody, buf[:]...)
	}

	adtlBody = append(adtlBody, idAdtl...)
	for _, l := range labels {
		adtlBody = appendChunk(adtlBody, idLabl, l)
	}
	for _, c := range colors {
		adtlBody = appendChunk(adtlBody, idLcol, c)
	}
	return cueBody, adtlBody
}

func encodeLabl(cueID uint32, text string) []byte {
	body := make([]byte, 4, 4+len(text)+1)
	binary.LittleEndian.PutUint32(body, cueID)
	body = append(body, text...)
	body = append(body, 0)
	return body
}

func encodeLcol(cueID uint32, r, g, b uint8) []byte {
	body := make([]byte, 7)
	binary.LittleEndian.PutUint32(body[0:4], cueID)
	body[4], body[5], body[6] = r, g, b
	return body
}

func decodeCueAdtl(cueBody, adtlBody []byte, m *TrackMetadata) error {
	if len(cueBody) < 4 {
		return fmt.Errorf("%w: cue chunk too short", ErrTruncated)
	}
	count := binary.LittleEndian.Uint32(cueBody)
	offset := 4
	positions := make(map[uint32]uint64, count)
	for i := uint32(0); i < count; i++ {
		if offset+24 > len(cueBody) {
			return fmt.Errorf("%w: cue record %d truncated", ErrTruncated, i)
		}
		id := binary.LittleEndian.Uint32(cueBody[offset : offset+4])
		pos := binary.LittleEndian.Uint32(cueBody[offset+4 : offset+8])
		positions[id] = uint64(pos)
		offset += 24
	}

	labels := map[uint32]string{}
	colors := map[uint32][3]uint8{}
	if len(adtlBody) >= 4 {
		if err := walkListBody(adtlBody[4:], func(id string, body []byte) error {
			switch id {
			case idLabl:
				if len(body) < 4 {
					return nil
				}
				cueID := binary.LittleEndian.Uint32(body[0:4])
				text := body[4:]
				for len(text) > 0 && text[len(text)-1] == 0 {
					text = text[:len(text)-1]
				}
				labels[cueID] = string(text)
			case idLcol:
				if len(body) < 7 {
					return nil
				}
				cueID := binary.LittleEndian.Uint32(body[0:4])
				colors[cueID] = [3]uint8{body[4], body[5], body[6]}
			}
			return nil
		}); err != nil {
			return err
		}
	}

	for id, pos := range positions {
		if id >= NumHotCues {
			continue
		}
		c := CuePoint{Index: int(id), Position: pos, Label: labels[id]}
		if rgb, ok := colors[id]; ok {
			c.HasColor = true
			c.ColorR, c.ColorG, c.ColorB = rgb[0], rgb[1], rgb[2]
		}
		m.HotCues[id] = c
		m.HotCuesSet[id] = true
	}
	return nil
}

// walkListBody walks the flat id/size/body records inside a LIST chunk's
// body (after the 4-byte list-type tag has been stripped by the caller).
func walkListBody(body []byte, fn func(id string, body []byte) error) error {
	off := 0
	for off+8 <= len(body) {
		id := string(body[off : off+4])
		size := binary.LittleEndian.Uint32(body[off+4 : off+8])
		off += 8
		if off+int(size) > len(body) {
			return fmt.Errorf("%w: LIST sub-chunk %q truncated", ErrTruncated, id)
		}
		sub := body[off : off+int(size)]
		if err := fn(id, sub); err != nil {
			return err
		}
		off += int(size)
		if size%2 == 1 {
			off++
		}
	}
	return nil
}

// --- wvfm -----------------------------------------------------------------

func encodeWvfm(p WaveformPreview) []byte {
	var body []byte
	for s := 0; s < NumStems; s++ {
		body = appendUint32(body, uint32(len(p.Peaks[s])))
		for _, v := range p.Peaks[s] {
			body = appendFloat32(body, v)
		}
	}
	return body
}

func decodeWvfm(body []byte) (WaveformPreview, error) {
	var p WaveformPreview
	r := newByteReader(body)
	for s := 0; s < NumStems; s++ {
		n, err := r.readUint32()
		if err != nil {
			return p, fmt.Errorf("%w: wvfm stem %d count: %v", ErrTruncated, s, err)
		}
		peaks := make([]float32, n)
		for i := range peaks {
			if peaks[i], err = r.readFloat32(); err != nil {
				return p, fmt.Errorf("%w: wvfm stem %d peak %d: %v", ErrTruncated, s, i, err)
			}
		}
		p.Peaks[s] = peaks
	}
	return p, nil
}

// --- mslk -------------------------------------------------------------

func encodeMslk(links []StemLinkReference) []byte {
	body := appendUint32(nil, uint32(len(links)))
	for _, l := range links {
		body = append(body, l.StemIndex)
		body = appendString(body, l.SourcePath)
		body = append(body, l.SourceStem)
		body = appendUint64(body, l.SourceDropMarker)
	}
	return body
}

func decodeMslk(body []byte) ([]StemLinkReference, error) {
	r := newByteReader(body)
	count, err := r.readUint32()
	if err != nil {
		return nil, fmt.Errorf("%w: mslk count: %v", ErrTruncated, err)
	}
	links := make([]StemLinkReference, 0, count)
	for i := uint32(0); i < count; i++ {
		var l StemLinkReference
		if l.StemIndex, err = r.readByte(); err != nil {
			return nil, err
		}
		if l.SourcePath, err = r.readString(); err != nil {
			return nil, err
		}
		if l.SourceStem, err = r.readByte(); err != nil {
			return nil, err
		}
		if l.SourceDropMarker, err = r.readUint64(); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, nil
}

// --- mdrp -------------------------------------------------------------

func encodeDrop(d DropMarker) []byte {
	body := []byte{boolByte(d.Set)}
	return appendUint64(body, d.Position)
}

func decodeDrop(body []byte) (DropMarker, error) {
	r := newByteReader(body)
	var d DropMarker
	var err error
	if d.Set, err = r.readBool(); err != nil {
		return d, fmt.Errorf("%w: mdrp set flag: %v", ErrTruncated, err)
	}
	if d.Position, err = r.readUint64(); err != nil {
		return d, fmt.Errorf("%w: mdrp position: %v", ErrTruncated, err)
	}
	return d, nil
}

// --- mlop -------------------------------------------------------------

func encodeLoops(loops []SavedLoop) []byte {
	body := appendUint32(nil, uint32(len(loops)))
	for _, l := range loops {
		body = appendUint64(body, l.Start)
		body = appendUint64(body, l.End)
		body = append(body, boolByte(l.HasColor), l.ColorR, l.ColorG, l.ColorB)
		body = appendString(body, l.Label)
	}
	return body
}

func decodeLoops(body []byte) ([]SavedLoop, error) {
	r := newByteReader(body)
	count, err := r.readUint32()
	if err != nil {
		return nil, fmt.Errorf("%w: mlop count: %v", ErrTruncated, err)
	}
	loops := make([]SavedLoop, 0, count)
	for i := uint32(0); i < count; i++ {
		l := SavedLoop{Index: int(i)}
		if l.Start, err = r.readUint64(); err != nil {
			return nil, err
		}
		if l.End, err = r.readUint64(); err != nil {
			return nil, err
		}
		if l.HasColor, err = r.readBool(); err != nil {
			return nil, err
		}
		if l.ColorR, err = r.readByte(); err != nil {
			return nil, err
		}
		if l.ColorG, err = r.readByte(); err != nil {
			return nil, err
		}
		if l.ColorB, err = r.readByte(); err != nil {
			return nil, err
		}
		if l.Label, err = r.readString(); err != nil {
			return nil, err
		}
		loops = append(loops, l)
	}
	return loops, nil
}

// --- mgrd -------------------------------------------------------------

func encodeGrid(g BeatGrid) []byte {
	body := appendUint32(nil, uint32(len(g.Beats)))
	for _, b := range g.Beats {
		body = appendUint64(body, b)
	}
	return body
}

func decodeGrid(body []byte) (BeatGrid, error) {
	r := newByteReader(body)
	count, err := r.readUint32()
	if err != nil {
		return BeatGrid{}, fmt.Errorf("%w: mgrd count: %v", ErrTruncated, err)
	}
	beats := make([]uint64, count)
	for i := range beats {
		if beats[i], err = r.readUint64(); err != nil {
			return BeatGrid{}, fmt.Errorf("%w: mgrd beat %d: %v", ErrTruncated, i, err)
		}
	}
	return BeatGrid{Beats: beats}, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
