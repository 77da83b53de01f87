package meshio

/*------------------------------------------------------------------
 *
 * Purpose:	Low-level RIFF/RF64 chunk walking, grounded on the
 *		RIFF-header-then-flat-chunk-list style of the fixtures
 *		generator's writeWAV (encoding/binary, manual chunk IDs)
 *		generalized into a reusable reader/writer pair capable of
 *		round-tripping arbitrary chunk sets, not just fmt+data.
 *
 * Description:	RF64 differs from RIFF only in the outer form tag ("RF64"
 *		instead of "RIFF") and a mandatory leading "ds64" chunk
 *		carrying 64-bit sizes for files whose RIFF size would
 *		otherwise overflow a uint32. This package always writes
 *		RF64 form (so a library consumer never has to guess whether
 *		a bundle might grow past 4 GiB) but reads either form.
 *
 *------------------------------------------------------------------*/

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	idRIFF = "RIFF"
	idRF64 = "RF64"
	idWAVE = "WAVE"
	idDS64 = "ds64"
	idFmt  = "fmt "
	idData = "data"
	idBext = "bext"
	idCue  = "cue "
	idList = "LIST"
	idAdtl = "adtl"
	idLabl = "labl"
	idLcol = "lcol"
	idWvfm = "wvfm"
	idMslk = "mslk"
	idDrop = "mdrp"
	idLoop = "mlop"
	idGrid = "mgrd"
)

// rawChunk is one top-level RIFF chunk as read off disk: an id, and its
// body bytes (padded chunks are unpadded here; writers re-pad on output).
type rawChunk struct {
	id   string
	body []byte
}

// readChunks walks a RIFF or RF64 container and returns every top-level
// chunk after the WAVE form tag, in file order. It does not interpret any
// chunk's contents.
func readChunks(r io.Reader) ([]rawChunk, error) {
	br := bufio.NewReader(r)

	form := make([]byte, 4)
	if _, err := io.ReadFull(br, form); err != nil {
		return nil, fmt.Errorf("%w: reading form tag: %v", ErrTruncated, err)
	}
	formID := string(form)
	if formID != idRIFF && formID != idRF64 {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTag, formID)
	}

	var riffSize uint32
	if err := binary.Read(br, binary.LittleEndian, &riffSize); err != nil {
		return nil, fmt.Errorf("%w: reading riff size: %v", ErrTruncated, err)
	}

	wave := make([]byte, 4)
	if _, err := io.ReadFull(br, wave); err != nil {
		return nil, fmt.Errorf("%w: reading WAVE tag: %v", ErrTruncated, err)
	}
	if string(wave) != idWAVE {
		return nil, fmt.Errorf("%w: expected WAVE, found %q", ErrBadStemFile, wave)
	}

	var chunks []rawChunk
	// RF64's ds64 chunk, if present, carries the true data-chunk size when
	// the data chunk itself reports 0xFFFFFFFF; dataSize64 overrides the
	// chunk-local size for the next "data" chunk encountered.
	var dataSize64 uint64
	haveDataSize64 := false

	for {
		idBytes := make([]byte, 4)
		_, err := io.ReadFull(br, idBytes)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading chunk id: %v", ErrTruncated, err)
		}
		id := string(idBytes)

		var size uint32
		if err := binary.Read(br, binary.LittleEndian, &size); err != nil {
			return nil, fmt.Errorf("%w: reading %q size: %v", ErrTruncated, id, err)
		}

		effSize := uint64(size)
		if id == idData && formID == idRF64 && size == 0xFFFFFFFF && haveDataSize64 {
			effSize = dataSize64
		}

		body := make([]byte, effSize)
		if _, err := io.ReadFull(br, body); err != nil {
			return nil, fmt.Errorf("%w: reading %q body: %v", ErrTruncated, id, err)
		}
		if effSize%2 == 1 {
			if _, err := br.Discard(1); err != nil {
				return nil, fmt.Errorf("%w: reading %q pad byte: %v", ErrTruncated, id, err)
			}
		}

		if id == idDS64 {
			var ok bool
			dataSize64, ok = parseDS64(body)
			haveDataSize64 = ok
		}

		chunks = append(chunks, rawChunk{id: id, body: body})
	}

	return chunks, nil
}

// parseDS64 extracts the data-chunk size field from a ds64 chunk body. The
// full ds64 layout carries riffSize, dataSize, sampleCount, then a table of
// chunk-size overrides; only dataSize is needed here.
func parseDS64(body []byte) (uint64, bool) {
	if len(body) < 16 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(body[8:16]), true
}

func findChunk(chunks []rawChunk, id string) (rawChunk, bool) {
	for _, c := range chunks {
		if c.id == id {
			return c, true
		}
	}
	return rawChunk{}, false
}

// chunkWriter accumulates top-level chunks and writes them as an RF64
// container once flush is called.
type chunkWriter struct {
	chunks []rawChunk
}

func (w *chunkWriter) add(id string, body []byte) {
	w.chunks = append(w.chunks, rawChunk{id: id, body: body})
}

// flush writes the accumulated chunks to w as an RF64/WAVE container,
// preceded by a ds64 chunk carrying the real data-chunk size (written even
// when the file is small, since a consumer must not have to branch on file
// size to find the real length).
func (cw *chunkWriter) flush(w io.Writer) error {
	dataChunk, haveData := findChunk(cw.chunks, idData)
	dataSize := uint64(0)
	if haveData {
		dataSize = uint64(len(dataChunk.body))
	}

	ds64 := make([]byte, 28)
	binary.LittleEndian.PutUint64(ds64[0:8], 0)        // riffSize, filled in by readers that need it
	binary.LittleEndian.PutUint64(ds64[8:16], dataSize)
	binary.LittleEndian.PutUint64(ds64[16:24], 0) // sampleCount, unused
	binary.LittleEndian.PutUint32(ds64[24:28], 0) // chunk-size table length

	var body []byte
	body = append(body, idWAVE...)
	body = appendChunk(body, idDS64, ds64)
	for _, c := range cw.chunks {
		body = appendChunk(body, c.id, c.body)
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(idRF64); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(0xFFFFFFFF)); err != nil {
		return err
	}
	if _, err := bw.Write(body); err != nil {
		return err
	}
	return bw.Flush()
}

func appendChunk(dst []byte, id string, body []byte) []byte {
	dst = append(dst, id...)
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(body)))
	dst = append(dst, size[:]...)
	dst = append(dst, body...)
	if len(body)%2 == 1 {
		dst = append(dst, 0)
	}
	return dst
}
