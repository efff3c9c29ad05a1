// Package loader reads flat binary program images from disk: a
// sequence of 16-bit little-endian words, per spec §6.1. Grounded on
// the original prototype's load_from_disk_to_16bit_buffer
// (_examples/original_source/lib.cpp), generalized to a Go io.Reader.
package loader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/arq-sim/arqsim/arch/word"
)

// Load reads an entire binary image from path. Files must have an even
// byte length; an odd-length file is rejected as malformed (host-fatal
// per spec §7).
func Load(path string) ([]word.Word, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: reading %s: %w", path, err)
	}
	return Decode(raw)
}

// Decode converts a raw byte image into words. It rejects odd-length
// input.
func Decode(raw []byte) ([]word.Word, error) {
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("loader: image has odd length %d bytes", len(raw))
	}

	words := make([]word.Word, len(raw)/2)
	r := bytes.NewReader(raw)
	for i := range words {
		var w uint16
		if err := binary.Read(r, binary.LittleEndian, &w); err != nil {
			return nil, fmt.Errorf("loader: decoding word %d: %w", i, err)
		}
		words[i] = word.Word(w)
	}
	return words, nil
}

// FitsWindow reports whether an image of the given length fits in a
// destination window of windowLen words. The loader must reject images
// larger than the destination window before ever touching memory.
func FitsWindow(imageLen, windowLen int) bool {
	return imageLen <= windowLen
}

// ReadAll is a small convenience wrapper so callers that already hold
// an io.Reader (e.g. an embedded idle image) can share Decode's
// validation without going through the filesystem.
func ReadAll(r io.Reader) ([]word.Word, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("loader: reading image: %w", err)
	}
	return Decode(raw)
}
