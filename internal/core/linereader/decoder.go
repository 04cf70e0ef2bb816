package linereader

import (
	"fmt"
	"strings"
	"unicode/utf8"

	perr "rangeload/internal/platform/errors"

	"golang.org/x/text/encoding/charmap"
)

// Decoder turns the raw bytes of one line into text
type Decoder func([]byte) (string, error)

// UTF8 accepts only valid UTF-8
func UTF8(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", fmt.Errorf("invalid utf-8 at line byte %d", firstInvalid(b))
	}
	return string(b), nil
}

func charmapDecoder(cm *charmap.Charmap) Decoder {
	return func(b []byte) (string, error) {
		out, err := cm.NewDecoder().Bytes(b)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
}

// DecoderFor resolves an encoding name from configuration
func DecoderFor(name string) (Decoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return UTF8, nil
	case "windows-1252", "cp1252":
		return charmapDecoder(charmap.Windows1252), nil
	case "latin1", "iso-8859-1":
		return charmapDecoder(charmap.ISO8859_1), nil
	}
	return nil, perr.InvalidArgf("unsupported encoding %q", name)
}

func firstInvalid(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(b)
}

func decodeError(offset int64, cause error) error {
	return perr.AtOffset(perr.Wrapf(cause, perr.ErrorCodeDecode, "decode line at byte %d", offset), offset)
}

func readError(offset int64, cause error) error {
	return perr.AtOffset(perr.Wrapf(cause, perr.ErrorCodeSource, "read source at byte %d", offset), offset)
}
