// Package normalize converts raw extractor output bytes into valid UTF-8
// text. PDF text layers from older Central European vendor documents often
// arrive in ISO 8859-2 or Windows-1250; this package applies one explicit
// decoding fallback order at the byte boundary instead of scattering
// per-character fix-up tables through the pipeline.
package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// fallbacks is the decoding order tried when input is not valid UTF-8.
// Windows-1250 is tried first because its undefined code points surface as
// replacement runes, which disqualify it cleanly; ISO 8859-2 maps every
// byte and so acts as the terminal fallback.
var fallbacks = []*charmap.Charmap{
	charmap.Windows1250,
	charmap.ISO8859_2,
	charmap.ISO8859_1,
}

// Text decodes raw bytes into NFC-normalized UTF-8 text. Valid UTF-8 passes
// through unchanged apart from normalization and control-character cleanup.
func Text(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	var s string
	if utf8.Valid(raw) {
		s = string(raw)
	} else {
		decoded, err := decodeFallback(raw)
		if err != nil {
			return "", err
		}
		s = decoded
	}

	s = norm.NFC.String(s)
	return stripControl(s), nil
}

func decodeFallback(raw []byte) (string, error) {
	var best string
	for _, cm := range fallbacks {
		out, err := cm.NewDecoder().Bytes(raw)
		if err != nil {
			continue
		}
		s := string(out)
		if best == "" {
			best = s
		}
		// Undefined code points decode to U+FFFD; a clean decode wins.
		if !strings.ContainsRune(s, utf8.RuneError) {
			return s, nil
		}
	}
	if best == "" {
		return "", eris.New("normalize: no charmap could decode input")
	}
	return best, nil
}

// stripControl removes control characters except newline, tab and form feed
// (form feeds mark page boundaries in layout text).
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\f' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, s)
}
