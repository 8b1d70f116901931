package types

import (
	"fmt"
	"sort"
	"strings"
)

// Codec is a compression algorithm for site archives.
type Codec string

const (
	CodecGzip  Codec = "gz"
	CodecBzip2 Codec = "bz2"
	CodecXZ    Codec = "xz"
)

// codecNames maps every accepted user-facing name to its codec.
var codecNames = map[string]Codec{
	"gz":    CodecGzip,
	"gzip":  CodecGzip,
	"bz2":   CodecBzip2,
	"bzip2": CodecBzip2,
	"xz":    CodecXZ,
	"lzma":  CodecXZ,
}

// ParseCodec resolves a codec name or alias. Unknown names are a configuration error.
func ParseCodec(name string) (Codec, error) {
	c, ok := codecNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", &ConfigurationError{
			Field: "code",
			Value: name,
			Err:   fmt.Errorf("must be one of: %s", strings.Join(CodecNames(), ", ")),
		}
	}
	return c, nil
}

// CodecNames returns the accepted codec names, sorted.
func CodecNames() []string {
	names := make([]string, 0, len(codecNames))
	for n := range codecNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// TarFlag returns the tar filter flag selecting this codec.
func (c Codec) TarFlag() string {
	switch c {
	case CodecBzip2:
		return "j"
	case CodecXZ:
		return "J"
	default:
		return "z"
	}
}

// Extension is the archive suffix after ".tar.".
func (c Codec) Extension() string {
	return string(c)
}

func (c Codec) String() string {
	return string(c)
}
