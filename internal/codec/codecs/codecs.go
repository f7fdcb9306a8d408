// Package codecs looks up codecs by name.
package codecs

import (
	"errors"
	"fmt"
	"sort"

	"github.com/discochess/movegrade/internal/codec"
	"github.com/discochess/movegrade/internal/codec/gzipcodec"
	"github.com/discochess/movegrade/internal/codec/noopcodec"
	"github.com/discochess/movegrade/internal/codec/zstdcodec"
)

// ErrUnknown is returned for a name no codec answers to.
var ErrUnknown = errors.New("codecs: unknown codec")

// Default is the codec used when none is configured.
const Default = "zstd"

var byName = map[string]func() codec.Codec{
	"zstd": func() codec.Codec { return zstdcodec.New() },
	"gzip": func() codec.Codec { return gzipcodec.New() },
	"none": func() codec.Codec { return noopcodec.New() },
}

// ByName returns the codec called name. An empty name selects Default.
func ByName(name string) (codec.Codec, error) {
	if name == "" {
		name = Default
	}
	mk, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return mk(), nil
}

// Names returns the known codec names, sorted.
func Names() []string {
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
