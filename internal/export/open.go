package export

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/discochess/movegrade/internal/export/sink"
	"github.com/discochess/movegrade/internal/export/sink/disksink"
	"github.com/discochess/movegrade/internal/export/sink/gcssink"
	"github.com/discochess/movegrade/internal/export/sink/s3sink"
)

// OpenSink opens the sink named by dest: a local directory,
// gs://bucket/prefix or s3://bucket/prefix.
func OpenSink(ctx context.Context, dest string) (sink.Sink, error) {
	switch {
	case strings.HasPrefix(dest, "gs://"), strings.HasPrefix(dest, "s3://"):
		u, err := url.Parse(dest)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", dest, err)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("missing bucket in %q", dest)
		}
		if u.Scheme == "gs" {
			return gcssink.New(ctx, u.Host, gcssink.WithPrefix(u.Path))
		}
		return s3sink.New(ctx, u.Host, s3sink.WithPrefix(u.Path))
	case dest == "":
		return nil, fmt.Errorf("empty export destination")
	default:
		return disksink.New(dest)
	}
}
