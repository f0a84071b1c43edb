package tagging

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/dhowden/tag"

	"github.com/dperezm/tracknest/internal/constants"
	"github.com/dperezm/tracknest/internal/httpclient"
)

const maxCoverBytes = 10 << 20

// CoverPlan says which artwork a download ends up with. When URL is set
// the image is fetched and embedded after the download; EmbedThumbnail
// lets the extractor embed its own thumbnail during extraction instead.
type CoverPlan struct {
	URL            string
	EmbedThumbnail bool
}

// PlanCover picks the artwork source. A Spotify-origin cover always wins
// and suppresses the extractor thumbnail so the two never stack.
func PlanCover(coverURL *string, embedThumbnail bool) CoverPlan {
	if coverURL != nil && IsSpotifyCover(*coverURL) {
		return CoverPlan{URL: *coverURL}
	}
	return CoverPlan{EmbedThumbnail: embedThumbnail}
}

// IsSpotifyCover reports whether the URL points at Spotify's image CDN.
func IsSpotifyCover(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == constants.SpotifyCoverHost || strings.HasSuffix(host, "."+constants.SpotifyCoverHost)
}

// FetchCover downloads the planned cover image. A nil slice with a nil
// error means there is nothing to embed.
func FetchCover(ctx context.Context, client *http.Client, plan CoverPlan) ([]byte, error) {
	if plan.URL == "" {
		return nil, nil
	}
	data, err := httpclient.GetBytes(ctx, client, plan.URL, maxCoverBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cover: %w", err)
	}
	if !strings.HasPrefix(detectImageMIME(data), "image/") {
		return nil, fmt.Errorf("cover at %s is not an image", plan.URL)
	}
	return data, nil
}

// ReadFileTags reads metadata back out of a tagged audio file.
func ReadFileTags(path string) (tag.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	md, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}
	return md, nil
}
