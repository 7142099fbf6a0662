// Package torrentfile downloads .torrent descriptors for magnet links from
// public descriptor caches and verifies them against the magnet infohash.
package torrentfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anacrolix/torrent/metainfo"

	"torrentstream/moviesearch/internal/domain"
	"torrentstream/moviesearch/internal/providers/common"
)

const (
	defaultUserAgent  = "moviesearch/1.0"
	maxDescriptorSize = 8 * 1024 * 1024
)

// DefaultMirrors are URL templates; %s receives the uppercase hex infohash.
var DefaultMirrors = []string{
	"https://itorrents.org/torrent/%s.torrent",
	"https://torrage.info/torrent.php?h=%s",
}

var errHashMismatch = errors.New("descriptor infohash mismatch")

type Config struct {
	Mirrors   []string
	UserAgent string
	Client    *http.Client
}

type Fetcher struct {
	client    *http.Client
	mirrors   []string
	userAgent string
}

func NewFetcher(cfg Config) *Fetcher {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	mirrors := make([]string, 0, len(cfg.Mirrors))
	for _, mirror := range cfg.Mirrors {
		if value := strings.TrimSpace(mirror); strings.Contains(value, "%s") {
			mirrors = append(mirrors, value)
		}
	}
	if len(mirrors) == 0 {
		mirrors = append(mirrors, DefaultMirrors...)
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Fetcher{client: client, mirrors: mirrors, userAgent: userAgent}
}

// FetchDescriptor returns the first mirror payload whose info dictionary
// hashes to the magnet's infohash.
func (f *Fetcher) FetchDescriptor(ctx context.Context, magnet string) ([]byte, error) {
	parsed, err := metainfo.ParseMagnetUri(strings.TrimSpace(magnet))
	if err != nil {
		return nil, fmt.Errorf("parse magnet: %w", err)
	}
	want := strings.ToLower(parsed.InfoHash.HexString())

	var errs []error
	for _, mirror := range f.mirrors {
		data, err := f.fetch(ctx, fmt.Sprintf(mirror, strings.ToUpper(want)))
		if err == nil {
			got, hashErr := InfoHashFromDescriptor(data)
			switch {
			case hashErr != nil:
				err = hashErr
			case got != want:
				err = fmt.Errorf("%w: got %s want %s", errHashMismatch, got, want)
			default:
				return data, nil
			}
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

func (f *Fetcher) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/x-bittorrent")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, domain.Transient("torrentfile", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, common.HTTPError("torrentfile", resp)
	}
	return common.ReadBody(resp, maxDescriptorSize)
}

// InfoHashFromDescriptor decodes a .torrent payload and returns its lowercase
// hex infohash.
func InfoHashFromDescriptor(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty descriptor")
	}
	mi, err := metainfo.Load(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode descriptor: %w", err)
	}
	if len(mi.InfoBytes) == 0 {
		return "", errors.New("missing info dictionary")
	}
	return strings.ToLower(mi.HashInfoBytes().HexString()), nil
}
