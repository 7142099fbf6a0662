package common

import (
	"net/url"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
)

// DefaultTrackers are appended to magnets built from a bare infohash.
var DefaultTrackers = []string{
	"udp://tracker.opentrackr.org:1337/announce",
	"udp://open.stealth.si:80/announce",
	"udp://tracker.torrent.eu.org:451/announce",
	"udp://exodus.desync.com:6969/announce",
}

const btihPrefix = "urn:btih:"

// NormalizeInfoHash lowercases a hash and strips an optional urn:btih: prefix.
func NormalizeInfoHash(raw string) string {
	hash := strings.ToLower(strings.TrimSpace(raw))
	return strings.TrimPrefix(hash, btihPrefix)
}

// BuildMagnet returns "" when infoHash is blank. Blank names and trackers are
// left out.
func BuildMagnet(infoHash, name string, trackers []string) string {
	hash := NormalizeInfoHash(infoHash)
	if hash == "" {
		return ""
	}
	params := url.Values{}
	if dn := strings.TrimSpace(name); dn != "" {
		params.Set("dn", dn)
	}
	for _, tracker := range trackers {
		if tr := strings.TrimSpace(tracker); tr != "" {
			params.Add("tr", tr)
		}
	}
	magnet := "magnet:?xt=" + btihPrefix + hash
	if encoded := params.Encode(); encoded != "" {
		magnet += "&" + encoded
	}
	return magnet
}

// InfoHashFromMagnet returns the lowercase hex v1 infohash of a magnet link,
// or "" when the link cannot be parsed.
func InfoHashFromMagnet(magnet string) string {
	parsed, err := metainfo.ParseMagnetUri(strings.TrimSpace(magnet))
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.InfoHash.HexString())
}
