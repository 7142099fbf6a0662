package domain

// ParsedRelease is the identity derived from a release filename.
// CroppedTitle depends on ReleaseTitle only and is the grouping key.
type ParsedRelease struct {
	ReleaseTitle string `json:"releaseTitle"`
	CroppedTitle string `json:"croppedTitle"`
	MovieTitle   string `json:"movieTitle"`
	Year         int    `json:"year"`
}

type TorrentCandidate struct {
	Release ParsedRelease   `json:"release"`
	Result  RawSearchResult `json:"result"`
	SizeGB  float64         `json:"sizeGb"`
}

// TorrentRef is the torrent attached to a resolved movie in responses.
type TorrentRef struct {
	Title         string `json:"title"`
	Size          string `json:"size"`
	Seeds         int    `json:"seeds"`
	Peers         int    `json:"peers"`
	Magnet        string `json:"magnet,omitempty"`
	InfoHash      string `json:"infoHash,omitempty"`
	Provider      string `json:"provider"`
	HasDescriptor bool   `json:"hasDescriptor"`
}

func (c TorrentCandidate) Ref() *TorrentRef {
	return &TorrentRef{
		Title:         c.Result.Title,
		Size:          c.Result.Size,
		Seeds:         c.Result.Seeds,
		Peers:         c.Result.Peers,
		Magnet:        c.Result.Magnet,
		InfoHash:      c.Result.InfoHash,
		Provider:      c.Result.Provider,
		HasDescriptor: len(c.Result.Descriptor) > 0,
	}
}

// TorrentRecord is the stored association between a release and a movie.
type TorrentRecord struct {
	MovieID    string
	Title      string
	Magnet     string
	InfoHash   string
	Descriptor []byte
	Seeds      int
	Peers      int
	Size       string
	Provider   string
}

func (r TorrentRecord) Ref() *TorrentRef {
	return &TorrentRef{
		Title:         r.Title,
		Size:          r.Size,
		Seeds:         r.Seeds,
		Peers:         r.Peers,
		Magnet:        r.Magnet,
		InfoHash:      r.InfoHash,
		Provider:      r.Provider,
		HasDescriptor: len(r.Descriptor) > 0,
	}
}

func NewTorrentRecord(candidate TorrentCandidate, movieID string) TorrentRecord {
	return TorrentRecord{
		MovieID:    movieID,
		Title:      candidate.Result.Title,
		Magnet:     candidate.Result.Magnet,
		InfoHash:   candidate.Result.InfoHash,
		Descriptor: candidate.Result.Descriptor,
		Seeds:      candidate.Result.Seeds,
		Peers:      candidate.Result.Peers,
		Size:       candidate.Result.Size,
		Provider:   candidate.Result.Provider,
	}
}
