package mongo

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"torrentstream/moviesearch/internal/domain"
)

const (
	moviesCollection       = "movies"
	translationsCollection = "translations"
	torrentsCollection     = "torrents"
)

type Repository struct {
	movies       *mongo.Collection
	translations *mongo.Collection
	torrents     *mongo.Collection
}

type movieDoc struct {
	ID            string   `bson:"_id"`
	Title         string   `bson:"title"`
	TitleKey      string   `bson:"titleKey"`
	Year          int      `bson:"year"`
	Image         string   `bson:"image"`
	Plot          string   `bson:"plot"`
	Genres        []string `bson:"genres,omitempty"`
	Directors     []string `bson:"directors,omitempty"`
	Cast          []string `bson:"cast,omitempty"`
	Keywords      []string `bson:"keywords,omitempty"`
	Rating        string   `bson:"rating"`
	RatingCount   string   `bson:"ratingCount"`
	RuntimeMins   int      `bson:"runtimeMins,omitempty"`
	ContentRating string   `bson:"contentRating,omitempty"`
	Views         int64    `bson:"views"`
	Votes         int64    `bson:"votes"`
	UserRating    float64  `bson:"userRating"`
	UpdatedAt     int64    `bson:"updatedAt"`
}

type translationDoc struct {
	MovieID          string `bson:"_id"`
	KinopoiskID      string `bson:"kinopoiskId"`
	IMDbID           string `bson:"imdbId"`
	Title            string `bson:"title"`
	OriginalTitle    string `bson:"originalTitle,omitempty"`
	Description      string `bson:"description,omitempty"`
	PosterURL        string `bson:"posterUrl,omitempty"`
	PosterPreviewURL string `bson:"posterPreviewUrl,omitempty"`
	Year             int    `bson:"year,omitempty"`
}

type torrentDoc struct {
	ID         string `bson:"_id"`
	MovieID    string `bson:"movieId"`
	Title      string `bson:"title"`
	Magnet     string `bson:"magnet"`
	InfoHash   string `bson:"infoHash"`
	Descriptor []byte `bson:"descriptor,omitempty"`
	Seeds      int    `bson:"seeds"`
	Peers      int    `bson:"peers"`
	Size       string `bson:"size"`
	Provider   string `bson:"provider"`
	UpdatedAt  int64  `bson:"updatedAt"`
}

func NewRepository(client *mongo.Client, dbName string) *Repository {
	db := client.Database(dbName)
	return &Repository{
		movies:       db.Collection(moviesCollection),
		translations: db.Collection(translationsCollection),
		torrents:     db.Collection(torrentsCollection),
	}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *Repository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.movies == nil {
		return nil
	}
	if _, err := r.movies.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "titleKey", Value: 1}, {Key: "year", Value: 1}}},
		{Keys: bson.D{{Key: "updatedAt", Value: -1}}},
	}); err != nil {
		return err
	}
	if _, err := r.translations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "kinopoiskId", Value: 1}},
	}); err != nil {
		return err
	}
	_, err := r.torrents.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "movieId", Value: 1}},
	})
	return err
}

func (r *Repository) GetMovie(ctx context.Context, id string) (domain.Movie, error) {
	var doc movieDoc
	if err := r.movies.FindOne(ctx, bson.M{"_id": strings.TrimSpace(id)}).Decode(&doc); err != nil {
		return domain.Movie{}, mapNotFound(err)
	}
	return fromMovieDoc(doc), nil
}

// FindMovie matches on the folded title key. A zero year matches any year;
// ties resolve to the lowest id.
func (r *Repository) FindMovie(ctx context.Context, title string, year int) (domain.Movie, error) {
	key := domain.TitleKey(title)
	if key == "" {
		return domain.Movie{}, domain.ErrNotFound
	}
	filter := bson.M{"titleKey": key}
	if year > 0 {
		filter["year"] = year
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}})
	var doc movieDoc
	if err := r.movies.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		return domain.Movie{}, mapNotFound(err)
	}
	return fromMovieDoc(doc), nil
}

// UpsertMovie replaces descriptive fields and only touches optional fields and
// counters when the new record carries a value.
func (r *Repository) UpsertMovie(ctx context.Context, movie domain.Movie) error {
	id := strings.TrimSpace(movie.ID)
	if id == "" {
		return domain.ErrInvalidMovie
	}
	movie.ID = id
	if movie.UpdatedAt.IsZero() {
		movie.UpdatedAt = time.Now().UTC()
	}
	_, err := r.movies.UpdateOne(ctx, bson.M{"_id": id}, movieUpdate(movie), options.Update().SetUpsert(true))
	return err
}

func (r *Repository) SearchMovies(ctx context.Context, query string, limit int) ([]domain.Movie, error) {
	key := domain.TitleKey(query)
	if key == "" {
		return nil, domain.ErrInvalidQuery
	}
	opts := options.Find().SetSort(bson.D{{Key: "title", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.movies.Find(ctx, bson.M{"titleKey": bson.M{"$regex": regexp.QuoteMeta(key)}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []movieDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	movies := make([]domain.Movie, 0, len(docs))
	for _, doc := range docs {
		movies = append(movies, fromMovieDoc(doc))
	}
	return movies, nil
}

func (r *Repository) GetTranslation(ctx context.Context, movieID string) (domain.Translation, error) {
	var doc translationDoc
	if err := r.translations.FindOne(ctx, bson.M{"_id": strings.TrimSpace(movieID)}).Decode(&doc); err != nil {
		return domain.Translation{}, mapNotFound(err)
	}
	return fromTranslationDoc(doc), nil
}

func (r *Repository) UpsertTranslation(ctx context.Context, movieID string, translation domain.Translation) error {
	id := strings.TrimSpace(movieID)
	if id == "" {
		return domain.ErrInvalidMovie
	}
	doc := toTranslationDoc(id, translation)
	_, err := r.translations.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return err
}

func (r *Repository) UpsertTorrentRecord(ctx context.Context, candidate domain.TorrentCandidate, movieID string) error {
	id := strings.TrimSpace(movieID)
	if id == "" {
		return domain.ErrInvalidMovie
	}
	doc := toTorrentDoc(domain.NewTorrentRecord(candidate, id), time.Now().UTC())
	if doc.ID == "" {
		return nil
	}
	_, err := r.torrents.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (r *Repository) TorrentsFor(ctx context.Context, movieID string) ([]domain.TorrentRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "title", Value: 1}})
	cursor, err := r.torrents.Find(ctx, bson.M{"movieId": movieID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []torrentDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	records := make([]domain.TorrentRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, fromTorrentDoc(doc))
	}
	return records, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrNotFound
	}
	return err
}

func movieUpdate(m domain.Movie) bson.M {
	set := bson.M{
		"title":       m.Title,
		"titleKey":    domain.TitleKey(m.Title),
		"year":        m.Year,
		"image":       m.Image,
		"plot":        m.Plot,
		"genres":      m.Genres,
		"rating":      m.Rating,
		"ratingCount": m.RatingCount,
		"updatedAt":   m.UpdatedAt.Unix(),
	}
	onInsert := bson.M{}

	if m.RuntimeMins > 0 {
		set["runtimeMins"] = m.RuntimeMins
	}
	if m.ContentRating != "" {
		set["contentRating"] = m.ContentRating
	}
	if len(m.Directors) > 0 {
		set["directors"] = m.Directors
	}
	if len(m.Cast) > 0 {
		set["cast"] = m.Cast
	}
	if len(m.Keywords) > 0 {
		set["keywords"] = m.Keywords
	}
	// A counter lands in $set or $setOnInsert, never both.
	setCounter := func(field string, value any, present bool) {
		if present {
			set[field] = value
			return
		}
		onInsert[field] = 0
	}
	setCounter("views", m.Views, m.Views > 0)
	setCounter("votes", m.Votes, m.Votes > 0)
	setCounter("userRating", m.UserRating, m.UserRating > 0)

	update := bson.M{"$set": set}
	if len(onInsert) > 0 {
		update["$setOnInsert"] = onInsert
	}
	return update
}

func fromMovieDoc(doc movieDoc) domain.Movie {
	return domain.Movie{
		ID:            doc.ID,
		Title:         doc.Title,
		Year:          doc.Year,
		Image:         doc.Image,
		Plot:          doc.Plot,
		Genres:        doc.Genres,
		Directors:     doc.Directors,
		Cast:          doc.Cast,
		Keywords:      doc.Keywords,
		Rating:        doc.Rating,
		RatingCount:   doc.RatingCount,
		RuntimeMins:   doc.RuntimeMins,
		ContentRating: doc.ContentRating,
		Views:         doc.Views,
		Votes:         doc.Votes,
		UserRating:    doc.UserRating,
		UpdatedAt:     timeFromUnix(doc.UpdatedAt),
	}
}

func toTranslationDoc(movieID string, t domain.Translation) translationDoc {
	return translationDoc{
		MovieID:          movieID,
		KinopoiskID:      t.ID,
		IMDbID:           t.IMDbID,
		Title:            t.Title,
		OriginalTitle:    t.OriginalTitle,
		Description:      t.Description,
		PosterURL:        t.PosterURL,
		PosterPreviewURL: t.PosterPreviewURL,
		Year:             t.Year,
	}
}

func fromTranslationDoc(doc translationDoc) domain.Translation {
	return domain.Translation{
		ID:               doc.KinopoiskID,
		IMDbID:           doc.IMDbID,
		Title:            doc.Title,
		OriginalTitle:    doc.OriginalTitle,
		Description:      doc.Description,
		PosterURL:        doc.PosterURL,
		PosterPreviewURL: doc.PosterPreviewURL,
		Year:             doc.Year,
	}
}

// toTorrentDoc keys a record by infohash, falling back to the magnet. The id
// is empty when the record has neither.
func toTorrentDoc(record domain.TorrentRecord, now time.Time) torrentDoc {
	id := strings.ToLower(strings.TrimSpace(record.InfoHash))
	if id == "" {
		id = strings.TrimSpace(record.Magnet)
	}
	return torrentDoc{
		ID:         id,
		MovieID:    record.MovieID,
		Title:      record.Title,
		Magnet:     record.Magnet,
		InfoHash:   strings.ToLower(strings.TrimSpace(record.InfoHash)),
		Descriptor: record.Descriptor,
		Seeds:      record.Seeds,
		Peers:      record.Peers,
		Size:       record.Size,
		Provider:   record.Provider,
		UpdatedAt:  now.Unix(),
	}
}

func fromTorrentDoc(doc torrentDoc) domain.TorrentRecord {
	return domain.TorrentRecord{
		MovieID:    doc.MovieID,
		Title:      doc.Title,
		Magnet:     doc.Magnet,
		InfoHash:   doc.InfoHash,
		Descriptor: doc.Descriptor,
		Seeds:      doc.Seeds,
		Peers:      doc.Peers,
		Size:       doc.Size,
		Provider:   doc.Provider,
	}
}

func timeFromUnix(value int64) time.Time {
	if value <= 0 {
		return time.Time{}
	}
	return time.Unix(value, 0).UTC()
}
