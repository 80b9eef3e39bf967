package wiresx

import (
	"fmt"

	"github.com/dbehnke/ysf-gateway/pkg/database"
	"github.com/dbehnke/ysf-gateway/pkg/logger"
	"github.com/dbehnke/ysf-gateway/pkg/ysf"
	"github.com/google/uuid"
)

// Storage keeps the news left on this node: text messages are stored in one
// step, pictures and voice are streamed into an upload and committed or
// discarded at the end.
type Storage interface {
	StoreText(rec *database.NewsRecord) error
	BeginUpload(rec *database.NewsRecord) string
	AppendUpload(handle string, data []byte)
	FinishUpload(handle string, ok bool) (*database.NewsRecord, error)
	List(network, room string, kind byte) ([]database.NewsRecord, error)
	Get(network, room string, number uint) (*database.NewsRecord, error)
}

// NewsRepository is the persistence NewsStore writes through
type NewsRepository interface {
	Create(rec *database.NewsRecord) error
	List(network, room string, kind byte) ([]database.NewsRecord, error)
	Get(network, room string, number uint) (*database.NewsRecord, error)
}

// voiceBytesPerFrame is the AMBE size of one voice frame, used to size class
// voice records
const voiceBytesPerFrame = 40

// NewsStore is the Storage backed by the news table. Uploads in progress are
// held in memory until FinishUpload.
type NewsStore struct {
	repo    NewsRepository
	log     *logger.Logger
	uploads map[string]*database.NewsRecord
}

// NewNewsStore creates a store over repo
func NewNewsStore(repo NewsRepository, log *logger.Logger) *NewsStore {
	return &NewsStore{
		repo:    repo,
		log:     log.WithComponent("wiresx.news"),
		uploads: make(map[string]*database.NewsRecord),
	}
}

// StoreText saves a text message
func (s *NewsStore) StoreText(rec *database.NewsRecord) error {
	if err := s.repo.Create(rec); err != nil {
		return fmt.Errorf("store text message: %w", err)
	}
	s.log.Info("Stored text message",
		logger.String("room", rec.Network+rec.Room),
		logger.Uint("number", rec.Number),
		logger.String("callsign", rec.Callsign))
	return nil
}

// BeginUpload opens an upload for rec and returns its handle
func (s *NewsStore) BeginUpload(rec *database.NewsRecord) string {
	rec.UploadID = uuid.NewString()
	s.uploads[rec.UploadID] = rec
	s.log.Debug("Upload started",
		logger.String("upload", rec.UploadID),
		logger.String("kind", rec.Kind),
		logger.String("room", rec.Network+rec.Room))
	return rec.UploadID
}

// AppendUpload adds data to an open upload; unknown handles are ignored
func (s *NewsStore) AppendUpload(handle string, data []byte) {
	rec, ok := s.uploads[handle]
	if !ok {
		return
	}
	rec.Data = append(rec.Data, data...)
}

// FinishUpload commits the upload when ok, discarding it otherwise. The kind
// gets its size class, one per started kilobyte.
func (s *NewsStore) FinishUpload(handle string, ok bool) (*database.NewsRecord, error) {
	rec, found := s.uploads[handle]
	if !found {
		return nil, fmt.Errorf("unknown upload %s", handle)
	}
	delete(s.uploads, handle)

	if !ok {
		s.log.Warn("Upload discarded",
			logger.String("upload", handle),
			logger.Int("bytes", len(rec.Data)))
		return nil, nil
	}

	letter := rec.KindLetter()
	size := len(rec.Data)
	if letter == database.KindVoice {
		size = len(rec.Data) / ysf.PayloadLength * voiceBytesPerFrame
	}
	rec.Kind = fmt.Sprintf("%c%02d", letter, (size/1000+1)%100)

	if err := s.repo.Create(rec); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	s.log.Info("Upload stored",
		logger.String("kind", rec.Kind),
		logger.String("room", rec.Network+rec.Room),
		logger.Uint("number", rec.Number),
		logger.Int("bytes", len(rec.Data)))
	return rec, nil
}

// List returns a room's records of one kind
func (s *NewsStore) List(network, room string, kind byte) ([]database.NewsRecord, error) {
	return s.repo.List(network, room, kind)
}

// Get returns one record with its data
func (s *NewsStore) Get(network, room string, number uint) (*database.NewsRecord, error) {
	return s.repo.Get(network, room, number)
}

// newRecord reads the fields shared by text and picture uploads
func newRecord(args []byte, src string, gps bool) *database.NewsRecord {
	rec := &database.NewsRecord{Callsign: src}
	off := 0
	if gps {
		rec.GPS = append([]byte(nil), args[:database.GPSLength]...)
		off = gpsFieldOffset
	}
	rec.TimeRecv = string(args[off+6 : off+18])
	rec.TimeSend = string(args[off+18 : off+30])
	rec.Room = string(args[off+30 : off+35])
	return rec
}

// listKinds maps the list request type digit to a record kind
var listKinds = map[byte]byte{
	'1': database.KindText,
	'2': database.KindPicture,
	'3': database.KindVoice,
	'4': database.KindEvent,
}

// maxListEntries bounds one list reply
const maxListEntries = 20

// renderList builds the list reply body: a header naming the room and count
// followed by the tail of each index entry from start
func renderList(records []database.NewsRecord, room string, start int) []byte {
	count := 0
	var entries []byte
	for i := range records {
		if i < start || count >= maxListEntries {
			continue
		}
		idx := records[i].IndexBytes()
		entries = append(entries, idx[36:]...)
		count++
	}

	out := make([]byte, 0, 15+len(entries))
	out = append(out, fmt.Sprintf("%02d", count+1)...)
	out = append(out, padRight(room, idLength)...)
	out = append(out, fmt.Sprintf("     %02d", count)...)
	out = append(out, 0x0D)
	return append(out, entries...)
}
