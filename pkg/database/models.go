package database

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Sizes of the fixed-width news fields as they travel in Wires-X replies
const (
	GPSLength      = 18
	TokenLength    = 6
	TimeLength     = 12
	CallsignLength = 10
	SubjectLength  = 16
	TextLength     = 80

	// IndexRecordLength is one entry of a news index listing
	IndexRecordLength = 83
	// TextRecordLength is the stored body of a text message
	TextRecordLength = 121
)

// News kinds, the first letter of NewsRecord.Kind
const (
	KindText    = 'T'
	KindPicture = 'P'
	KindVoice   = 'V'
	KindEvent   = 'E'
)

// NewsRecord is one Wires-X news item (text, picture or voice) left in a
// room or on this node. Records are numbered from 1 per network and room.
type NewsRecord struct {
	ID       uint   `gorm:"primarykey" json:"id"`
	Network  string `gorm:"uniqueIndex:idx_news_number;size:3;not null" json:"network"`
	Room     string `gorm:"uniqueIndex:idx_news_number;size:5;not null" json:"room"`
	Number   uint   `gorm:"uniqueIndex:idx_news_number;not null" json:"number"`
	Kind     string `gorm:"size:3;not null" json:"kind"`
	UploadID string `gorm:"size:36" json:"upload_id"`
	Token    []byte `gorm:"size:6" json:"-"`
	GPS      []byte `gorm:"size:18" json:"-"`
	TimeRecv string `gorm:"size:12" json:"time_recv"`
	TimeSend string `gorm:"size:12" json:"time_send"`
	Callsign string `gorm:"size:10;index" json:"callsign"`
	Subject  string `gorm:"size:16" json:"subject"`
	Text     string `gorm:"size:80" json:"text"`
	// Data is the JPEG of a picture or the stored air payloads of a voice
	// message
	Data      []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for NewsRecord
func (NewsRecord) TableName() string {
	return "news_records"
}

// BeforeCreate fills the timestamps a radio may leave out
func (n *NewsRecord) BeforeCreate(tx *gorm.DB) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	stamp := n.CreatedAt.Format("060102150405")
	if strings.TrimSpace(n.TimeRecv) == "" {
		n.TimeRecv = stamp
	}
	if strings.TrimSpace(n.TimeSend) == "" {
		n.TimeSend = stamp
	}
	return nil
}

// KindLetter returns the first letter of the kind, 0 when unset
func (n *NewsRecord) KindLetter() byte {
	if n.Kind == "" {
		return 0
	}
	return n.Kind[0]
}

// IndexBytes renders the record as an 83 byte index entry:
// gps, token, time received, number, kind, time sent, callsign, subject, CR
func (n *NewsRecord) IndexBytes() []byte {
	b := make([]byte, 0, IndexRecordLength)
	b = appendFixed(b, n.GPS, GPSLength, 0)
	b = appendFixed(b, n.Token, TokenLength, ' ')
	b = appendFixed(b, []byte(n.TimeRecv), TimeLength, ' ')
	b = append(b, fmt.Sprintf("%05d", n.Number%100000)...)
	b = appendFixed(b, []byte(n.Kind), 3, ' ')
	b = appendFixed(b, []byte(n.TimeSend), TimeLength, ' ')
	b = appendFixed(b, []byte(n.Callsign), CallsignLength, ' ')
	b = appendFixed(b, []byte(n.Subject), SubjectLength, ' ')
	return append(b, 0x0D)
}

// TextBytes renders a text message body as 121 bytes:
// callsign, time sent, gps, text, CR
func (n *NewsRecord) TextBytes() []byte {
	b := make([]byte, 0, TextRecordLength)
	b = appendFixed(b, []byte(n.Callsign), CallsignLength, ' ')
	b = appendFixed(b, []byte(n.TimeSend), TimeLength, ' ')
	b = appendFixed(b, n.GPS, GPSLength, 0)
	b = appendFixed(b, []byte(n.Text), TextLength, ' ')
	return append(b, 0x0D)
}

func appendFixed(b, v []byte, n int, pad byte) []byte {
	for i := 0; i < n; i++ {
		if i < len(v) {
			b = append(b, v[i])
		} else {
			b = append(b, pad)
		}
	}
	return b
}

// Transmission is one voice transmission relayed through the gateway, in
// either direction
type Transmission struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Callsign  string    `gorm:"index;size:10;not null" json:"callsign"`
	Direction string    `gorm:"size:16;not null" json:"direction"`
	Network   string    `gorm:"size:4;not null" json:"network"`
	DstID     int       `gorm:"index" json:"dst_id"`
	DstName   string    `gorm:"size:16" json:"dst_name"`
	Duration  float64   `gorm:"not null" json:"duration"` // seconds
	Frames    int       `gorm:"default:0" json:"frames"`
	StartTime time.Time `gorm:"index;not null" json:"start_time"`
	EndTime   time.Time `gorm:"not null" json:"end_time"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for Transmission
func (Transmission) TableName() string {
	return "transmissions"
}

// BeforeCreate hook to ensure StartTime and EndTime are set
func (t *Transmission) BeforeCreate(tx *gorm.DB) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.StartTime.IsZero() {
		t.StartTime = time.Now()
	}
	if t.EndTime.IsZero() {
		t.EndTime = t.StartTime
	}
	return nil
}

// DMRUser represents a DMR user from the RadioID database
type DMRUser struct {
	RadioID   uint32    `gorm:"primarykey;not null" json:"radio_id"`
	Callsign  string    `gorm:"index;size:20" json:"callsign"`
	FirstName string    `gorm:"size:50" json:"first_name"`
	LastName  string    `gorm:"size:50" json:"last_name"`
	City      string    `gorm:"size:50" json:"city"`
	State     string    `gorm:"size:50" json:"state"`
	Country   string    `gorm:"size:50" json:"country"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for DMRUser
func (DMRUser) TableName() string {
	return "dmr_users"
}

// FullName returns first and last name joined by a space
func (u *DMRUser) FullName() string {
	return joinNonEmpty(" ", u.FirstName, u.LastName)
}

// Location returns city, state and country, comma separated
func (u *DMRUser) Location() string {
	return joinNonEmpty(", ", u.City, u.State, u.Country)
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
