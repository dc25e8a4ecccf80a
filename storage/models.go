package storage

import (
	"database/sql/driver"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

const (
	DefaultWelcomeText = "Hello {name}!\nWelcome to {title}!\n\nEnjoy your stay!"
	DefaultButtonLabel = "Our Channel"
	DefaultButtonURL   = "https://t.me/telegram"

	dayLayout = "2006-01-02"
)

// Button is a single inline URL button of a welcome message
type Button struct {
	Label string `json:"label" bson:"label"`
	URL   string `json:"url" bson:"url"`
}

// ButtonRows is an ordered list of button rows. It is stored as a JSON
// column by the relational backend.
type ButtonRows [][]Button

func (r ButtonRows) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}

	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode buttons: %w", err)
	}
	return string(data), nil
}

func (r *ButtonRows) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*r = ButtonRows{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported buttons column type %T", src)
	}

	rows := ButtonRows{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("failed to decode buttons: %w", err)
	}
	*r = rows
	return nil
}

// Count returns the total number of buttons over all rows
func (r ButtonRows) Count() int {
	n := 0
	for _, row := range r {
		n += len(row)
	}
	return n
}

// ChatSettings is the welcome configuration of one chat
type ChatSettings struct {
	ChatID      int64      `gorm:"primaryKey;autoIncrement:false" json:"chat_id" bson:"_id"`
	WelcomeText string     `gorm:"not null" json:"welcome_text" bson:"welcome_text"`
	PhotoRef    string     `json:"photo_ref,omitempty" bson:"photo_ref"`
	VideoRef    string     `json:"video_ref,omitempty" bson:"video_ref"`
	VoiceRef    string     `json:"voice_ref,omitempty" bson:"voice_ref"`
	Buttons     ButtonRows `gorm:"type:text" json:"buttons" bson:"buttons"`
	Enabled     bool       `gorm:"not null" json:"enabled" bson:"enabled"`
}

func (ChatSettings) TableName() string {
	return "chat_settings"
}

// DefaultSettings builds the record synthesized on first access to a chat
func DefaultSettings(chatID int64, buttonURL string) *ChatSettings {
	if buttonURL == "" {
		buttonURL = DefaultButtonURL
	}

	return &ChatSettings{
		ChatID:      chatID,
		WelcomeText: DefaultWelcomeText,
		Buttons:     ButtonRows{{{Label: DefaultButtonLabel, URL: buttonURL}}},
		Enabled:     true,
	}
}

// ChatStats holds the join counters of one chat
type ChatStats struct {
	ChatID int64  `gorm:"primaryKey;autoIncrement:false" json:"chat_id" bson:"_id"`
	Total  int64  `gorm:"not null" json:"total" bson:"total"`
	Today  int64  `gorm:"not null" json:"today" bson:"today"`
	Date   string `gorm:"column:stat_date;size:10" json:"date" bson:"date"`
}

func (ChatStats) TableName() string {
	return "chat_stats"
}

func (s *ChatStats) recordJoin(day string) {
	s.Total++
	if s.Date == day {
		s.Today++
	} else {
		s.Today = 1
		s.Date = day
	}
}

// asOf hides a stale same-day counter without touching the stored record
func (s *ChatStats) asOf(day string) *ChatStats {
	out := *s
	if out.Date != day {
		out.Today = 0
	}
	return &out
}

// Field names a single mutable ChatSettings attribute
type Field string

const (
	FieldWelcomeText Field = "welcome_text"
	FieldPhotoRef    Field = "photo_ref"
	FieldVideoRef    Field = "video_ref"
	FieldVoiceRef    Field = "voice_ref"
	FieldButtons     Field = "buttons"
	FieldEnabled     Field = "enabled"
)

var (
	ErrUnknownField = errors.New("unknown settings field")
	ErrInvalidValue = errors.New("invalid value for settings field")
)

// normalize checks that value has the Go type expected by field and
// converts it to the form stored by the backends
func (f Field) normalize(value any) (any, error) {
	switch f {
	case FieldWelcomeText, FieldPhotoRef, FieldVideoRef, FieldVoiceRef:
		v, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects string, got %T", ErrInvalidValue, f, value)
		}
		return v, nil
	case FieldButtons:
		switch v := value.(type) {
		case ButtonRows:
			if v == nil {
				v = ButtonRows{}
			}
			return v, nil
		case [][]Button:
			if v == nil {
				return ButtonRows{}, nil
			}
			return ButtonRows(v), nil
		default:
			return nil, fmt.Errorf("%w: %s expects button rows, got %T", ErrInvalidValue, f, value)
		}
	case FieldEnabled:
		v, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects bool, got %T", ErrInvalidValue, f, value)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, string(f))
	}
}

// set assigns an already normalized value
func (s *ChatSettings) set(f Field, value any) {
	switch f {
	case FieldWelcomeText:
		s.WelcomeText = value.(string)
	case FieldPhotoRef:
		s.PhotoRef = value.(string)
	case FieldVideoRef:
		s.VideoRef = value.(string)
	case FieldVoiceRef:
		s.VoiceRef = value.(string)
	case FieldButtons:
		s.Buttons = value.(ButtonRows)
	case FieldEnabled:
		s.Enabled = value.(bool)
	}
}
