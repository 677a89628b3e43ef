package catalog

import (
	"context"

	"github.com/google/uuid"
)

// ResponseChannel is the delivery channel configured for a record's answer.
type ResponseChannel string

const (
	ChannelEmail  ResponseChannel = "email"
	ChannelSMS    ResponseChannel = "sms"
	ChannelLetter ResponseChannel = "letter"
	// ChannelNone means the record has no response configuration yet. Not an
	// error: the record simply cannot be pending an applicant answer.
	ChannelNone ResponseChannel = "none"
)

// ThemeConfig exposes the theme-level facts the resolver and state machine
// consume read-only.
type ThemeConfig interface {
	// ValidationPlaceDays is the age threshold (days) after which a record
	// still pending validation opens up to ambit-wide reassignment.
	ValidationPlaceDays(ctx context.Context, themeID string) (int, error)
	// IsValidatedReassignable reports whether records of this theme stay
	// freely reassignable before validation.
	IsValidatedReassignable(ctx context.Context, themeID string) (bool, error)
}

// ResponseChannels resolves the configured answer channel for a record.
// Implementations return ChannelNone, not an error, for records lacking a
// response configuration.
type ResponseChannels interface {
	ResponseChannelOf(ctx context.Context, recordID uuid.UUID) (ResponseChannel, error)
}

// StaticThemes is a fixed in-memory ThemeConfig for tests and development.
type StaticThemes struct {
	PlaceDays    map[string]int
	Reassignable map[string]bool
	DefaultDays  int
}

func (s *StaticThemes) ValidationPlaceDays(ctx context.Context, themeID string) (int, error) {
	if d, ok := s.PlaceDays[themeID]; ok {
		return d, nil
	}
	return s.DefaultDays, nil
}

func (s *StaticThemes) IsValidatedReassignable(ctx context.Context, themeID string) (bool, error) {
	return s.Reassignable[themeID], nil
}

// StaticChannels is a fixed in-memory ResponseChannels for tests and
// development.
type StaticChannels struct {
	Channels map[uuid.UUID]ResponseChannel
}

func (s *StaticChannels) ResponseChannelOf(ctx context.Context, recordID uuid.UUID) (ResponseChannel, error) {
	if c, ok := s.Channels[recordID]; ok {
		return c, nil
	}
	return ChannelNone, nil
}
