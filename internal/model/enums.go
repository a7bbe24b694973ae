package model

import (
	"fmt"
	"strings"
)

// Category is a signal category scored by the post scorer.
type Category string

const (
	CategoryPayment     Category = "payment_offer"
	CategoryRecruitment Category = "recruitment_call"
	CategoryTask        Category = "intelligence_task"
	CategoryHandler     Category = "handler_signal"
	CategoryCrypto      Category = "crypto_payment"
	CategoryTarget      Category = "target_mention"
)

// ScoredCategories lists every category the scorer requires a weight and a
// pattern table for, in reporting order.
var ScoredCategories = []Category{
	CategoryPayment,
	CategoryRecruitment,
	CategoryTask,
	CategoryHandler,
	CategoryCrypto,
	CategoryTarget,
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ScoredCategories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown signal category %q", s)
}

// Severity is the discrete tier derived from a post score.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Strength grades a post→incident correlation.
type Strength string

const (
	StrengthHigh   Strength = "HIGH"
	StrengthMedium Strength = "MEDIUM"
)

// PredictionStatus says whether a prediction window is still open.
type PredictionStatus string

const (
	PredictionActive  PredictionStatus = "ACTIVE"
	PredictionExpired PredictionStatus = "EXPIRED"
)

// LocationKind classifies canonical locations. Window policy can be tuned
// per kind.
type LocationKind string

const (
	LocationAirport        LocationKind = "airport"
	LocationMilitary       LocationKind = "military"
	LocationNuclear        LocationKind = "nuclear"
	LocationPort           LocationKind = "port"
	LocationInfrastructure LocationKind = "infrastructure"
)

// ParseLocationKind validates a location kind.
func ParseLocationKind(s string) (LocationKind, error) {
	switch k := LocationKind(strings.ToLower(strings.TrimSpace(s))); k {
	case LocationAirport, LocationMilitary, LocationNuclear, LocationPort, LocationInfrastructure:
		return k, nil
	}
	return "", fmt.Errorf("unknown location kind %q", s)
}

// ChannelCategory is the derived classification of a monitored channel.
type ChannelCategory string

const (
	ChannelRecruitment ChannelCategory = "recruitment" // Openly hiring for tasks
	ChannelThreatActor ChannelCategory = "threat_actor"
	ChannelPropaganda  ChannelCategory = "propaganda"
	ChannelOSINT       ChannelCategory = "osint"
	ChannelNews        ChannelCategory = "news"
	ChannelUnknown     ChannelCategory = "unknown"
)

// ParseChannelCategory validates a channel category. The empty string maps
// to ChannelUnknown so collaborators may omit it.
func ParseChannelCategory(s string) (ChannelCategory, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ChannelUnknown, nil
	}
	switch c := ChannelCategory(s); c {
	case ChannelRecruitment, ChannelThreatActor, ChannelPropaganda, ChannelOSINT, ChannelNews, ChannelUnknown:
		return c, nil
	}
	return "", fmt.Errorf("unknown channel category %q", s)
}
