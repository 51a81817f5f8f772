package core

import (
	"fmt"
	"regexp"

	"locker_siting/internal/domain/model"
)

// LockerClassifier tags an existing locker as own, competitor or
// uncategorized.
type LockerClassifier func(model.Locker) model.LockerClass

// lockerTextKeys are the free-text attributes inspected by the pattern
// classifier.
var lockerTextKeys = []string{"operator", "brand", "name"}

// NewPatternClassifier matches operator, brand and name case-insensitively
// against pattern. A locker with none of those attributes is uncategorized;
// one with text that does not match is a competitor.
func NewPatternClassifier(pattern string) (LockerClassifier, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("compile own-network pattern: %w", err)
	}
	return func(l model.Locker) model.LockerClass {
		hasText := false
		for _, key := range lockerTextKeys {
			v := l.Tags.Find(key)
			if v == "" {
				continue
			}
			hasText = true
			if re.MatchString(v) {
				return model.LockerOwn
			}
		}
		if !hasText {
			return model.LockerUncategorized
		}
		return model.LockerCompetitor
	}, nil
}

// PartitionLockers splits lockers by classifier. Uncategorized lockers are
// returned separately and take no part in scoring.
func PartitionLockers(lockers []model.Locker, classify LockerClassifier) (own, competitors, other []model.Locker) {
	for _, l := range lockers {
		switch classify(l) {
		case model.LockerOwn:
			own = append(own, l)
		case model.LockerCompetitor:
			competitors = append(competitors, l)
		default:
			other = append(other, l)
		}
	}
	return own, competitors, other
}
