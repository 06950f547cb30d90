package model

import (
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/m-mizutani/goerr/v2"
)

// ConsentRecord captures a user's versioned authorization for memory
// processing. One record per user, last write wins.
type ConsentRecord struct {
	UserID                string
	ConsentGiven          bool
	ConsentDate           time.Time
	ConsentVersion        string
	DataProcessing        bool
	PersonalizedResponses bool
	RetentionConsent      bool
}

// Validate checks the record for structural consistency. A record that
// revokes consent but keeps processing flags enabled is rejected as
// inconsistent.
func (r *ConsentRecord) Validate() error {
	if r.UserID == "" {
		return goerr.Wrap(ErrInvalidInput, "consent record requires a user ID")
	}
	if r.ConsentVersion == "" {
		return goerr.Wrap(ErrInvalidInput, "consent record requires a consent version",
			goerr.V("userID", r.UserID),
		)
	}
	if _, err := semver.NewVersion(r.ConsentVersion); err != nil {
		return goerr.Wrap(ErrInvalidInput, "consent version must be a semantic version",
			goerr.V("userID", r.UserID),
			goerr.V("consentVersion", r.ConsentVersion),
		)
	}
	if !r.ConsentGiven && (r.DataProcessing || r.PersonalizedResponses || r.RetentionConsent) {
		return goerr.Wrap(ErrInvalidInput, "consent record is inconsistent: consent not given but processing flags are set",
			goerr.V("userID", r.UserID),
		)
	}
	return nil
}

// Clone returns a copy of the record
func (r *ConsentRecord) Clone() *ConsentRecord {
	copied := *r
	return &copied
}
