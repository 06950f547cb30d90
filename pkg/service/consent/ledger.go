// Package consent gates memory writes on the user's recorded authorization.
package consent

import (
	"context"
	"errors"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemos/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemos/pkg/domain/model"
	"github.com/secmon-lab/mnemos/pkg/domain/types"
)

// Ledger answers whether a user has granted consent sufficient for storing a
// given memory category. Consent versions are compared as semantic versions:
// a record counts only when its version is at or above the required one.
type Ledger struct {
	repo     interfaces.ConsentRepository
	table    *model.RetentionTable
	required *semver.Version
	now      func() time.Time
}

// Option configures the Ledger
type Option func(*Ledger)

// WithClock replaces the wall clock, for tests
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// New builds a Ledger. requiredVersion is the minimum consent policy version
// that counts as valid, e.g. "1.0.0".
func New(repo interfaces.ConsentRepository, table *model.RetentionTable, requiredVersion string, opts ...Option) (*Ledger, error) {
	required, err := semver.NewVersion(requiredVersion)
	if err != nil {
		return nil, goerr.Wrap(model.ErrInvalidInput, "required consent version must be a semantic version",
			goerr.V("requiredVersion", requiredVersion),
		)
	}

	l := &Ledger{
		repo:     repo,
		table:    table,
		required: required,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Record validates and stores a consent record. A zero ConsentDate is stamped
// with the current time. Last write wins.
func (l *Ledger) Record(ctx context.Context, rec *model.ConsentRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	stored := rec.Clone()
	if stored.ConsentDate.IsZero() {
		stored.ConsentDate = l.now()
	}

	if err := l.repo.Put(ctx, stored); err != nil {
		return goerr.Wrap(err, "failed to record consent", goerr.V(model.UserIDKey, rec.UserID))
	}
	return nil
}

// Revoke replaces the user's record with one that withdraws all consent.
// Revoking a user who never consented is a no-op that still writes the
// revocation, so later audits see an explicit denial.
func (l *Ledger) Revoke(ctx context.Context, userID string) error {
	if userID == "" {
		return goerr.Wrap(model.ErrInvalidInput, "revoke requires a user ID")
	}

	rec := &model.ConsentRecord{
		UserID:         userID,
		ConsentGiven:   false,
		ConsentDate:    l.now(),
		ConsentVersion: l.required.String(),
	}
	if err := l.repo.Put(ctx, rec); err != nil {
		return goerr.Wrap(err, "failed to revoke consent", goerr.V(model.UserIDKey, userID))
	}
	return nil
}

// Get returns the user's current consent record
func (l *Ledger) Get(ctx context.Context, userID string) (*model.ConsentRecord, error) {
	rec, err := l.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Check verifies that storing an item of the given category for the user is
// permitted. Categories that do not require consent always pass. A missing
// record, a revoked record, an outdated consent version, or missing retention
// consent all yield model.ErrConsentRequired. The per-purpose flags are not
// consulted here; they gate their own features (see AllowsPersonalization).
func (l *Ledger) Check(ctx context.Context, userID string, category types.Category) error {
	if !l.table.RequiresConsent(category) {
		return nil
	}

	if userID == "" {
		return goerr.Wrap(model.ErrConsentRequired, "category requires consent but no user is identified",
			goerr.V(model.CategoryKey, category),
		)
	}

	rec, err := l.repo.Get(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return goerr.Wrap(model.ErrConsentRequired, "no consent record for user",
				goerr.V(model.UserIDKey, userID),
				goerr.V(model.CategoryKey, category),
			)
		}
		return goerr.Wrap(err, "failed to look up consent", goerr.V(model.UserIDKey, userID))
	}

	if !rec.ConsentGiven {
		return goerr.Wrap(model.ErrConsentRequired, "consent has been withheld or revoked",
			goerr.V(model.UserIDKey, userID),
			goerr.V(model.CategoryKey, category),
		)
	}

	given, err := semver.NewVersion(rec.ConsentVersion)
	if err != nil || given.LessThan(l.required) {
		return goerr.Wrap(model.ErrConsentRequired, "consent was given under an outdated policy version",
			goerr.V(model.UserIDKey, userID),
			goerr.V("consentVersion", rec.ConsentVersion),
			goerr.V("requiredVersion", l.required.String()),
		)
	}

	// Every consent-gated category (per the retention table, including file
	// overrides) additionally needs explicit retention consent.
	if !rec.RetentionConsent {
		return goerr.Wrap(model.ErrConsentRequired, "user has not consented to long-term retention",
			goerr.V(model.UserIDKey, userID),
			goerr.V(model.CategoryKey, category),
		)
	}

	return nil
}

// HasValid reports whether storing the category for the user is permitted.
// Boolean form of Check; repository failures are returned as errors.
func (l *Ledger) HasValid(ctx context.Context, userID string, category types.Category) (bool, error) {
	err := l.Check(ctx, userID, category)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, model.ErrConsentRequired) {
		return false, nil
	}
	return false, err
}

// AllowsPersonalization reports whether the user consented to personalized
// responses. Missing records count as no.
func (l *Ledger) AllowsPersonalization(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	rec, err := l.repo.Get(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, goerr.Wrap(err, "failed to look up consent", goerr.V(model.UserIDKey, userID))
	}
	return rec.ConsentGiven && rec.PersonalizedResponses, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
