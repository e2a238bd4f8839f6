package credential

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/xraph/gateway/id"
	"github.com/xraph/gateway/internal/entity"
)

// Service issues, rotates, and verifies credentials. Consumers never see
// stored hashes; they only get a pass/fail verification result plus the
// granted scopes.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new credential service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Issued is the result of issuing a credential. Secret is the plaintext,
// available only here; it is never persisted or retrievable again.
type Issued struct {
	Credential *Credential
	Secret     string
}

// Issue creates a new active credential for a (partner, purpose) pair and
// returns the plaintext secret exactly once.
func (svc *Service) Issue(ctx context.Context, partnerID id.ID, purpose Purpose, scopes []string, expiresAt *time.Time) (*Issued, error) {
	if purpose == "" {
		purpose = PurposeAPI
	}

	secret := GenerateSecret()
	c := &Credential{
		Entity:     entity.New(),
		ID:         id.NewCredentialID(),
		PartnerID:  partnerID,
		Purpose:    purpose,
		SecretHash: HashSecret(secret),
		Scopes:     scopes,
		ExpiresAt:  expiresAt,
		Active:     true,
	}

	if err := svc.store.CreateCredential(ctx, c); err != nil {
		return nil, err
	}

	return &Issued{Credential: c, Secret: secret}, nil
}

// Verify checks a presented secret against the active credential for the
// (partner, purpose) pair. On success it stamps the last-used timestamp and
// returns the granted scopes. Every failure mode returns ErrUnauthorized.
func (svc *Service) Verify(ctx context.Context, partnerID id.ID, presented string, purpose Purpose) ([]string, error) {
	if purpose == "" {
		purpose = PurposeAPI
	}

	c, err := svc.store.GetActiveCredential(ctx, partnerID, purpose)
	if err != nil {
		// Not-found folds into the generic failure; anything else is a
		// store problem the caller should see.
		return nil, ErrUnauthorized
	}

	now := time.Now().UTC()
	if c.Expired(now) {
		return nil, ErrUnauthorized
	}

	if !hashMatches(c.SecretHash, presented) {
		return nil, ErrUnauthorized
	}

	if touchErr := svc.store.TouchCredential(ctx, c.ID, now); touchErr != nil {
		// Verification already succeeded; a failed timestamp update is not
		// grounds to reject the caller.
		svc.logger.WarnContext(ctx, "touch credential failed",
			"credential_id", c.ID, "error", touchErr)
	}

	return c.Scopes, nil
}

// Rotate deactivates the current credential for a (partner, purpose) pair and
// issues a replacement carrying the same scopes and expiry. The new plaintext
// secret is returned exactly once. When issuing the replacement fails, the
// old credential is restored so the partner is never left locked out.
func (svc *Service) Rotate(ctx context.Context, partnerID id.ID, purpose Purpose) (*Issued, error) {
	if purpose == "" {
		purpose = PurposeAPI
	}

	var scopes []string
	var expiresAt *time.Time
	var previous *Credential
	if current, err := svc.store.GetActiveCredential(ctx, partnerID, purpose); err == nil {
		scopes = current.Scopes
		expiresAt = current.ExpiresAt
		if deactivateErr := svc.store.DeactivateCredential(ctx, current.ID); deactivateErr != nil {
			return nil, deactivateErr
		}
		previous = current
	}

	issued, err := svc.Issue(ctx, partnerID, purpose, scopes, expiresAt)
	if err != nil {
		if previous != nil {
			if restoreErr := svc.store.ReactivateCredential(ctx, previous.ID); restoreErr != nil {
				svc.logger.ErrorContext(ctx, "restore credential after failed rotation",
					"credential_id", previous.ID, "error", restoreErr)
			}
		}
		return nil, err
	}
	return issued, nil
}

// Revoke deactivates a credential by ID without issuing a replacement.
func (svc *Service) Revoke(ctx context.Context, credID id.ID) error {
	return svc.store.DeactivateCredential(ctx, credID)
}

// List returns all credentials for a partner, hashes included only in the
// struct's unexported-by-serialization field.
func (svc *Service) List(ctx context.Context, partnerID id.ID) ([]*Credential, error) {
	return svc.store.ListCredentials(ctx, partnerID)
}

// GenerateSecret creates a cryptographically random partner API secret.
// Format: "gwk_" + 32 bytes hex = 68 characters total.
func GenerateSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("credential: failed to generate random secret: " + err.Error())
	}
	return "gwk_" + hex.EncodeToString(b)
}

// HashSecret returns the hex-encoded SHA-256 digest of a secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// hashMatches compares a stored digest against the digest of a presented
// secret in constant time. Hashing first makes both operands fixed-length,
// so the comparison itself leaks nothing about the stored value.
func hashMatches(storedHash, presented string) bool {
	presentedHash := HashSecret(presented)
	return hmac.Equal([]byte(storedHash), []byte(presentedHash))
}
