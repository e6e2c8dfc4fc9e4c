package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Kind groups sentinel errors by how callers should react to them.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindStateConflict
	KindRateLimited
	KindNotFound
	KindForbidden
	KindUnauthorized
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStateConflict:
		return "state_conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindUnauthorized:
		return "unauthorized"
	case KindTransient:
		return "transient"
	}
	return "unknown"
}

var (
	// Validation
	ErrSelfAction         = errors.New("cannot target yourself")
	ErrInvalidKind        = errors.New("pass kind must be meet, call or chat")
	ErrInvalidScore       = errors.New("score must be an integer between 1 and 5")
	ErrInvalidLocation    = errors.New("latitude must be within [-90, 90] and longitude within [-180, 180]")
	ErrInvalidUsername    = errors.New("username must be 3-20 characters of a-z, 0-9 or _")
	ErrInvalidEmail       = errors.New("a valid email is required")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrPasswordRequired   = errors.New("password is required")
	ErrInvalidScanCode    = errors.New("scanned code is not a valid user code")
	ErrContentRejected    = errors.New("display name does not meet content guidelines")
	ErrInvalidContentType = errors.New("avatar must be a jpeg, png or webp image")
	ErrAvatarTooLarge     = errors.New("avatar exceeds the maximum upload size")
	ErrInvalidAvatarURI   = errors.New("avatar_uri must be an http(s) URL")

	// State conflicts
	ErrDuplicateConnection = errors.New("a connection already exists for this pair")
	ErrDuplicateRating     = errors.New("rating already submitted for this pass")
	ErrInvalidState        = errors.New("operation not allowed in the current state")
	ErrAlreadyBlocked      = errors.New("a block exists between these users")
	ErrBlocked             = errors.New("users have blocked each other")
	ErrNotConnected        = errors.New("users are not connected")
	ErrNotNearby           = errors.New("users are not nearby")
	ErrInvalidPass         = errors.New("pass is not valid for this rating")
	ErrUsernameTaken       = errors.New("username already taken")
	ErrEmailTaken          = errors.New("email already registered")

	ErrRateLimited = errors.New("too many passes for this pair")

	// Not found
	ErrUserNotFound       = errors.New("user not found")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrPassNotFound       = errors.New("pass not found")

	ErrForbidden = errors.New("not allowed to act on this resource")

	// Auth
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired refresh token")

	// Transient
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrAvatarUnavailable = errors.New("avatar uploads are not configured")
)

var catalog = []struct {
	err  error
	kind Kind
	code string
}{
	{ErrSelfAction, KindValidation, "self_action"},
	{ErrInvalidKind, KindValidation, "invalid_kind"},
	{ErrInvalidScore, KindValidation, "invalid_score"},
	{ErrInvalidLocation, KindValidation, "invalid_location"},
	{ErrInvalidUsername, KindValidation, "invalid_username"},
	{ErrInvalidEmail, KindValidation, "invalid_email"},
	{ErrWeakPassword, KindValidation, "weak_password"},
	{ErrPasswordRequired, KindValidation, "password_required"},
	{ErrInvalidScanCode, KindValidation, "invalid_scan_code"},
	{ErrContentRejected, KindValidation, "content_rejected"},
	{ErrInvalidContentType, KindValidation, "invalid_content_type"},
	{ErrAvatarTooLarge, KindValidation, "avatar_too_large"},
	{ErrInvalidAvatarURI, KindValidation, "invalid_avatar_uri"},

	{ErrDuplicateConnection, KindStateConflict, "duplicate_connection"},
	{ErrDuplicateRating, KindStateConflict, "duplicate_rating"},
	{ErrInvalidState, KindStateConflict, "invalid_state"},
	{ErrAlreadyBlocked, KindStateConflict, "already_blocked"},
	{ErrBlocked, KindStateConflict, "blocked"},
	{ErrNotConnected, KindStateConflict, "not_connected"},
	{ErrNotNearby, KindStateConflict, "not_nearby"},
	{ErrInvalidPass, KindStateConflict, "invalid_pass"},
	{ErrUsernameTaken, KindStateConflict, "username_taken"},
	{ErrEmailTaken, KindStateConflict, "email_taken"},

	{ErrRateLimited, KindRateLimited, "rate_limited"},

	{ErrUserNotFound, KindNotFound, "user_not_found"},
	{ErrConnectionNotFound, KindNotFound, "connection_not_found"},
	{ErrPassNotFound, KindNotFound, "pass_not_found"},

	{ErrForbidden, KindForbidden, "forbidden"},

	{ErrInvalidCredentials, KindUnauthorized, "invalid_credentials"},
	{ErrInvalidToken, KindUnauthorized, "invalid_token"},

	{ErrStoreUnavailable, KindTransient, "store_unavailable"},
	{ErrAvatarUnavailable, KindTransient, "avatar_unavailable"},
}

// KindOf classifies err. Errors outside the catalog are KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, entry := range catalog {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindUnknown
}

// CodeOf returns the stable machine-readable code for err, or "internal".
func CodeOf(err error) string {
	for _, entry := range catalog {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return "internal"
}

// RateLimitError is returned when a pair has exhausted its proximity pass
// budget. RetryAfter is how long until the oldest pass in the window ages out.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// storeErr marks a failed store call as transient while keeping the cause.
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
