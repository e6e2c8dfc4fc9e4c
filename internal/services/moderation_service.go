package services

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxDisplayNameLength = 50
	maxRepeatedRune      = 3
	maxShoutedWords      = 2
)

var BannedWords = []string{
	"fuck", "fucking", "fucker", "shit", "shitty", "bullshit",
	"ass", "asshole", "bastard", "bitch", "cunt",
	"nigger", "nigga", "chink", "spic", "kike", "faggot", "fag",
	"retard", "retarded", "tranny",
	"porn", "porno", "nude", "nudes",
	"spam", "scam", "scammer", "phishing", "malware",
}

// Rejection reasons returned by FilterContent.
const (
	ReasonLanguage     = "inappropriate_language"
	ReasonURL          = "url_not_allowed"
	ReasonContactInfo  = "contact_info_not_allowed"
	ReasonSpam         = "spam_detected"
	ReasonExcessCaps   = "excessive_caps"
	ReasonTooLong      = "too_long"
	defaultRejectedMsg = "Display name does not meet our content guidelines."
)

var rejectionMessages = map[string]string{
	ReasonLanguage:    "Display name contains inappropriate language.",
	ReasonURL:         "URLs and web links are not allowed.",
	ReasonContactInfo: "Contact information is not allowed.",
	ReasonSpam:        "Display name appears to be spam.",
	ReasonExcessCaps:  "Please avoid using excessive capital letters.",
	ReasonTooLong:     fmt.Sprintf("Display name must be at most %d characters.", maxDisplayNameLength),
}

// ModerationService screens user-supplied profile text. Display names are
// shown on the leaderboard and on every pass, so they get the same filter
// as any other public content. It is immutable after construction and safe
// for concurrent use.
type ModerationService struct {
	banned  *regexp.Regexp
	url     *regexp.Regexp
	email   *regexp.Regexp
	phone   *regexp.Regexp
	shouted *regexp.Regexp
}

func NewModerationService() *ModerationService {
	quoted := make([]string, len(BannedWords))
	for i, w := range BannedWords {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return &ModerationService{
		banned:  regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`),
		url:     regexp.MustCompile(`(?i)(https?://\S+|www\.\S+\.\S+)`),
		email:   regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`),
		phone:   regexp.MustCompile(`\d{3}[-.\s]?\d{3}[-.\s]?\d{4}|\(\d{3}\)\s*\d{3}[-.\s]?\d{4}`),
		shouted: regexp.MustCompile(`[A-Z]{5,}`),
	}
}

// FilterContent reports whether text is acceptable and, if not, a reason code.
func (ms *ModerationService) FilterContent(text string) (bool, string) {
	switch {
	case text == "":
		return true, ""
	case ms.banned.MatchString(text):
		return false, ReasonLanguage
	case ms.url.MatchString(text):
		return false, ReasonURL
	case ms.email.MatchString(text), ms.phone.MatchString(text):
		return false, ReasonContactInfo
	case longestRun(text) > maxRepeatedRune:
		return false, ReasonSpam
	case len(ms.shouted.FindAllString(text, -1)) > maxShoutedWords:
		return false, ReasonExcessCaps
	}
	return true, ""
}

func (ms *ModerationService) ContainsProfanity(text string) bool {
	return ms.banned.MatchString(text)
}

func (ms *ModerationService) GetRejectionMessage(reason string) string {
	if msg, ok := rejectionMessages[reason]; ok {
		return msg
	}
	return defaultRejectedMsg
}

// CheckDisplayName returns the trimmed name, or an error wrapping
// ErrContentRejected with a user-facing explanation.
func (ms *ModerationService) CheckDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > maxDisplayNameLength {
		return "", fmt.Errorf("%w: %s", ErrContentRejected, ms.GetRejectionMessage(ReasonTooLong))
	}
	if ok, reason := ms.FilterContent(name); !ok {
		return "", fmt.Errorf("%w: %s", ErrContentRejected, ms.GetRejectionMessage(reason))
	}
	return name, nil
}

// longestRun returns the longest run of one letter or punctuation mark,
// case-insensitively. Digits and spaces do not count.
func longestRun(text string) int {
	longest, run := 0, 0
	var prev rune
	for _, r := range text {
		r = unicode.ToLower(r)
		if r == prev && (unicode.IsLetter(r) || unicode.IsPunct(r)) {
			run++
		} else {
			run = 1
		}
		prev = r
		if run > longest {
			longest = run
		}
	}
	return longest
}
