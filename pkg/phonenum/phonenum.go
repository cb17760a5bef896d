// Package phonenum normalizes WhatsApp-style remote identifiers into
// canonical phone digit strings.
package phonenum

import "strings"

const (
	SuffixUser   = "@s.whatsapp.net"
	SuffixLegacy = "@c.us"
	SuffixGroup  = "@g.us"
	SuffixLid    = "@lid"
)

// IsGroup reports whether the raw identifier addresses a group chat.
func IsGroup(raw string) bool {
	return strings.HasSuffix(raw, SuffixGroup)
}

// IsLid reports whether the raw identifier is an alternate (lid) identifier.
func IsLid(raw string) bool {
	return strings.HasSuffix(raw, SuffixLid)
}

// StripJID removes the channel suffix and the device segment from a raw
// identifier and keeps only digits. "5548912345678:12@s.whatsapp.net"
// becomes "5548912345678".
func StripJID(raw string) string {
	candidate := raw
	if idx := strings.Index(candidate, "@"); idx >= 0 {
		candidate = candidate[:idx]
	}
	if idx := strings.Index(candidate, ":"); idx >= 0 {
		candidate = candidate[:idx]
	}

	var digits strings.Builder
	for _, r := range candidate {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return digits.String()
}

// Normalize strips raw to digits and applies the Brazilian mobile numbering
// fix: numbers with country prefix 55 and 12 digits total predate the extra
// leading 9 on mobile numbers, so a 9 is inserted right after the 2-digit
// area code to produce the modern 13-digit form.
func Normalize(raw string) string {
	digits := StripJID(raw)
	if strings.HasPrefix(digits, "55") && len(digits) == 12 {
		return digits[:4] + "9" + digits[4:]
	}
	return digits
}

// Variants returns the set of phone forms a contact may be stored under:
// the canonical form plus the pre/post 9-insertion alternates for Brazilian
// numbers. Lookups should match any of them.
func Variants(canonical string) []string {
	variants := []string{canonical}
	if !strings.HasPrefix(canonical, "55") {
		return variants
	}
	switch len(canonical) {
	case 13:
		if canonical[4] == '9' {
			variants = append(variants, canonical[:4]+canonical[5:])
		}
	case 12:
		variants = append(variants, canonical[:4]+"9"+canonical[4:])
	}
	return variants
}
