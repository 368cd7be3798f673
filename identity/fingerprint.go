package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"watchfront/models"
)

var (
	multiSpaceRegex = regexp.MustCompile(`\s+`)
	nonAlnumRegex   = regexp.MustCompile(`[^a-z0-9\s]`)
	// marketplace listing ids embedded in item URLs, e.g. /itm/123456789
	itemURLRegex = regexp.MustCompile(`/itm/(?:[^/?#]+/)?(\d{6,})`)
)

// ListingKey identifies a listing for deduplication. The provider id wins;
// otherwise the id embedded in the external URL; otherwise a fingerprint of
// the normalized content.
func ListingKey(l *models.Listing) string {
	if id := strings.TrimSpace(l.ID); id != "" {
		return "id:" + id
	}
	if id := ItemIDFromURL(l.ExternalURL); id != "" {
		return "id:" + id
	}
	return "fp:" + Fingerprint(l)
}

// ItemIDFromURL extracts the numeric item id from a listing URL.
func ItemIDFromURL(u string) string {
	m := itemURLRegex.FindStringSubmatch(u)
	if m == nil {
		return ""
	}
	return m[1]
}

func Fingerprint(l *models.Listing) string {
	input := fmt.Sprintf("%s|%s|%s",
		NormalizeTitle(l.Title),
		strings.TrimSpace(l.Price.Amount),
		strings.ToUpper(strings.TrimSpace(l.Price.Currency)),
	)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:16])
}

func NormalizeTitle(title string) string {
	title = strings.ToLower(strings.TrimSpace(title))
	title = nonAlnumRegex.ReplaceAllString(title, " ")
	title = multiSpaceRegex.ReplaceAllString(title, " ")
	return strings.TrimSpace(title)
}
