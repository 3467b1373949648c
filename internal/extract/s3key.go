package extract

import (
	"path"
	"regexp"
	"strings"

	"github.com/asiafilings/filing-etl-worker/internal/pagemodel"
)

var extensionRe = regexp.MustCompile(`(?i)\.(pdf|htm|html|doc|docx)$`)

// KeyMetadata is what the S3 key parser can recover before any
// manifest row or lookup metadata is merged on top of it.
type KeyMetadata struct {
	Exchange   string
	CompanyID  string
	FilingDate string
	SourceID   string
}

// ParseS3KeyMetadata implements the positional path-segment rules of
// SPEC_FULL.md §4.2, grounded on original_source/extractor.py's
// parse_s3_key_metadata.
func ParseS3KeyMetadata(key string) KeyMetadata {
	stripped := extensionRe.ReplaceAllString(key, "")
	parts := strings.Split(stripped, "/")

	var km KeyMetadata
	switch {
	case len(parts) >= 6:
		n := len(parts)
		km.Exchange = strings.ToUpper(parts[n-6])
		km.CompanyID = parts[n-5]
		y, m, d := parts[n-4], parts[n-3], parts[n-2]
		if isNumeric(y) && isNumeric(m) && isNumeric(d) {
			km.FilingDate = y + "-" + m + "-" + d
		}
		km.SourceID = parts[n-1]
	case len(parts) >= 3:
		n := len(parts)
		km.Exchange = strings.ToUpper(parts[n-3])
		km.CompanyID = parts[n-2]
		km.SourceID = parts[n-1]
	case len(parts) >= 1:
		km.SourceID = parts[len(parts)-1]
	}
	return km
}

// ToMetadata projects the key-derived fields into the shared Metadata
// shape (company_id and filing_date; exchange/source_id are carried
// separately as they aren't PageRecord "metadata fields" proper).
func (km KeyMetadata) ToMetadata() pagemodel.Metadata {
	return pagemodel.Metadata{CompanyID: km.CompanyID, FilingDate: km.FilingDate}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// SourceIDFromKey derives the stable source_id from an object key: the
// basename with its extension stripped and any trailing '.' trimmed,
// matching Path(key).stem.rstrip('.') in original_source/main.py.
func SourceIDFromKey(key string) string {
	base := path.Base(key)
	ext := path.Ext(base)
	if ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return strings.TrimRight(base, ".")
}
