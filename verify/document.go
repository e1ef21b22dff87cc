package verify

import (
	"strconv"
	"strings"
	"time"

	"github.com/digitorus/pdf"

	"github.com/vaultstamp/tspdf/common"
)

// parseDocumentInfo parses document information from the PDF trailer's
// /Info dictionary. Every entry is optional per the PDF spec, so each
// field is only overwritten when the dictionary actually carries it.
func parseDocumentInfo(v pdf.Value, documentInfo *common.DocumentInfo) {
	if val := v.Key("Author"); !val.IsNull() {
		documentInfo.Author = val.Text()
	}
	if val := v.Key("Creator"); !val.IsNull() {
		documentInfo.Creator = val.Text()
	}
	if val := v.Key("Hash"); !val.IsNull() {
		documentInfo.Hash = val.Text()
	}
	if val := v.Key("Name"); !val.IsNull() {
		documentInfo.Name = val.Text()
	}
	if val := v.Key("Permission"); !val.IsNull() {
		documentInfo.Permission = val.Text()
	}
	if val := v.Key("Producer"); !val.IsNull() {
		documentInfo.Producer = val.Text()
	}
	if val := v.Key("Subject"); !val.IsNull() {
		documentInfo.Subject = val.Text()
	}
	if val := v.Key("Title"); !val.IsNull() {
		documentInfo.Title = val.Text()
	}
	if val := v.Key("CreationDate"); !val.IsNull() {
		if t, err := parseDate(val.Text()); err == nil {
			documentInfo.CreationDate = t
		}
	}
	if val := v.Key("ModDate"); !val.IsNull() {
		if t, err := parseDate(val.Text()); err == nil {
			documentInfo.ModDate = t
		}
	}
	if val := v.Key("Pages"); !val.IsNull() {
		if i, err := strconv.Atoi(val.Text()); err == nil {
			documentInfo.Pages = i
		}
	}
	if val := v.Key("Keywords"); !val.IsNull() {
		documentInfo.Keywords = parseKeywords(val.Text())
	}
}

// parseDate parses PDF formatted dates.
func parseDate(v string) (time.Time, error) {
	// PDF Date Format
	// (D:YYYYMMDDHHmmSSOHH'mm')
	//
	// where
	//
	// YYYY is the year
	// MM is the month
	// DD is the day (01-31)
	// HH is the hour (00-23)
	// mm is the minute (00-59)
	// SS is the second (00-59)
	// O is the relationship of local time to Universal Time (UT), denoted by one of the characters +, -, or Z (see below)
	// HH followed by ' is the absolute value of the offset from UT in hours (00-23)
	// mm followed by ' is the absolute value of the offset from UT in minutes (00-59)

	// 2006-01-02T15:04:05Z07:00
	// (D:YYYYMMDDHHmmSSOHH'mm')
	s := strings.ReplaceAll(v, "'", "")
	if i := strings.IndexByte(s, 'Z'); i >= 0 {
		s = s[:i+1]
	} else if i := strings.LastIndexAny(s, "+-"); i >= 0 && len(s)-i == 3 {
		s += "00"
	}
	return time.Parse("D:20060102150405Z0700", s)
}

// parseKeywords parses keywords PDF metadata.
func parseKeywords(value string) []string {
	// keywords must be separated by commas or semicolons or could be just separated with spaces, after the semicolon could be a space
	// https://stackoverflow.com/questions/44608608/the-separator-between-keywords-in-pdf-meta-data
	separators := []string{", ", ": ", ",", ":", " ", "; ", ";", " ;"}
	for _, s := range separators {
		if strings.Contains(value, s) {
			return strings.Split(value, s)
		}
	}

	return []string{value}
}
