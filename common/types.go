// Package common holds the result types shared between the extraction
// and verification surfaces: document metadata, per-timestamp summary
// records, and per-certificate revocation evidence. They carry no
// behavior so that CLI and library consumers can marshal them straight
// to JSON.
package common

import (
	"crypto/x509"
	"time"

	"github.com/digitorus/timestamp"
	"golang.org/x/crypto/ocsp"
)

// DocumentInfo is the PDF trailer /Info dictionary, decoded. Every entry
// is optional in the PDF spec, so zero values mean "absent".
type DocumentInfo struct {
	Author   string `json:"author,omitempty"`
	Creator  string `json:"creator,omitempty"`
	Producer string `json:"producer,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Title    string `json:"title,omitempty"`
	Name     string `json:"name,omitempty"`

	Permission string `json:"permission,omitempty"`
	Hash       string `json:"hash,omitempty"`

	Pages        int       `json:"pages,omitempty"`
	Keywords     []string  `json:"keywords,omitempty"`
	ModDate      time.Time `json:"mod_date,omitzero"`
	CreationDate time.Time `json:"creation_date,omitzero"`
}

// SignatureInfo summarizes one document timestamp field: the dictionary
// metadata entries, the parsed token, and whether the ByteRange still
// reaches the end of the file (false once later revisions were appended
// on top of it).
type SignatureInfo struct {
	Name        string `json:"name,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Location    string `json:"location,omitempty"`
	ContactInfo string `json:"contact_info,omitempty"`

	// SignatureTime is the dictionary's /M entry. For a document
	// timestamp it is informational only; the authoritative time is the
	// token's genTime.
	SignatureTime *time.Time `json:"signature_time,omitempty"`

	TimeStamp           *timestamp.Timestamp `json:"time_stamp,omitempty"`
	CoversWholeDocument bool                 `json:"covers_whole_document"`
}

// Certificate is the verification record for one certificate in a TSA
// chain: chain-building outcome, key usage checks, and whatever
// revocation evidence (embedded in the token, found in the DSS, or
// fetched live) applied to it.
type Certificate struct {
	Certificate *x509.Certificate `json:"-"`

	VerifyError      string `json:"verify_error,omitempty"`
	KeyUsageValid    bool   `json:"key_usage_valid"`
	KeyUsageError    string `json:"key_usage_error,omitempty"`
	ExtKeyUsageValid bool   `json:"ext_key_usage_valid"`
	ExtKeyUsageError string `json:"ext_key_usage_error,omitempty"`

	OCSPResponse *ocsp.Response `json:"-"`
	OCSPEmbedded bool           `json:"ocsp_embedded"`
	OCSPExternal bool           `json:"ocsp_external"`
	CRLEmbedded  bool           `json:"crl_embedded"`
	CRLExternal  bool           `json:"crl_external"`

	RevocationWarning string     `json:"revocation_warning,omitempty"`
	RevocationTime    *time.Time `json:"revocation_time,omitempty"`

	// RevokedBeforeTimestamp is set when the revocation moment precedes
	// the token's genTime, which is the only case that invalidates an
	// already-issued document timestamp.
	RevokedBeforeTimestamp bool `json:"revoked_before_timestamp"`
}
