package asn1ts

import (
	"encoding/asn1"
	"fmt"

	"github.com/vaultstamp/tspdf/internal/errs"
)

// ocspResponse is the outer OCSPResponse envelope: responseStatus plus an
// optional explicit [0] responseBytes. Decoding this ourselves (rather than
// leaving it entirely to golang.org/x/crypto/ocsp) lets us surface the exact
// RFC 6960 status name and code when a responder answers with anything
// other than "successful", before any BasicOCSPResponse parsing is
// attempted.
type ocspResponse struct {
	Status       asn1.Enumerated
	ResponseByte responseBytes `asn1:"explicit,tag:0,optional"`
}

type responseBytes struct {
	Type     asn1.ObjectIdentifier
	Response []byte
}

var ocspStatusNames = map[int]string{
	0: "Successful",
	1: "Malformed Request",
	2: "Internal Error",
	3: "Try Later",
	5: "Sig Required",
	6: "Unauthorized",
}

// CheckOCSPResponseStatus decodes only the outer OCSPResponse.responseStatus
// field and returns an InvalidResponse error naming the status if it is not
// "successful" (0). It returns nil (and the caller proceeds to full
// BasicOCSPResponse parsing) on success.
func CheckOCSPResponseStatus(der []byte) error {
	var resp ocspResponse
	if _, err := asn1.Unmarshal(der, &resp); err != nil {
		return errs.Wrap(errs.InvalidResponse, "malformed OCSPResponse", err)
	}
	code := int(resp.Status)
	if code == 0 {
		return nil
	}
	name, ok := ocspStatusNames[code]
	if !ok {
		name = "Unknown"
	}
	return errs.New(errs.InvalidResponse, fmt.Sprintf("OCSP response status: %s (code: %d)", name, code))
}
