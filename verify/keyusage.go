package verify

import (
	"crypto/x509"
)

// validateKeyUsage validates a TSA certificate's Key Usage and Extended Key
// Usage bits against RFC 3161 section 2.3, which requires
// id-kp-timeStamping and that it be the certificate's only Extended Key
// Usage.
func validateKeyUsage(cert *x509.Certificate, options *VerifyOptions) (kuValid bool, kuError string, ekuValid bool, ekuError string) {
	// Validate Key Usage - start with valid assumption
	kuValid = true

	// Check Digital Signature bit in Key Usage
	if options.RequireDigitalSignatureKU && (cert.KeyUsage&x509.KeyUsageDigitalSignature) == 0 {
		kuValid = false
		kuError = "certificate does not have Digital Signature key usage"
	}

	// Check for Non-Repudiation (Content Commitment) if required
	if options.RequireNonRepudiation && (cert.KeyUsage&x509.KeyUsageContentCommitment) == 0 {
		kuValid = false
		if kuError != "" {
			kuError += "; certificate does not have Non-Repudiation key usage"
		} else {
			kuError = "certificate does not have Non-Repudiation key usage"
		}
	}

	// Validate Extended Key Usage
	if len(cert.ExtKeyUsage) == 0 {
		ekuValid = false
		ekuError = "certificate has no Extended Key Usage extension"
		return
	}

	// Check if any required EKUs are present (default: id-kp-timeStamping)
	required := options.RequiredEKUs
	if len(required) == 0 {
		required = getVerificationEKUs()
	}
	hasRequiredEKU := false
	hasOtherEKU := false
	for _, certEKU := range cert.ExtKeyUsage {
		matched := false
		for _, requiredEKU := range required {
			if certEKU == requiredEKU {
				hasRequiredEKU = true
				matched = true
				break
			}
		}
		if !matched {
			hasOtherEKU = true
		}
	}

	// Check if any allowed EKUs are present (fallback)
	hasAllowedEKU := false
	if len(options.AllowedEKUs) > 0 {
		for _, allowedEKU := range options.AllowedEKUs {
			for _, certEKU := range cert.ExtKeyUsage {
				if certEKU == allowedEKU {
					hasAllowedEKU = true
					break
				}
			}
			if hasAllowedEKU {
				break
			}
		}
	}

	// Determine EKU validity
	switch {
	case hasRequiredEKU && !hasOtherEKU:
		// Exactly id-kp-timeStamping (and nothing else) - RFC 3161 section 2.3 compliant.
		ekuValid = true
	case hasRequiredEKU && hasOtherEKU:
		// Has timeStamping but also other EKUs - tolerated but non-conformant.
		ekuValid = true
		ekuError = "certificate has Extended Key Usages in addition to id-kp-timeStamping; RFC 3161 section 2.3 requires it to be the only one"
	case hasAllowedEKU:
		// Has an explicitly allowed alternative EKU but not timeStamping itself.
		ekuValid = true
		if len(options.RequiredEKUs) > 0 {
			ekuError = "certificate uses acceptable but not preferred Extended Key Usage"
		}
	default:
		ekuValid = false
		ekuError = "certificate does not have the id-kp-timeStamping Extended Key Usage required for a TSA certificate"
	}

	return
}

// getVerificationEKUs returns the Extended Key Usage a TSA signing
// certificate must carry: id-kp-timeStamping (1.3.6.1.5.5.7.3.8), per
// RFC 3161 section 2.3. Unlike a generic PDF-signing certificate, no
// email-protection or client-auth fallback applies here - those EKUs
// have no meaning for a timestamping authority.
func getVerificationEKUs() []x509.ExtKeyUsage {
	return []x509.ExtKeyUsage{x509.ExtKeyUsageTimeStamping}
}
