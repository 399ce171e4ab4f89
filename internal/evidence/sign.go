package evidence

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// signManifest HMACs the pre-signing manifest content, keyed by a
// run-local secret. No PKI signing library appears anywhere in the
// example pack; an HMAC reference is an accepted "signature" here — it
// proves the bundle was sealed with the run's key, not third-party
// non-repudiation.
func signManifest(key []byte, manifestDigest string) SignatureRef {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(manifestDigest))
	sig := hex.EncodeToString(mac.Sum(nil))

	return SignatureRef{
		Target:    "manifest.json",
		Digest:    manifestDigest,
		Algorithm: "HMAC-SHA256",
		Signature: sig,
	}
}

// verifySignature reports whether ref is a valid HMAC over manifestDigest
// under key.
func verifySignature(key []byte, manifestDigest string, ref SignatureRef) bool {
	if ref.Digest != manifestDigest {
		return false
	}
	want, err := hex.DecodeString(signManifest(key, manifestDigest).Signature)
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(ref.Signature)
	if err != nil {
		return false
	}
	return hmac.Equal(want, got)
}
