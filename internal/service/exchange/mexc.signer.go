package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

const signatureParam = "sign"

// Params is the business and authentication parameter set of one signed call.
type Params map[string]string

// SignedRequest is built per call and never reused: each one carries its own req_time.
type SignedRequest struct {
	Params    Params
	Signature string
}

func NewSignedRequest(secret string, params Params) SignedRequest {
	return SignedRequest{
		Params:    params,
		Signature: Sign(secret, params),
	}
}

// Canonicalize serializes params as key=value pairs sorted by key and joined with '&'.
// Insertion order of the map never leaks into the output.
func Canonicalize(params Params) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	return strings.Join(pairs, "&")
}

// Sign returns the lowercase hex HMAC-SHA256 of the canonical form of params.
func Sign(secret string, params Params) string {
	return hmacSHA256Hex(secret, Canonicalize(params))
}

// Values returns the signed params plus the signature, ready for a query string or form body.
func (r SignedRequest) Values() url.Values {
	values := make(url.Values, len(r.Params)+1)
	for k, v := range r.Params {
		values.Set(k, v)
	}
	values.Set(signatureParam, r.Signature)

	return values
}

func hmacSHA256Hex(secret, payload string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
