package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"strings"
)

// Gateway parameter names. The provider may echo arbitrary extra pay_*
// fields; everything except the signature pair is part of the signed string.
const (
	ParamVersion        = "pay_Version"
	ParamCommand        = "pay_Command"
	ParamTmnCode        = "pay_TmnCode"
	ParamCurrCode       = "pay_CurrCode"
	ParamTxnRef         = "pay_TxnRef"
	ParamOrderInfo      = "pay_OrderInfo"
	ParamAmount         = "pay_Amount"
	ParamReturnURL      = "pay_ReturnUrl"
	ParamIPAddr         = "pay_IpAddr"
	ParamCreateDate     = "pay_CreateDate"
	ParamBankCode       = "pay_BankCode"
	ParamResponseCode   = "pay_ResponseCode"
	ParamSecureHash     = "pay_SecureHash"
	ParamSecureHashType = "pay_SecureHashType"
)

// Signer computes the keyed hash the gateway requires: HMAC-SHA512 over the
// URL-encoded, lexicographically key-sorted parameter string.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) Signer {
	return Signer{secret: []byte(secret)}
}

// Sign hashes the given params. The signature fields themselves are always
// excluded from the signed payload.
func (s Signer) Sign(params url.Values) string {
	clean := cloneWithoutHash(params)
	mac := hmac.New(sha512.New, s.secret)
	mac.Write([]byte(clean.Encode())) // Encode sorts keys
	return hex.EncodeToString(mac.Sum(nil))
}

// SignedQuery returns the full query string with the signature appended.
func (s Signer) SignedQuery(params url.Values) string {
	return params.Encode() + "&" + ParamSecureHash + "=" + s.Sign(params)
}

// Verify re-signs the provider-echoed params (minus the signature pair) and
// compares against the provided hash. HMAC output is fixed-length hex, so a
// case-folded exact comparison is sufficient.
func (s Signer) Verify(params url.Values) bool {
	provided := params.Get(ParamSecureHash)
	if provided == "" {
		return false
	}
	expected := s.Sign(params)
	return hmac.Equal([]byte(strings.ToLower(provided)), []byte(expected))
}

func cloneWithoutHash(params url.Values) url.Values {
	clean := url.Values{}
	for k, vs := range params {
		if k == ParamSecureHash || k == ParamSecureHashType {
			continue
		}
		for _, v := range vs {
			clean.Add(k, v)
		}
	}
	return clean
}
