package fetch

import "crypto/tls"

// tlsConfig builds a TLS config honoring the validate_cert option;
// verification is off by default.
func tlsConfig(validate bool) *tls.Config {
	return &tls.Config{InsecureSkipVerify: !validate}
}
