package preflight

import (
	"golang.org/x/crypto/ssh"
)

// validateSSHKeyMaterial performs a structural parse of inline SSH key
// material supplied for a target. It does not attempt to establish any SSH
// connection (remote transport is out of scope); it only confirms the
// configured string is a well-formed private key, catching copy/paste
// mistakes at config time instead of at first rollback.
func validateSSHKeyMaterial(key string) string {
	if _, err := ssh.ParsePrivateKey([]byte(key)); err != nil {
		return "not a valid SSH private key: " + err.Error()
	}
	return ""
}
