package service

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Storage account names are 3 to 24 lowercase letters and digits.
const (
	maxStorageNameLen = 24
	minStorageNameLen = 3
	suffixLen         = 5
)

// Suffix generates a 5-character lowercase suffix from a name using SHA-256
// hashing. The same name always gives the same suffix.
func Suffix(name string) string {
	hash := sha256.Sum256([]byte(name))
	return fmt.Sprintf("%x", hash)[:suffixLen]
}

// StorageAccountName derives the storage account name used by a service.
// The service name is lowercased and every byte outside [a-z0-9] is encoded
// as "x" followed by its hex value, so TEST_SERVICE_NAME becomes
// testx5fservicex5fname. Names that end up too long or too short are cut
// and completed with a hash suffix of the service name.
func StorageAccountName(serviceName string) string {
	var b strings.Builder
	for _, c := range []byte(strings.ToLower(serviceName)) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "x%02x", c)
	}
	name := b.String()
	if len(name) > maxStorageNameLen || len(name) < minStorageNameLen {
		if len(name) > maxStorageNameLen-suffixLen {
			name = name[:maxStorageNameLen-suffixLen]
		}
		name += Suffix(serviceName)
	}
	return name
}
