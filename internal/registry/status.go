package registry

import "strings"

// Status words that mean the professional may not practice. Stems cover
// gendered and plural forms (SUSPENDIDO, SUSPENDIDA, INACTIVOS...).
var inactiveStems = []string{"SUSPENDID", "INACTIV", "CANCELAD", "REVOCAD", "FALLECID", "ANULAD"}

// LicenseActive reports whether status text describes a license in good
// standing. Empty text is treated as active because the registry omits the
// column for most ordinary listings; callers surface a warning instead.
func LicenseActive(status string) bool {
	upper := strings.ToUpper(status)
	for _, stem := range inactiveStems {
		if strings.Contains(upper, stem) {
			return false
		}
	}
	return true
}
