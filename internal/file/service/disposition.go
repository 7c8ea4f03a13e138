package service

import (
	"mime"
	"strings"
)

// contentDisposition builds an attachment header with an RFC 6266 filename*
// parameter for non-ASCII names
func contentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	safe := strings.Map(func(r rune) rune {
		if r < 0x20 || r == '"' || r == '\\' || r > 0x7e {
			return '_'
		}
		return r
	}, filename)
	return `attachment; filename="` + safe + `"`
}
