// Package filename derives deterministic, filesystem-safe names for stored
// images and normalizes vault-relative paths.
package filename

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultExtension is used when neither the URL nor the content type names
// an image format.
const DefaultExtension = ".jpg"

var (
	illegalRe    = regexp.MustCompile(`[\\/:*?"<>|#]+`)
	whitespaceRe = regexp.MustCompile(`[\s\v\p{Zs}\x{85}\x{2028}\x{2029}\x{FEFF}]+`)
	knownExtRe   = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp|bmp)(?:\?|$)`)
	separatorsRe = regexp.MustCompile(`[\\/]+`)

	// Order matters: "jpeg" must be checked before anything else matches.
	mimeExt = []struct{ needle, ext string }{
		{"jpeg", ".jpg"},
		{"jpg", ".jpg"},
		{"png", ".png"},
		{"gif", ".gif"},
		{"webp", ".webp"},
		{"bmp", ".bmp"},
	}
)

// Sanitize strips characters that are illegal in file names on common
// filesystems, plus '#', collapses whitespace runs to one space and trims.
func Sanitize(name string) string {
	name = illegalRe.ReplaceAllString(name, "")
	name = whitespaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// DeriveBaseName builds "title-author" (or just title) and sanitizes it.
// The result may be empty.
func DeriveBaseName(title, author string) string {
	if author != "" {
		return Sanitize(title + "-" + author)
	}
	return Sanitize(title)
}

// InferExtension picks a file extension for an image. The result always
// starts with '.'.
func InferExtension(imageURL, contentType string) string {
	if u, ok := parseAbsolute(imageURL); ok {
		if ext := path.Ext(u.Path); len(ext) > 1 {
			return ext
		}
	} else if m := knownExtRe.FindStringSubmatch(imageURL); m != nil {
		return "." + m[1]
	}
	if ext := extFromMIME(contentType); ext != "" {
		return ext
	}
	return DefaultExtension
}

func parseAbsolute(raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return nil, false
	}
	return u, true
}

func extFromMIME(contentType string) string {
	if contentType == "" {
		return ""
	}
	ct := strings.ToLower(contentType)
	for _, m := range mimeExt {
		if strings.Contains(ct, m.needle) {
			return m.ext
		}
	}
	return ""
}

// NormalizePath cleans a vault-relative path: separator runs become a single
// '/', leading and trailing separators are dropped, no-break spaces become
// plain spaces and the result is NFC-normalized.
func NormalizePath(p string) string {
	p = separatorsRe.ReplaceAllString(p, "/")
	p = strings.Trim(p, "/")
	p = strings.NewReplacer("\u00a0", " ", "\u202f", " ").Replace(p)
	return norm.NFC.String(p)
}

// Join composes folder and file name into a normalized vault path. An empty
// folder means the vault root.
func Join(folder, name string) string {
	if folder == "" {
		return NormalizePath(name)
	}
	return NormalizePath(folder + "/" + name)
}

// LocalReference wraps a bare file name in the wiki-link token used to point
// at an asset inside the vault.
func LocalReference(name string) string {
	return "[[" + name + "]]"
}

// IsLocalReference reports whether s is already a wiki-link token.
func IsLocalReference(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "[[") && strings.HasSuffix(s, "]]")
}
