package download

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxNameLen is the longest file name, in bytes, that FileName and
// collision suffixing produce. Most filesystems reject longer names.
const MaxNameLen = 255

// maxExtLen bounds the extension kept when a long name is shortened.
// Longer "extensions" are treated as part of the stem.
const maxExtLen = 32

// FileName derives the destination file name for rawURL: the last
// element of the URL path, made safe for use as a single path element
// and shortened to MaxNameLen bytes with its extension kept. URLs
// without one get a random "download_xxxxxxxx" name.
func FileName(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}

	if p == "" || strings.HasSuffix(p, "/") {
		return fallbackName()
	}

	name := sanitize(path.Base(p))
	switch name {
	case "", ".", "..":
		return fallbackName()
	}

	if name = shorten(name, "", MaxNameLen); name == "" {
		return fallbackName()
	}

	return name
}

// shorten returns name with suffix inserted before the extension,
// trimming the stem so the result fits in limit bytes. It returns "" when
// nothing of the stem would be left.
func shorten(name, suffix string, limit int) string {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" { // dotfiles such as ".env"
		stem, ext = name, ""
	}
	if len(ext) > maxExtLen {
		stem, ext = name, ""
	}

	room := limit - len(suffix) - len(ext)
	if len(stem) <= room {
		return stem + suffix + ext
	}
	if room <= 0 {
		return ""
	}

	// Cut on a rune boundary.
	cut := room
	for cut > 0 && !utf8.RuneStart(stem[cut]) {
		cut--
	}
	if cut == 0 {
		return ""
	}

	return stem[:cut] + suffix + ext
}

func fallbackName() string {
	return "download_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r < 0x20 || r == 0x7f:
			return '_'
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
}

// nameTable hands out destination names that are unique within a run.
// Names compare case-insensitively so runs behave the same on
// case-folding filesystems.
type nameTable struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

func newNameTable() *nameTable {
	return &nameTable{claimed: make(map[string]struct{})}
}

// claim reserves a name derived from rawURL, appending "-N" before
// the extension when the base name is already taken.
func (t *nameTable) claim(rawURL string) string {
	base := FileName(rawURL)

	t.mu.Lock()
	defer t.mu.Unlock()

	name := base
	for i := 1; ; i++ {
		key := strings.ToLower(name)
		if _, taken := t.claimed[key]; !taken {
			t.claimed[key] = struct{}{}
			return name
		}
		name = withSuffix(base, i)
	}
}

func withSuffix(name string, n int) string {
	if s := shorten(name, fmt.Sprintf("-%d", n), MaxNameLen); s != "" {
		return s
	}

	return fallbackName()
}
