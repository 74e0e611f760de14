// Package i18n holds the user-facing strings.
//
// Catalogs use the Chrome extension messages.json layout: each key maps to
// a message whose $1..$9 placeholders are filled positionally.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
)

// DefaultLanguage is used for keys a requested language lacks.
const DefaultLanguage = "en"

//go:embed locales/*.json
var locales embed.FS

type entry struct {
	Message     string `json:"message"`
	Description string `json:"description,omitempty"`
}

// Catalog resolves message keys for one language, falling back to English.
type Catalog struct {
	lang     string
	messages map[string]string
	fallback map[string]string
}

// New returns the catalog for the first supported language in prefs, such
// as an Accept-Language list ("de-DE", "en"). Unknown languages fall back
// to English.
func New(prefs ...string) (*Catalog, error) {
	fallback, err := load(DefaultLanguage)
	if err != nil {
		return nil, err
	}
	c := &Catalog{lang: DefaultLanguage, messages: fallback, fallback: fallback}

	for _, pref := range prefs {
		lang := baseLanguage(pref)
		if lang == "" {
			continue
		}
		if lang == DefaultLanguage {
			break
		}
		msgs, err := load(lang)
		if err != nil {
			continue
		}
		c.lang, c.messages = lang, msgs
		break
	}
	return c, nil
}

// Default is the English catalog. The embedded catalog always parses, so
// it panics only on a broken build.
func Default() *Catalog {
	c, err := New()
	if err != nil {
		panic(err)
	}
	return c
}

// Languages lists the embedded languages.
func Languages() []string {
	files, _ := locales.ReadDir("locales")
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, strings.TrimSuffix(f.Name(), ".json"))
	}
	sort.Strings(out)
	return out
}

func load(lang string) (map[string]string, error) {
	data, err := locales.ReadFile(path.Join("locales", lang+".json"))
	if err != nil {
		return nil, fmt.Errorf("no catalog for %q: %w", lang, err)
	}
	var raw map[string]entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s catalog: %w", lang, err)
	}
	msgs := make(map[string]string, len(raw))
	for k, v := range raw {
		msgs[k] = v.Message
	}
	return msgs, nil
}

// baseLanguage reduces "de-DE;q=0.8" to "de".
func baseLanguage(pref string) string {
	pref = strings.TrimSpace(pref)
	if i := strings.IndexByte(pref, ';'); i >= 0 {
		pref = pref[:i]
	}
	if i := strings.IndexAny(pref, "-_"); i >= 0 {
		pref = pref[:i]
	}
	return strings.ToLower(pref)
}

// Language is the catalog's primary language.
func (c *Catalog) Language() string {
	return c.lang
}

// Get returns the message for key with $1..$9 replaced by args. A missing
// key yields the key itself, so a gap is visible rather than blank.
func (c *Catalog) Get(key string, args ...any) string {
	msg, ok := c.messages[key]
	if !ok {
		msg, ok = c.fallback[key]
	}
	if !ok {
		return key
	}
	return substitute(msg, args)
}

func substitute(msg string, args []any) string {
	if len(args) == 0 || !strings.Contains(msg, "$") {
		return msg
	}
	var b strings.Builder
	for i := 0; i < len(msg); i++ {
		ch := msg[i]
		if ch == '$' && i+1 < len(msg) && msg[i+1] >= '1' && msg[i+1] <= '9' {
			n := int(msg[i+1] - '1')
			if n < len(args) {
				fmt.Fprint(&b, args[n])
			}
			i++
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}
