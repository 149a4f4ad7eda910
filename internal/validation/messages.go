package validation

import (
	"strings"
	"sync"

	"golang.org/x/text/language"
)

// MessagePending is the message key used for a field whose async rule has
// not resolved yet.
const MessagePending RuleKind = "pending"

// Messages maps a rule name to a message template. Templates may contain
// {min} and {max}, substituted from the failing rule's parameters.
type Messages map[RuleKind]string

var defaultMessages = Messages{
	KindRequired:   "This field is required",
	KindMinLength:  "Must be at least {min} characters",
	KindMaxLength:  "Must be at most {max} characters",
	KindPattern:    "Invalid format",
	KindMin:        "Must be at least {min}",
	KindMax:        "Must be at most {max}",
	KindEmail:      "Invalid email address",
	KindURL:        "Invalid URL",
	KindCustom:     "Invalid value",
	KindAsync:      "Invalid value",
	MessagePending: "Validation in progress",
}

var builtinTables = map[language.Tag]Messages{
	language.English: defaultMessages,
	language.German: {
		KindRequired:   "Dieses Feld ist erforderlich",
		KindMinLength:  "Mindestens {min} Zeichen",
		KindMaxLength:  "Höchstens {max} Zeichen",
		KindPattern:    "Ungültiges Format",
		KindMin:        "Muss mindestens {min} sein",
		KindMax:        "Darf höchstens {max} sein",
		KindEmail:      "Ungültige E-Mail-Adresse",
		KindURL:        "Ungültige URL",
		KindCustom:     "Ungültiger Wert",
		KindAsync:      "Ungültiger Wert",
		MessagePending: "Prüfung läuft",
	},
	language.French: {
		KindRequired:   "Ce champ est obligatoire",
		KindMinLength:  "Au moins {min} caractères",
		KindMaxLength:  "Au plus {max} caractères",
		KindPattern:    "Format invalide",
		KindMin:        "Doit être au moins {min}",
		KindMax:        "Doit être au plus {max}",
		KindEmail:      "Adresse e-mail invalide",
		KindURL:        "URL invalide",
		KindCustom:     "Valeur invalide",
		KindAsync:      "Valeur invalide",
		MessagePending: "Validation en cours",
	},
}

// DefaultMessage returns the built-in English template for kind.
func DefaultMessage(kind RuleKind) string {
	return defaultMessages[kind]
}

// Catalog holds message tables per language and negotiates between them.
type Catalog struct {
	mu      sync.RWMutex
	tags    []language.Tag
	tables  map[language.Tag]Messages
	matcher language.Matcher
}

// NewCatalog returns a catalog seeded with the built-in English, German and
// French tables. English is the fallback language.
func NewCatalog() *Catalog {
	c := &Catalog{tables: make(map[language.Tag]Messages)}
	c.tags = append(c.tags, language.English)
	c.tables[language.English] = copyMessages(builtinTables[language.English])
	for tag, m := range builtinTables {
		if tag == language.English {
			continue
		}
		c.tags = append(c.tags, tag)
		c.tables[tag] = copyMessages(m)
	}
	c.matcher = language.NewMatcher(c.tags)
	return c
}

// Add merges m into the table for tag, creating the language if needed.
func (c *Catalog) Add(tag language.Tag, m Messages) {
	c.mu.Lock()
	defer c.mu.Unlock()

	table, ok := c.tables[tag]
	if !ok {
		table = make(Messages, len(m))
		c.tables[tag] = table
		c.tags = append(c.tags, tag)
		c.matcher = language.NewMatcher(c.tags)
	}
	for k, v := range m {
		table[k] = v
	}
}

// Localizer returns a localizer for the best supported match of prefs.
func (c *Catalog) Localizer(prefs ...language.Tag) *Localizer {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tag := language.English
	if len(prefs) > 0 {
		_, idx, _ := c.matcher.Match(prefs...)
		tag = c.tags[idx]
	}
	return &Localizer{tag: tag, table: copyMessages(c.tables[tag])}
}

// LocalizerFor parses a BCP 47 tag or an Accept-Language header value and
// returns the matching localizer. Unparseable input selects English.
func (c *Catalog) LocalizerFor(locale string) *Localizer {
	prefs, _, err := language.ParseAcceptLanguage(locale)
	if err != nil || len(prefs) == 0 {
		return c.Localizer()
	}
	return c.Localizer(prefs...)
}

// Localizer resolves rule messages for one language, with optional
// per-instance overrides taking precedence over the language table.
type Localizer struct {
	tag       language.Tag
	table     Messages
	overrides Messages
}

// Tag returns the negotiated language.
func (l *Localizer) Tag() language.Tag {
	if l == nil {
		return language.English
	}
	return l.tag
}

// WithOverrides returns a copy of l whose overrides are replaced by m.
func (l *Localizer) WithOverrides(m Messages) *Localizer {
	out := &Localizer{tag: language.English}
	if l != nil {
		out.tag = l.tag
		out.table = l.table
	}
	out.overrides = copyMessages(m)
	return out
}

// Message renders the template for kind with params substituted. Lookup
// order is overrides, language table, then the built-in default.
func (l *Localizer) Message(kind RuleKind, params map[string]string) string {
	tmpl := ""
	if l != nil {
		if s, ok := l.overrides[kind]; ok && s != "" {
			tmpl = s
		} else if s, ok := l.table[kind]; ok && s != "" {
			tmpl = s
		}
	}
	if tmpl == "" {
		tmpl = defaultMessages[kind]
	}
	if len(params) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func copyMessages(m Messages) Messages {
	out := make(Messages, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
