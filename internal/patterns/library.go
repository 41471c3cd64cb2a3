// Package patterns holds the static, versioned moderation rule set.
//
// Toxicity rules are grouped into severity tiers, each with a base score.
// Spam and evasion rules carry individual weights. Everything is compiled once
// by New; a rule that fails to compile is a startup error, never a partially
// loaded library.
package patterns

import (
	"fmt"
	"regexp"
	"time"

	"github.com/dlclark/regexp2"

	"chat-moderation-engine/internal/models"
)

// Version identifies the rule set shipped with this build
const Version = "2025.1"

// backrefTimeout bounds the backtracking matcher used for backreference rules
const backrefTimeout = 50 * time.Millisecond

type Category string

const (
	CategoryToxicity Category = "toxicity"
	CategorySpam     Category = "spam"
	CategoryEvasion  Category = "evasion"
)

type kind uint8

const (
	kindRE2          kind = iota // case-insensitive RE2
	kindRE2Sensitive             // case-sensitive RE2
	kindBackref                  // case-insensitive regexp2, needs backreferences
	kindFunc                     // hand-written detector
)

type definition struct {
	name   string
	expr   string
	weight float64
	kind   kind
	fn     func(string) bool
}

// Pattern is one compiled rule
type Pattern struct {
	Name     string
	Category Category
	Weight   float64
	match    func(string) bool
}

// Match reports whether the rule fires on text
func (p *Pattern) Match(text string) bool {
	return p.match(text)
}

// ID returns the category-qualified rule name used in decisions
func (p *Pattern) ID() string {
	return string(p.Category) + "." + p.Name
}

// Tier is the ordered rule list of one severity
type Tier struct {
	Severity  models.Severity
	BaseScore float64
	// CountOnce makes the tier contribute its base score at most once
	CountOnce bool
	Patterns  []*Pattern
}

// Library is the full compiled rule set, safe for concurrent use
type Library struct {
	Version string
	// Tiers are ordered extreme to low
	Tiers   []Tier
	Spam    []*Pattern
	Evasion []*Pattern
}

// New compiles the built-in rule tables
func New() (*Library, error) {
	lib := &Library{Version: Version}

	for _, td := range toxicTiers {
		tier := Tier{
			Severity:  td.severity,
			BaseScore: td.base,
			CountOnce: td.countOnce,
		}
		for _, d := range td.defs {
			d.weight = td.base
			p, err := compile(CategoryToxicity, d)
			if err != nil {
				return nil, err
			}
			tier.Patterns = append(tier.Patterns, p)
		}
		lib.Tiers = append(lib.Tiers, tier)
	}

	for _, d := range spamDefs {
		p, err := compile(CategorySpam, d)
		if err != nil {
			return nil, err
		}
		lib.Spam = append(lib.Spam, p)
	}

	for _, d := range evasionDefs {
		p, err := compile(CategoryEvasion, d)
		if err != nil {
			return nil, err
		}
		lib.Evasion = append(lib.Evasion, p)
	}

	return lib, nil
}

// MustNew is New for package-level initialisation in tests and tools
func MustNew() *Library {
	lib, err := New()
	if err != nil {
		panic(err)
	}
	return lib
}

// Count returns the number of compiled rules
func (l *Library) Count() int {
	n := len(l.Spam) + len(l.Evasion)
	for _, t := range l.Tiers {
		n += len(t.Patterns)
	}
	return n
}

func compile(cat Category, d definition) (*Pattern, error) {
	p := &Pattern{Name: d.name, Category: cat, Weight: d.weight}

	switch d.kind {
	case kindRE2, kindRE2Sensitive:
		expr := d.expr
		if d.kind == kindRE2 {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compiling %s.%s: %w", cat, d.name, err)
		}
		p.match = re.MatchString

	case kindBackref:
		re, err := regexp2.Compile(d.expr, regexp2.IgnoreCase)
		if err != nil {
			return nil, fmt.Errorf("compiling %s.%s: %w", cat, d.name, err)
		}
		re.MatchTimeout = backrefTimeout
		p.match = func(s string) bool {
			ok, err := re.MatchString(s)
			return err == nil && ok
		}

	case kindFunc:
		if d.fn == nil {
			return nil, fmt.Errorf("compiling %s.%s: missing detector", cat, d.name)
		}
		p.match = d.fn

	default:
		return nil, fmt.Errorf("compiling %s.%s: unknown kind %d", cat, d.name, d.kind)
	}

	return p, nil
}
