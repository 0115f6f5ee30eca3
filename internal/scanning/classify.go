package scanning

import "strings"

// Category is the business type of a decoded barcode
type Category string

const (
	CategoryMachine Category = "machine"
	CategoryPrize   Category = "prize"
	CategoryPart    Category = "part"
	CategoryUnknown Category = "unknown"
)

// Known reports whether c is one of machine, prize or part
func (c Category) Known() bool {
	return c == CategoryMachine || c == CategoryPrize || c == CategoryPart
}

// Classified pairs a candidate with its category
type Classified struct {
	Candidate Candidate `json:"candidate"`
	Category  Category  `json:"category"`
}

// Rule maps a prefix token to a category
type Rule struct {
	Token    string
	Category Category
}

// Classifier assigns categories by prefix. Rules are evaluated in order; the first match wins.
type Classifier struct {
	rules []Rule
}

// DefaultRules is the prefix table used by Classify
var DefaultRules = []Rule{
	{Token: "MACHINE", Category: CategoryMachine},
	{Token: "PRIZE", Category: CategoryPrize},
	{Token: "PART", Category: CategoryPart},
}

var defaultClassifier = NewClassifier(DefaultRules)

// NewClassifier creates a Classifier with the given rules
func NewClassifier(rules []Rule) *Classifier {
	normalized := make([]Rule, 0, len(rules))
	for _, r := range rules {
		token := strings.ToUpper(strings.TrimSpace(r.Token))
		if token == "" {
			continue
		}
		normalized = append(normalized, Rule{Token: token, Category: r.Category})
	}
	return &Classifier{rules: normalized}
}

// Classify returns the category for text using DefaultRules
func Classify(text string) Category {
	return defaultClassifier.Classify(text)
}

// Classify returns the category of the first rule whose token prefixes text.
// A token only matches when followed by '_' or '-', so "PARTY" is not a part.
func (c *Classifier) Classify(text string) Category {
	upper := strings.ToUpper(strings.TrimSpace(text))
	for _, r := range c.rules {
		if !strings.HasPrefix(upper, r.Token) {
			continue
		}
		rest := upper[len(r.Token):]
		if strings.HasPrefix(rest, "_") || strings.HasPrefix(rest, "-") {
			return r.Category
		}
	}
	return CategoryUnknown
}

// ClassifyCandidate wraps a candidate with its category
func (c *Classifier) ClassifyCandidate(candidate Candidate) Classified {
	return Classified{
		Candidate: candidate,
		Category:  c.Classify(candidate.Text),
	}
}
