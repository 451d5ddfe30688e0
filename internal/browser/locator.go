package browser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/registrar/internal/config"
)

// ErrElementNotFound means no strategy of a locator matched a visible element.
var ErrElementNotFound = errors.New("element not found")

// Kind selects how a Strategy expression is evaluated.
type Kind string

const (
	KindCSS    Kind = "css"
	KindXPath  Kind = "xpath"
	KindID     Kind = "id"
	KindJSPath Kind = "jspath"
)

func (k Kind) queryOption() (chromedp.QueryOption, error) {
	switch k {
	case KindCSS:
		return chromedp.ByQuery, nil
	case KindXPath:
		return chromedp.BySearch, nil
	case KindID:
		return chromedp.ByID, nil
	case KindJSPath:
		return chromedp.ByJSPath, nil
	}
	return nil, fmt.Errorf("unknown locator kind %q", k)
}

// Strategy is one way of finding an element.
type Strategy struct {
	Kind Kind
	Expr string
}

func (s Strategy) String() string { return string(s.Kind) + ":" + s.Expr }

// CSS, XPath, ID and JSPath build strategies of the matching kind.
func CSS(expr string) Strategy    { return Strategy{Kind: KindCSS, Expr: expr} }
func XPath(expr string) Strategy  { return Strategy{Kind: KindXPath, Expr: expr} }
func ID(expr string) Strategy     { return Strategy{Kind: KindID, Expr: expr} }
func JSPath(expr string) Strategy { return Strategy{Kind: KindJSPath, Expr: expr} }

// Locator is an ordered fallback chain of strategies for one logical element.
type Locator struct {
	Name       string
	Strategies []Strategy
}

// NewLocator builds a Locator from strategies in priority order.
func NewLocator(name string, strategies ...Strategy) Locator {
	return Locator{Name: name, Strategies: strategies}
}

func (l Locator) String() string {
	parts := make([]string, len(l.Strategies))
	for i, s := range l.Strategies {
		parts[i] = s.String()
	}
	return l.Name + "[" + strings.Join(parts, " | ") + "]"
}

// LocatorFromSpecs converts configured strategies into a Locator.
func LocatorFromSpecs(name string, specs []config.LocatorSpec) (Locator, error) {
	if len(specs) == 0 {
		return Locator{}, fmt.Errorf("locator %q has no strategies", name)
	}
	loc := Locator{Name: name}
	for _, spec := range specs {
		k := Kind(strings.ToLower(spec.Kind))
		if _, err := k.queryOption(); err != nil {
			return Locator{}, fmt.Errorf("locator %q: %w", name, err)
		}
		if strings.TrimSpace(spec.Expr) == "" {
			return Locator{}, fmt.Errorf("locator %q: empty expression", name)
		}
		loc.Strategies = append(loc.Strategies, Strategy{Kind: k, Expr: spec.Expr})
	}
	return loc, nil
}

// NotFoundError reports which locator failed and the last strategy error.
type NotFoundError struct {
	Locator string
	Tried   int
	Last    error
}

func (e *NotFoundError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("%s: %q after %d strategies: %v", ErrElementNotFound, e.Locator, e.Tried, e.Last)
	}
	return fmt.Sprintf("%s: %q after %d strategies", ErrElementNotFound, e.Locator, e.Tried)
}

func (e *NotFoundError) Unwrap() error { return ErrElementNotFound }
