package errkind

import "strings"

// Text — текст ошибки биржи в двух нормализованных видах.
type Text struct {
	Raw     string
	Lower   string
	Compact string // lower без '_' и '-'
}

func NewText(raw string) Text {
	lower := strings.ToLower(raw)
	return Text{
		Raw:     raw,
		Lower:   lower,
		Compact: strings.NewReplacer("_", "", "-", "").Replace(lower),
	}
}

func (t Text) Has(parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(t.Lower, p) {
			return false
		}
	}
	return true
}

// Rule — пара (предикат, класс). Правила проверяются строго по порядку.
type Rule struct {
	Name    string
	Match   func(Text) bool
	Kind    Kind
	Message string // пусто — отдаём исходный текст
}

// Rules — порядок важен: депозит и маржа раньше шагов, шаги раньше общих "blocked"/"nonce".
var Rules = []Rule{
	{
		Name:    "ip query only",
		Match:   func(t Text) bool { return strings.Contains(t.Compact, "ipqueryonly") },
		Kind:    NeedsDeposit,
		Message: "Your wallet needs funds deposited on Nado DEX before trading. Please deposit USDT0 first.",
	},
	{
		Name:    "insufficient margin",
		Match:   func(t Text) bool { return t.Has("insufficient") || t.Has("margin") },
		Kind:    InsufficientMargin,
		Message: "Insufficient margin. Please deposit more funds.",
	},
	{
		Name:    "product not found",
		Match:   func(t Text) bool { return t.Has("product", "not found") },
		Kind:    UnknownInstrument,
		Message: "This product is not currently available on the exchange.",
	},
	{
		Name:    "price increment",
		Match:   func(t Text) bool { return t.Has("invalid order price", "price_increment_x18") },
		Kind:    PriceIncrement,
		Message: "Order price did not match exchange tick size. Price was auto-adjusted if possible; please retry.",
	},
	{
		Name:    "size increment",
		Match:   func(t Text) bool { return t.Has("invalid order amount", "size_increment") },
		Kind:    SizeIncrement,
		Message: "Order size did not match exchange lot size. Size was auto-adjusted if possible; please retry.",
	},
	{
		Name:    "blocked",
		Match:   func(t Text) bool { return t.Has("blocked") },
		Kind:    Blocked,
		Message: "Order was blocked by the exchange. Your wallet may need funds deposited on-chain first.",
	},
	{
		Name:    "nonce",
		Match:   func(t Text) bool { return t.Has("nonce") },
		Kind:    StaleNonce,
		Message: "Order timing issue. Please try again.",
	},
	{
		Name:    "rate limit",
		Match:   func(t Text) bool { return t.Has("rate", "limit") },
		Kind:    RateLimited,
		Message: "Too many requests. Please wait a moment and try again.",
	},
}

// Classifier — упорядоченный список правил, отдельный от транспорта.
type Classifier struct {
	rules []Rule
}

func NewClassifier(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Default — классификатор со стандартными правилами.
var Default = NewClassifier(Rules)

// Match возвращает первое сработавшее правило.
func (c *Classifier) Match(raw string) (Rule, bool) {
	t := NewText(raw)
	for _, r := range c.rules {
		if r.Match(t) {
			return r, true
		}
	}
	return Rule{}, false
}

// Classify превращает свободный текст биржи в *Error.
// Нераспознанный текст остаётся Generic с исходным сообщением.
func (c *Classifier) Classify(raw string) *Error {
	r, ok := c.Match(raw)
	if !ok {
		return New(Generic, raw)
	}
	msg := r.Message
	if msg == "" {
		msg = raw
	}
	return &Error{Kind: r.Kind, Message: msg, Cause: rawError(raw)}
}

func Classify(raw string) *Error { return Default.Classify(raw) }

type rawError string

func (e rawError) Error() string { return string(e) }
