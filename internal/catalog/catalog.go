package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind — вид возможности engine'а.
type Kind string

const (
	// KindTrigger — запуск автоматизации.
	KindTrigger Kind = "trigger"

	// KindAction — действие внутри автоматизации.
	KindAction Kind = "action"

	// KindOutput — доставка результата.
	KindOutput Kind = "output"

	// KindSource — источник данных.
	KindSource Kind = "source"
)

// Capability — одна возможность execution engine'а.
type Capability struct {
	// ID — канонический идентификатор (например, "send-email").
	ID string

	// Kind — вид возможности.
	Kind Kind

	// Keywords — ключевые слова для нечёткого сопоставления
	// с формулировками пользователя.
	Keywords []string

	// Description — краткое описание для ответов пользователю.
	Description string
}

// Catalog — реестр возможностей engine'а.
//
// Потокобезопасен: читается валидатором и экстрактором диалога,
// пополняется при старте сервиса.
type Catalog struct {
	mu   sync.RWMutex
	caps map[string]Capability
}

// New создаёт пустой каталог.
func New() *Catalog {
	return &Catalog{caps: make(map[string]Capability)}
}

// Default создаёт каталог со стандартным набором возможностей engine'а.
func Default() *Catalog {
	c := New()

	for _, cap := range []Capability{
		// Триггеры
		{ID: "webhook-trigger", Kind: KindTrigger, Description: "start when an HTTP webhook is called",
			Keywords: []string{"webhook", "http", "request", "call", "api"}},
		{ID: "schedule-trigger", Kind: KindTrigger, Description: "start on a recurring schedule",
			Keywords: []string{"schedule", "every", "daily", "hourly", "weekly", "morning", "cron", "periodically"}},
		{ID: "email-trigger", Kind: KindTrigger, Description: "start when an email arrives",
			Keywords: []string{"email", "inbox", "arrives", "receive", "mail"}},
		{ID: "form-trigger", Kind: KindTrigger, Description: "start on a form submission",
			Keywords: []string{"form", "submission", "submit", "survey"}},

		// Действия
		{ID: "send-email", Kind: KindAction, Description: "send an email message",
			Keywords: []string{"send", "email", "mail", "notify", "message"}},
		{ID: "http-request", Kind: KindAction, Description: "call an external HTTP API",
			Keywords: []string{"http", "request", "api", "call", "fetch", "post"}},
		{ID: "slack-message", Kind: KindAction, Description: "post a message to Slack",
			Keywords: []string{"slack", "channel", "post", "message", "chat"}},
		{ID: "sheet-append", Kind: KindAction, Description: "append a row to a spreadsheet",
			Keywords: []string{"spreadsheet", "sheet", "row", "append", "excel", "table"}},
		{ID: "db-insert", Kind: KindAction, Description: "insert a record into a database",
			Keywords: []string{"database", "insert", "record", "store", "save", "sql"}},
		{ID: "transform-data", Kind: KindAction, Description: "reshape or aggregate data",
			Keywords: []string{"transform", "aggregate", "summarize", "summary", "report", "convert", "format"}},
		{ID: "filter-items", Kind: KindAction, Description: "filter items by a condition",
			Keywords: []string{"filter", "condition", "only", "match", "exclude"}},

		// Выходы
		{ID: "email", Kind: KindOutput, Description: "deliver results by email",
			Keywords: []string{"email", "mail", "inbox", "report"}},
		{ID: "slack", Kind: KindOutput, Description: "deliver results to Slack",
			Keywords: []string{"slack", "channel", "chat"}},
		{ID: "webhook", Kind: KindOutput, Description: "deliver results to a webhook URL",
			Keywords: []string{"webhook", "callback", "url", "endpoint"}},
		{ID: "spreadsheet", Kind: KindOutput, Description: "deliver results to a spreadsheet",
			Keywords: []string{"spreadsheet", "sheet", "excel", "table"}},

		// Источники данных
		{ID: "rest-api", Kind: KindSource, Description: "read data from a REST API",
			Keywords: []string{"api", "rest", "http", "service"}},
		{ID: "database", Kind: KindSource, Description: "read data from a database",
			Keywords: []string{"database", "sql", "postgres", "records", "orders"}},
		{ID: "rss-feed", Kind: KindSource, Description: "read items from an RSS feed",
			Keywords: []string{"rss", "feed", "news", "articles"}},
	} {
		c.Register(cap)
	}

	return c
}

// Register регистрирует возможность.
// Если возможность с таким ID уже существует, она будет перезаписана.
func (c *Catalog) Register(cap Capability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caps[cap.ID] = cap
}

// Get возвращает возможность по идентификатору.
func (c *Catalog) Get(id string) (Capability, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cap, exists := c.caps[id]
	if !exists {
		return Capability{}, fmt.Errorf("%w: %s", ErrCapabilityNotFound, id)
	}
	return cap, nil
}

// Has проверяет, есть ли возможность с таким идентификатором.
func (c *Catalog) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.caps[id]
	return exists
}

// All возвращает все возможности, отсортированные по ID.
func (c *Catalog) All() []Capability {
	c.mu.RLock()
	defer c.mu.RUnlock()

	caps := make([]Capability, 0, len(c.caps))
	for _, cap := range c.caps {
		caps = append(caps, cap)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i].ID < caps[j].ID })
	return caps
}

// ByKind возвращает возможности указанного вида, отсортированные по ID.
func (c *Catalog) ByKind(kind Kind) []Capability {
	var caps []Capability
	for _, cap := range c.All() {
		if cap.Kind == kind {
			caps = append(caps, cap)
		}
	}
	return caps
}

// Len возвращает размер каталога.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.caps)
}

// Tokenize разбивает формулировку на нормализованные токены:
// в нижнем регистре, без пунктуации, без пустых строк.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	tokens := fields[:0]
	for _, f := range fields {
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// Overlap возвращает количество токенов, совпадающих с ключевыми
// словами возможности (включая сам ID, разбитый по дефисам).
func (cap Capability) Overlap(tokens []string) int {
	keywords := make(map[string]bool, len(cap.Keywords)+2)
	for _, kw := range cap.Keywords {
		keywords[kw] = true
	}
	for _, part := range strings.Split(cap.ID, "-") {
		keywords[part] = true
	}

	score := 0
	for _, tok := range tokens {
		if keywords[tok] {
			score++
		}
	}
	return score
}
