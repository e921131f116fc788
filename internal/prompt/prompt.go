// Package prompt picks the persona for a request and composes the ordered message
// list sent to the completion service.
package prompt

import (
	"context"
	"fmt"
	"os"
	"strings"

	"match-chatter/internal/enrich"
	"match-chatter/internal/extract"
	"match-chatter/internal/history"
)

type Persona int

const (
	PersonaBrief Persona = iota
	PersonaDetailed
)

func (p Persona) String() string {
	if p == PersonaDetailed {
		return "detailed"
	}
	return "brief"
}

const (
	DefaultBriefPrompt = "Ты футбольный аналитик. Отвечай коротко: прогноз на матч, " +
		"ключевой аргумент и вероятный счёт, не больше пяти предложений."
	DefaultDetailedPrompt = "Ты футбольный аналитик. Дай развёрнутый разбор матча: форма команд, " +
		"очные встречи, составы и травмы, тактика, после чего прогноз с обоснованием."
)

var DefaultTriggers = []string{"подробн", "объясни", "поясни", "explain", "detail"}

// Classifier selects the persona by case-insensitive substring match on trigger words.
type Classifier struct {
	triggers []string
}

func NewClassifier(triggers []string) Classifier {
	c := Classifier{}
	for _, t := range triggers {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			c.triggers = append(c.triggers, t)
		}
	}
	return c
}

func (c Classifier) Classify(text string) Persona {
	lower := strings.ToLower(text)
	for _, t := range c.triggers {
		if strings.Contains(lower, t) {
			return PersonaDetailed
		}
	}
	return PersonaBrief
}

// Prompt is the composed request. User is the new turn, also the last element of Messages.
type Prompt struct {
	Persona      Persona
	Instructions string
	Messages     []history.Turn
	User         history.Turn
}

type Assembler struct {
	store      history.Store
	limit      int
	personas   map[Persona]string
	classifier Classifier
}

// NewAssembler reads at most limit history turns per request. Missing persona texts
// fall back to the defaults.
func NewAssembler(store history.Store, limit int, personas map[Persona]string, cls Classifier) *Assembler {
	p := map[Persona]string{
		PersonaBrief:    DefaultBriefPrompt,
		PersonaDetailed: DefaultDetailedPrompt,
	}
	for k, v := range personas {
		if strings.TrimSpace(v) != "" {
			p[k] = v
		}
	}
	return &Assembler{store: store, limit: limit, personas: p, classifier: cls}
}

// Assemble builds persona + trailing history + the new user turn. History recorded
// under the other persona is included as is.
func (a *Assembler) Assemble(ctx context.Context, sessionID, text string, info extract.MatchInfo, enr *enrich.Result) (Prompt, error) {
	persona := a.classifier.Classify(text)

	past, err := a.store.Recent(ctx, sessionID, a.limit)
	if err != nil {
		return Prompt{}, fmt.Errorf("read history: %w", err)
	}

	user := history.UserTurn(UserContent(text, info, enr))
	instructions := a.personas[persona]

	msgs := make([]history.Turn, 0, len(past)+2)
	msgs = append(msgs, history.SystemTurn(instructions))
	msgs = append(msgs, past...)
	msgs = append(msgs, user)

	return Prompt{Persona: persona, Instructions: instructions, Messages: msgs, User: user}, nil
}

// UserContent appends the parsed match details and enrichment to the raw text.
func UserContent(text string, info extract.MatchInfo, enr *enrich.Result) string {
	parts := []string{text}
	if s := info.Summary(); s != "" {
		parts = append(parts, s)
	}
	if s := enr.Text(); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n\n")
}

// LoadPersonas reads persona texts from files; unreadable files are skipped.
func LoadPersonas(briefPath, detailedPath string) map[Persona]string {
	out := make(map[Persona]string)
	if b, err := os.ReadFile(briefPath); err == nil {
		out[PersonaBrief] = string(b)
	}
	if b, err := os.ReadFile(detailedPath); err == nil {
		out[PersonaDetailed] = string(b)
	}
	return out
}
