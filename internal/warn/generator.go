package warn

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/CelesteBean/treehacks-anchor/internal/metrics"
)

// TextGenerator produces the warning sentence; only the chat client
// implements it in production, tests substitute their own.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Request carries everything the generator may phrase into a warning.
type Request struct {
	ScamType   string
	RiskLevel  string
	Factors    []string
	Transcript string
	Entities   map[string]string
}

// Canned warnings per scam type, used when the language model is
// unavailable. Placeholders like {payment_method} are filled from the
// extracted entities.
var fallbackTemplates = map[string]string{
	"gift_card":    "Please pause this call. Anyone asking you to buy {payment_method} and read the codes over the phone is almost certainly a scammer. Hang up and call a family member.",
	"government":   "Please be careful. {authority} will never call and demand immediate payment or threaten arrest. Hang up and call a family member before doing anything.",
	"grandparent":  "Please slow down. If someone says a family member urgently needs money, hang up and call that family member directly on their own number first.",
	"tech_support": "Please stop. Never give a caller remote access to your computer or download software they sent. Hang up and ask a family member for help.",
	"crypto":       "Please pause. No real company or agency will ask you to deposit cash at a Bitcoin machine. Hang up and call a family member.",
	"romance":      "Please take a moment. Sending money to someone you have only met online is very risky. Talk to a family member before you send anything.",
	"bank_fraud":   "Please be careful. Your real bank will never ask you to move money to keep it safe. Hang up and call the number on the back of your card.",
	"verification": "Please stop. Never read verification codes or account numbers to someone who called you. Hang up and call a family member.",
	"generic":      "Please be careful with this call. It shows signs of a scam. Consider hanging up and calling a family member you trust.",
}

// Generator turns a risk assessment into a short spoken warning, preferring
// the language model and falling back to templates when it fails.
type Generator struct {
	llm TextGenerator
}

func NewGenerator(llm TextGenerator) *Generator {
	return &Generator{llm: llm}
}

// A warning longer than this cannot be two calm sentences; treat it as a
// model failure.
const maxWarningChars = 500

// Warning always returns usable text; model failures, empty completions and
// runaway completions all degrade to templates.
func (g *Generator) Warning(ctx context.Context, req Request) string {
	if g.llm != nil {
		prompt := buildPrompt(req)
		text, err := g.llm.Generate(ctx, prompt)
		switch {
		case err != nil:
			log.Printf("warn: model generation failed, using template: %v", err)
			metrics.CollaboratorFailures.WithLabelValues("llm").Inc()
		case text == "":
			log.Printf("warn: model returned empty text, using template")
		case len(text) > maxWarningChars:
			log.Printf("warn: model returned %d chars, using template", len(text))
		default:
			return text
		}
	}
	return g.Template(req)
}

// Template returns the canned warning for the scam type with entities
// substituted.
func (g *Generator) Template(req Request) string {
	tmpl, ok := fallbackTemplates[req.ScamType]
	if !ok {
		tmpl = fallbackTemplates["generic"]
	}
	return fillTemplate(tmpl, req.Entities)
}

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scam type: %s. Risk level: %s.\n", req.ScamType, req.RiskLevel)
	if len(req.Factors) > 0 {
		fmt.Fprintf(&b, "Signals: %s.\n", strings.Join(req.Factors, "; "))
	}
	for k, v := range req.Entities {
		fmt.Fprintf(&b, "Detail %s: %s.\n", k, v)
	}
	if req.Transcript != "" {
		fmt.Fprintf(&b, "What they just said: %q\n", req.Transcript)
	}
	b.WriteString("Write the warning now.")
	return b.String()
}

func fillTemplate(tmpl string, entities map[string]string) string {
	out := tmpl
	for k, v := range entities {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}
