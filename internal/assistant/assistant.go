package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"marketpulse-api/internal/breadth"
	"marketpulse-api/internal/engine"
	"marketpulse-api/internal/model"
	"marketpulse-api/pkg/llm"
	"marketpulse-api/pkg/market"
	"marketpulse-api/pkg/prompt"
)

// ErrNoMessages is returned when a chat request has no user messages.
var ErrNoMessages = errors.New("assistant: at least one message is required")

const defaultSystemPrompt = `You are a market data assistant for A-share stocks.
Answer using only the structured context below; say so when the context does not
cover the question. Keep answers short and concrete.

%s`

// Chatter is the slice of the LLM client the assistant needs.
type Chatter interface {
	Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

// Assistant answers questions about tracked stocks, grounding the LLM with
// stored quotes and derived indicators.
type Assistant struct {
	chat        Chatter
	instruments model.InstrumentsModel
	quotes      model.QuotesModel
	engine      *engine.Engine
	breadth     *breadth.Summarizer
	tmpl        *prompt.Template
}

// New wires the assistant. The template is optional; nil falls back to the
// built-in system prompt.
func New(chat Chatter, instruments model.InstrumentsModel, quotes model.QuotesModel,
	eng *engine.Engine, summarizer *breadth.Summarizer, tmpl *prompt.Template) *Assistant {
	return &Assistant{
		chat:        chat,
		instruments: instruments,
		quotes:      quotes,
		engine:      eng,
		breadth:     summarizer,
		tmpl:        tmpl,
	}
}

// BuildContext renders the structured market context for one stock. Missing
// pieces (no quote yet, too little bar history) degrade to omitted sections
// rather than errors.
func (a *Assistant) BuildContext(ctx context.Context, code string) (string, error) {
	var b strings.Builder

	inst, err := a.instruments.FindOne(ctx, code)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return "", fmt.Errorf("assistant: unknown stock %s", code)
		}
		return "", err
	}
	fmt.Fprintf(&b, "Stock: %s (%s), market %s", inst.Name, inst.Code, inst.Market)
	if inst.Industry != "" {
		fmt.Fprintf(&b, ", industry %s", inst.Industry)
	}
	if !inst.Active {
		b.WriteString(" [inactive]")
	}
	b.WriteString("\n")

	if quote, err := a.quotes.Latest(ctx, code); err == nil {
		fmt.Fprintf(&b, "Latest quote (%s): current %s, open %s, high %s, low %s, prev close %s, change %+.2f (%s, %s), volume %s\n",
			quote.At.Format("2006-01-02 15:04"), prompt.Price(quote.Current), prompt.Price(quote.Open),
			prompt.Price(quote.High), prompt.Price(quote.Low), prompt.Price(quote.PrevClose),
			quote.ChangeAmount, prompt.Pct(quote.ChangePercent), prompt.Trend(quote.ChangePercent),
			prompt.Volume(quote.Volume))
	} else if !errors.Is(err, model.ErrNotFound) {
		return "", err
	}

	if set, err := a.engine.Compute(ctx, code, market.Period1d, 0); err == nil {
		b.WriteString("Daily indicators:")
		writeIndicator(&b, "MA5", set.MA5)
		writeIndicator(&b, "MA10", set.MA10)
		writeIndicator(&b, "MA20", set.MA20)
		writeIndicator(&b, "MA60", set.MA60)
		writeIndicator(&b, "MACD", set.MACD)
		writeIndicator(&b, "RSI14", set.RSI)
		writeIndicator(&b, "KDJ.K", set.KDJK)
		writeIndicator(&b, "KDJ.D", set.KDJD)
		writeIndicator(&b, "KDJ.J", set.KDJJ)
		writeIndicator(&b, "BOLL.upper", set.BollUpper)
		writeIndicator(&b, "BOLL.lower", set.BollLower)
		b.WriteString("\n")
	} else if !errors.Is(err, engine.ErrInsufficientData) {
		return "", err
	}

	return b.String(), nil
}

func writeIndicator(b *strings.Builder, name string, v *float64) {
	if v == nil {
		return
	}
	fmt.Fprintf(b, " %s=%.3f", name, *v)
}

// ChatInput is one assistant conversation turn.
type ChatInput struct {
	// Code scopes the conversation to one stock; empty means no market context.
	Code     string
	Messages []llm.Message
}

// ChatOutput carries the assistant reply plus the context it was grounded on.
type ChatOutput struct {
	Reply   string
	Context string
	Usage   llm.Usage
}

// Chat runs one grounded conversation turn.
func (a *Assistant) Chat(ctx context.Context, input ChatInput) (*ChatOutput, error) {
	if len(input.Messages) == 0 {
		return nil, ErrNoMessages
	}

	marketContext := ""
	if input.Code != "" {
		rendered, err := a.BuildContext(ctx, input.Code)
		if err != nil {
			return nil, err
		}
		marketContext = rendered
	}

	system, err := a.systemPrompt(marketContext)
	if err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(input.Messages)+1)
	messages = append(messages, llm.Message{Role: "system", Content: system})
	messages = append(messages, input.Messages...)

	resp, err := a.chat.Chat(ctx, &llm.ChatRequest{Messages: messages})
	if err != nil {
		return nil, err
	}

	return &ChatOutput{
		Reply:   resp.Text(),
		Context: marketContext,
		Usage:   resp.Usage,
	}, nil
}

func (a *Assistant) systemPrompt(marketContext string) (string, error) {
	if a.tmpl != nil {
		return a.tmpl.Render(map[string]any{"Context": marketContext})
	}
	return fmt.Sprintf(defaultSystemPrompt, marketContext), nil
}
