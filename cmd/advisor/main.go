// ABOUTME: Interactive terminal client for the shopping advisor backend
// ABOUTME: Streams replies live, renders recommendations, and drives the feedback flow

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/stackpine/advisor/internal/api"
	"github.com/stackpine/advisor/internal/chat"
	"github.com/stackpine/advisor/internal/config"
	"github.com/stackpine/advisor/internal/conversation"
	"github.com/stackpine/advisor/internal/feedback"
	"github.com/stackpine/advisor/internal/logging"
	"github.com/stackpine/advisor/internal/stream"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
           _       _
  __ _  __| |_   _(_)___  ___  _ __
 / _' |/ _' \ \ / / / __|/ _ \| '__|
| (_| | (_| |\ V /| \__ \ (_) | |
 \__,_|\__,_| \_/ |_|___/\___/|_|
`

func main() {
	configPath := flag.String("config", "", "path to config file (default: $ADVISOR_CONFIG, else built-in defaults)")
	wsURL := flag.String("ws", "", "override backend websocket URL")
	apiURL := flag.String("api", "", "override backend API URL")
	logLevel := flag.String("log-level", "", "override log level (debug/info/warn/error)")
	flag.Parse()

	if err := run(*configPath, *wsURL, *apiURL, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("ADVISOR_CONFIG")
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func run(configPath, wsURL, apiURL, logLevel string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if wsURL != "" {
		cfg.Backend.WSURL = wsURL
	}
	if apiURL != "" {
		cfg.Backend.APIURL = apiURL
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	cyan.Print(banner)
	gray.Printf("    version: %s\n", version)
	gray.Printf("    backend: %s\n\n", cfg.Backend.WSURL)

	a := newApp(cfg, logger)
	defer a.controller.Close()

	a.printHelp()
	return a.loop(context.Background())
}

// app owns the interactive session: one controller, one feedback gate, and
// the terminal rendering state.
type app struct {
	controller *conversation.Controller
	gate       *feedback.Gate
	client     *api.Client
	logger     *slog.Logger

	assistant *color.Color
	product   *color.Color
	errText   *color.Color
	dim       *color.Color

	mu           sync.Mutex
	exchangeDone chan struct{}
	sawChunk     bool
}

func newApp(cfg *config.Config, logger *slog.Logger) *app {
	a := &app{
		client:    api.NewClient(cfg.Backend.APIURL, logger),
		logger:    logger,
		assistant: color.New(color.FgGreen),
		product:   color.New(color.FgYellow),
		errText:   color.New(color.FgRed),
		dim:       color.New(color.FgHiBlack),
	}

	a.gate = feedback.NewGate(cfg.Feedback.PromptDelay, a.onFeedbackPrompt, a.client, logger)

	store := chat.NewStore()
	dialer := stream.NewDialer(cfg.Backend.WSURL, logger)
	opener := conversation.OpenerFunc(func(ctx context.Context, req stream.OpenRequest) (conversation.Exchange, error) {
		h, err := dialer.Open(ctx, req)
		if err != nil {
			return nil, err
		}
		return h, nil
	})

	a.controller = conversation.New(store, opener, conversation.Options{
		Gate:              a.gate,
		Publisher:         a,
		FallbackErrorText: cfg.Chat.FallbackErrorText,
		OnEvent:           a.onEvent,
		Logger:            logger,
	})
	return a
}

func (a *app) printHelp() {
	a.dim.Println("Ask about laptops, or use a command:")
	a.dim.Println("  /reset            start a fresh session")
	a.dim.Println("  /history          show the stored transcript for this session")
	a.dim.Println("  /conversations    list past conversations")
	a.dim.Println("  /feedback N [comment]   rate this conversation 1-5")
	a.dim.Println("  /dismiss          dismiss the feedback prompt")
	a.dim.Println("  /quit             exit")
	fmt.Println()
}

func (a *app) loop(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	prompt := color.New(color.FgCyan, color.Bold)

	for {
		prompt.Print("you> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := a.runCommand(ctx, line); quit {
				return nil
			}
			continue
		}

		a.send(ctx, line)
	}
}

// runCommand handles one slash command. Returns true on /quit.
func (a *app) runCommand(ctx context.Context, line string) bool {
	parts := strings.SplitN(line, " ", 3)
	switch parts[0] {
	case "/quit", "/exit":
		return true

	case "/reset":
		a.controller.Reset()
		a.dim.Println("started a fresh session")

	case "/history":
		a.showHistory(ctx)

	case "/conversations":
		a.showConversations(ctx)

	case "/feedback":
		if len(parts) < 2 {
			a.errText.Println("usage: /feedback N [comment]")
			break
		}
		rating, err := strconv.Atoi(parts[1])
		if err != nil || rating < 1 || rating > 5 {
			a.errText.Println("rating must be a number from 1 to 5")
			break
		}
		comment := ""
		if len(parts) == 3 {
			comment = parts[2]
		}
		a.gate.Submit(ctx, a.controller.Store().SessionID(), rating, comment)
		a.dim.Println("thanks for the feedback")

	case "/help":
		a.printHelp()

	case "/dismiss":
		a.gate.Dismiss()

	default:
		a.errText.Printf("unknown command %s (try /help)\n", parts[0])
	}
	return false
}

// send runs one exchange and blocks until its terminal event so the prompt
// doesn't interleave with streamed output.
func (a *app) send(ctx context.Context, text string) {
	a.mu.Lock()
	done := make(chan struct{})
	a.exchangeDone = done
	a.sawChunk = false
	a.mu.Unlock()

	a.controller.Send(ctx, text)

	if !a.controller.Store().IsStreaming() {
		// The exchange resolved before streaming began, which for a blocked
		// loop like this one means the channel never opened.
		a.mu.Lock()
		a.exchangeDone = nil
		a.mu.Unlock()
		if msg := a.controller.LastError(); msg != "" {
			a.errText.Println(msg)
		}
		return
	}

	a.assistant.Print("advisor> ")
	<-done
	fmt.Println()
}

// onEvent renders streamed events. Runs on the controller's consumer
// goroutine, never concurrently with itself.
func (a *app) onEvent(ev stream.Event) {
	switch ev.Kind {
	case stream.EventChunk:
		a.mu.Lock()
		a.sawChunk = true
		a.mu.Unlock()
		a.assistant.Print(ev.Text)

	case stream.EventComplete:
		a.mu.Lock()
		sawChunk := a.sawChunk
		done := a.exchangeDone
		a.exchangeDone = nil
		a.mu.Unlock()

		if !sawChunk {
			// Backend sent a bare complete; show the reply in one piece.
			a.assistant.Print(ev.Complete.Reply)
		}
		fmt.Println()
		if done != nil {
			close(done)
		}

	case stream.EventFailure:
		a.mu.Lock()
		done := a.exchangeDone
		a.exchangeDone = nil
		a.mu.Unlock()

		fmt.Println()
		a.errText.Println(a.controller.LastError())
		if done != nil {
			close(done)
		}
	}
}

// PublishResults renders the recommendations of a completed exchange.
// Implements the controller's Publisher interface.
func (a *app) PublishResults(products []stream.ProductRef, comparison *stream.ComparisonRef, reasoning *string) {
	if len(products) == 0 {
		return
	}
	fmt.Println()
	a.product.Println("recommendations:")
	for _, p := range products {
		a.product.Printf("  %-14s %s ($%.0f)\n", p.SKU, p.Name, p.Price)
		if p.Description != "" {
			a.dim.Printf("                 %s\n", p.Description)
		}
	}
	if comparison != nil && comparison.Summary != "" {
		a.dim.Printf("\n%s\n", comparison.Summary)
	}
	if reasoning != nil && *reasoning != "" {
		a.dim.Printf("\n%s\n", *reasoning)
	}
}

func (a *app) onFeedbackPrompt() {
	fmt.Println()
	a.product.Println("How was this conversation? Rate it with /feedback 1-5, or /dismiss.")
	color.New(color.FgCyan, color.Bold).Print("you> ")
}

func (a *app) showHistory(ctx context.Context) {
	sessionID := a.controller.Store().SessionID()
	messages, err := a.client.FetchHistory(ctx, sessionID)
	if err != nil {
		a.errText.Printf("fetching history: %v\n", err)
		return
	}
	if len(messages) == 0 {
		a.dim.Println("no stored messages for this session yet")
		return
	}
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			fmt.Printf("you> %s\n", msg.Content)
		case chat.RoleAssistant:
			a.assistant.Printf("advisor> %s\n", msg.Content)
		default:
			a.dim.Printf("%s> %s\n", msg.Role, msg.Content)
		}
	}
}

// truncate shortens s to at most max runes, ending in "..." when cut.
// Counting runes keeps multibyte characters intact.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func (a *app) showConversations(ctx context.Context) {
	convs, err := a.client.ListConversations(ctx)
	if err != nil {
		a.errText.Printf("listing conversations: %v\n", err)
		return
	}
	if len(convs) == 0 {
		a.dim.Println("no conversations recorded yet")
		return
	}
	for _, c := range convs {
		rating := "-"
		if c.Feedback != nil {
			rating = strconv.Itoa(c.Feedback.Rating)
		}
		first := truncate(c.FirstUserMessage, 48)
		fmt.Printf("%s  %2d msgs  rating %s  %s\n",
			c.UpdatedAt.Local().Format("2006-01-02 15:04"), c.MessageCount, rating, first)
	}
}
