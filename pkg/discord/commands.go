package discord

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"craft-flipping/pkg/logging"
	"craft-flipping/pkg/profit"
	"craft-flipping/pkg/tracker"
)

// Embed colours
const (
	ColorOK      = 0x00ff00
	ColorInfo    = 0x0099ff
	ColorWarning = 0xffaa00
	ColorError   = 0xff0000
)

// Service is what the command handler queries (tracker.Tracker implements it)
type Service interface {
	Status() tracker.Status
	Refresh(ctx context.Context) <-chan tracker.RefreshOutcome
	FindProfitable(budget float64) []profit.Calculation
	AllProfits() []profit.Calculation
	Detail(query string) (profit.Calculation, error)
	Formatter() *profit.OutputFormatter
}

// Response is one reply to a command
type Response struct {
	Title       string
	Description string
	Color       int
}

// ReplyFunc delivers a response to wherever the command came from
type ReplyFunc func(Response)

// CommandConfig tunes the command handler
type CommandConfig struct {
	Prefix        string
	DefaultBudget float64
	DefaultLimit  int
}

// DefaultCommandConfig returns the default command settings
func DefaultCommandConfig() *CommandConfig {
	return &CommandConfig{
		Prefix:        "!craft",
		DefaultBudget: 1000,
		DefaultLimit:  10,
	}
}

// CommandHandler parses chat commands and answers them from a Service
type CommandHandler struct {
	service Service
	config  *CommandConfig
	logger  *logging.Logger
	now     func() time.Time
}

// NewCommandHandler creates a command handler. A nil config uses defaults.
func NewCommandHandler(service Service, config *CommandConfig, logger *logging.Logger) *CommandHandler {
	if config == nil {
		config = DefaultCommandConfig()
	}
	return &CommandHandler{
		service: service,
		config:  config,
		logger:  logging.OrQuiet(logger),
		now:     time.Now,
	}
}

// Prefix returns the command prefix
func (h *CommandHandler) Prefix() string {
	return h.config.Prefix
}

// Matches reports whether content is addressed to the handler
func (h *CommandHandler) Matches(content string) bool {
	fields := strings.Fields(content)
	return len(fields) > 0 && strings.EqualFold(fields[0], h.config.Prefix)
}

// Handle runs one command. Refresh replies twice: once on start, once with the outcome.
func (h *CommandHandler) Handle(ctx context.Context, content string, reply ReplyFunc) {
	h.HandleAt(ctx, content, time.Time{}, reply)
}

// HandleAt is Handle for a message sent at sentAt; ping reports the latency since then.
func (h *CommandHandler) HandleAt(ctx context.Context, content string, sentAt time.Time, reply ReplyFunc) {
	parts := strings.Fields(content)
	if len(parts) < 2 {
		reply(h.help())
		return
	}

	command := strings.ToLower(parts[1])
	args := parts[2:]

	h.logger.WithDiscord().WithFields(logrus.Fields{
		"command": command,
		"args":    len(args),
	}).Debug("Handling command")

	switch command {
	case "status":
		reply(Response{
			Title:       "Profit Calculator Status",
			Description: codeBlock(h.service.Status().String()),
			Color:       ColorInfo,
		})

	case "refresh":
		if !h.service.Status().Refreshing {
			reply(Response{Title: "Refresh", Description: "Refreshing auction data...", Color: ColorInfo})
		}
		outcome := <-h.service.Refresh(ctx)
		color := ColorOK
		if !outcome.Success {
			color = ColorError
		}
		reply(Response{Title: "Refresh", Description: outcome.Message, Color: color})

	case "top":
		budget := h.config.DefaultBudget
		if len(args) > 0 {
			parsed, err := ParseAmount(args[0])
			if err != nil || parsed <= 0 {
				reply(Response{
					Title:       "Invalid budget",
					Description: fmt.Sprintf("`%s` is not a budget. Try `%s top 5000` or `%s top 1.5k`.", args[0], h.config.Prefix, h.config.Prefix),
					Color:       ColorWarning,
				})
				return
			}
			budget = parsed
		}
		limit := h.limitArg(args, 1)
		reply(h.ranking("Top Crafts", budget, h.service.FindProfitable(budget), limit))

	case "all":
		reply(h.ranking("All Crafts", 0, h.service.AllProfits(), h.limitArg(args, 0)))

	case "item":
		if len(args) == 0 {
			reply(Response{
				Title:       "Missing item",
				Description: fmt.Sprintf("Usage: `%s item <name>`", h.config.Prefix),
				Color:       ColorWarning,
			})
			return
		}
		reply(h.detail(strings.Join(args, " ")))

	case "help":
		reply(h.help())

	case "ping":
		description := "Bot is responsive."
		if !sentAt.IsZero() {
			latency := h.now().Sub(sentAt)
			description = fmt.Sprintf("Bot is responsive. Latency: %dms", latency.Milliseconds())
		}
		reply(Response{
			Title:       "Pong!",
			Description: description,
			Color:       ColorOK,
		})

	default:
		reply(Response{
			Title:       "Unknown Command",
			Description: fmt.Sprintf("Unknown command: `%s`\nUse `%s help` to see available commands.", command, h.config.Prefix),
			Color:       ColorWarning,
		})
	}
}

// limitArg reads an optional positive limit from args[i]
func (h *CommandHandler) limitArg(args []string, i int) int {
	if i < len(args) {
		if n, err := strconv.Atoi(args[i]); err == nil && n > 0 {
			return n
		}
	}
	return h.config.DefaultLimit
}

func (h *CommandHandler) ranking(name string, budget float64, results []profit.Calculation, limit int) Response {
	if len(results) > limit {
		results = results[:limit]
	}

	status := h.service.Status()
	if !status.HasRefreshed && status.Observations == 0 {
		return Response{
			Title:       name,
			Description: fmt.Sprintf("No price data yet. Run `%s refresh` first.", h.config.Prefix),
			Color:       ColorWarning,
		}
	}

	report := &profit.Report{
		Name:        name,
		Budget:      budget,
		Results:     results,
		GeneratedAt: time.Now(),
	}
	return Response{
		Title:       name,
		Description: h.service.Formatter().FormatForDiscord(report),
		Color:       ColorOK,
	}
}

func (h *CommandHandler) detail(query string) Response {
	calc, err := h.service.Detail(query)
	switch {
	case errors.Is(err, tracker.ErrUnknownGood):
		return Response{
			Title:       "Unknown item",
			Description: fmt.Sprintf("No item matches `%s`.", query),
			Color:       ColorWarning,
		}
	case errors.Is(err, tracker.ErrNoCalculation):
		return Response{
			Title:       "No data",
			Description: fmt.Sprintf("No fresh price or recipe for `%s`.", query),
			Color:       ColorWarning,
		}
	case err != nil:
		return Response{Title: "Error", Description: err.Error(), Color: ColorError}
	}

	color := ColorOK
	if !calc.Profitable() {
		color = ColorWarning
	}
	return Response{
		Title:       calc.Good.Name,
		Description: codeBlock(h.service.Formatter().FormatDetail(calc)),
		Color:       color,
	}
}

func (h *CommandHandler) help() Response {
	p := h.config.Prefix
	return Response{
		Title: "Craft Flipping Commands",
		Description: "Available commands:\n" +
			fmt.Sprintf("`%s status` - Show cache and refresh status\n", p) +
			fmt.Sprintf("`%s refresh` - Reload auction data\n", p) +
			fmt.Sprintf("`%s top [budget] [limit]` - Best margins within a budget\n", p) +
			fmt.Sprintf("`%s all [limit]` - Every craft ranked by profit\n", p) +
			fmt.Sprintf("`%s item <name>` - Recipe breakdown for one item\n", p) +
			fmt.Sprintf("`%s help` - Show this help message\n", p) +
			fmt.Sprintf("`%s ping` - Test bot responsiveness\n", p),
		Color: ColorInfo,
	}
}

func codeBlock(s string) string {
	return fence + "\n" + strings.TrimRight(s, "\n") + "\n" + fence
}

// ParseAmount reads a price such as "1500", "$1,500", "1.5k" or "2m"
func ParseAmount(s string) (float64, error) {
	clean := strings.ToLower(strings.TrimSpace(s))
	clean = strings.TrimPrefix(clean, "$")
	clean = strings.ReplaceAll(clean, ",", "")

	multiplier := 1.0
	switch {
	case strings.HasSuffix(clean, "k"):
		multiplier = 1e3
	case strings.HasSuffix(clean, "m"):
		multiplier = 1e6
	case strings.HasSuffix(clean, "b"):
		multiplier = 1e9
	}
	if multiplier != 1 {
		clean = clean[:len(clean)-1]
	}

	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return v * multiplier, nil
}
