// Package gateway abstracts the remote chat-platform presence API the
// spec treats as an external collaborator (spec §1, §6): set_nickname,
// set_presence, register_command, on_command, and guild membership
// enumeration. The websocket-backed implementation is adapted from the
// teacher's internal/session client/handler pair, turned from a
// many-clients-per-server fanout into a single outbound client connection
// per Presence Worker.
package gateway

import (
	"context"
	"time"
)

// CommandSpec describes a slash-style command to register with the
// platform (spec §6's register_command(name, options)).
type CommandSpec struct {
	Name        string
	Description string
}

// CommandInvocation is one inbound invocation of a registered command.
type CommandInvocation struct {
	Name   string
	Args   map[string]string
	GuildID string
}

// CommandReply is the handler's response to a CommandInvocation. Ephemeral
// replies are visible only to the invoking context rather than the whole
// guild (spec §4.4's "reply is ephemeral" requirement for /price).
type CommandReply struct {
	Text      string
	Ephemeral bool
}

// CommandHandler processes one command invocation and returns a reply.
type CommandHandler func(ctx context.Context, inv CommandInvocation) CommandReply

// DisallowedGatewayIntentsError is fatal and surfaces at process start
// (spec §6).
type DisallowedGatewayIntentsError struct {
	Reason string
}

func (e *DisallowedGatewayIntentsError) Error() string {
	return "disallowed gateway intents: " + e.Reason
}

// RateLimitedError is returned by SetNickname/SetPresence when the
// platform responds 429. RetryAfter is the server-provided delay, or zero
// if the platform gave none (the caller then applies exponential backoff
// per spec §4.5).
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string { return "gateway: rate limited" }

// Gateway is the abstract remote presence API surface a Presence Worker
// depends on.
type Gateway interface {
	// Connect opens the gateway session. Returns
	// *DisallowedGatewayIntentsError on a fatal intents rejection.
	Connect(ctx context.Context) error

	// SetNickname sets the bot's visible nickname in one guild.
	SetNickname(ctx context.Context, guildID, name string) error

	// SetPresence sets the bot's rotating presence text.
	SetPresence(ctx context.Context, text string) error

	// RegisterCommand registers a slash command at startup.
	RegisterCommand(ctx context.Context, spec CommandSpec) error

	// OnCommand installs the handler invoked for registered commands.
	OnCommand(handler CommandHandler)

	// Guilds enumerates the guilds the bot is currently a member of.
	Guilds() []string

	// Close tears down the gateway session.
	Close() error
}
