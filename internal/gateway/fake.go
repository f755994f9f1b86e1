package gateway

import (
	"context"
	"sync"
)

var _ Gateway = (*Fake)(nil)

// NicknameCall records one SetNickname invocation, for test assertions.
type NicknameCall struct {
	GuildID string
	Name    string
}

// Fake is an in-memory Gateway used by tests in place of a real
// websocket connection, matching the teacher's hand-rolled stub pattern
// (stubTradeReader) rather than a mocking library.
type Fake struct {
	mu sync.Mutex

	guilds        []string
	nicknameCalls []NicknameCall
	presenceCalls []string
	commands      []CommandSpec
	handler       CommandHandler
	closed        bool

	ConnectErr error
}

// NewFake creates a Fake gateway that reports the given guild IDs as
// members.
func NewFake(guilds ...string) *Fake {
	return &Fake{guilds: guilds}
}

func (f *Fake) Connect(ctx context.Context) error {
	return f.ConnectErr
}

func (f *Fake) SetNickname(ctx context.Context, guildID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nicknameCalls = append(f.nicknameCalls, NicknameCall{GuildID: guildID, Name: name})
	return nil
}

func (f *Fake) SetPresence(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presenceCalls = append(f.presenceCalls, text)
	return nil
}

func (f *Fake) RegisterCommand(ctx context.Context, spec CommandSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, spec)
	return nil
}

func (f *Fake) OnCommand(handler CommandHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
}

func (f *Fake) Guilds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.guilds...)
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Invoke simulates an inbound command invocation for tests.
func (f *Fake) Invoke(ctx context.Context, inv CommandInvocation) CommandReply {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler == nil {
		return CommandReply{Text: "no handler registered"}
	}
	return handler(ctx, inv)
}

// NicknameCalls returns a copy of recorded SetNickname calls.
func (f *Fake) NicknameCalls() []NicknameCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]NicknameCall(nil), f.nicknameCalls...)
}

// PresenceCalls returns a copy of recorded SetPresence calls, in order.
func (f *Fake) PresenceCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.presenceCalls...)
}

// Closed reports whether Close has been called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
