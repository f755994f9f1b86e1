package gateway

import (
	"context"
	"testing"
)

func TestFakeRecordsNicknameAndPresenceCalls(t *testing.T) {
	f := NewFake("guild-1", "guild-2")
	ctx := context.Background()

	for _, g := range f.Guilds() {
		if err := f.SetNickname(ctx, g, "BTC 107,018"); err != nil {
			t.Fatalf("set nickname: %v", err)
		}
	}
	f.SetPresence(ctx, "1h: +10.00%")

	if len(f.NicknameCalls()) != 2 {
		t.Fatalf("expected 2 nickname calls, got %d", len(f.NicknameCalls()))
	}
	if len(f.PresenceCalls()) != 1 {
		t.Fatalf("expected 1 presence call, got %d", len(f.PresenceCalls()))
	}
}

func TestFakeDispatchesCommandInvocation(t *testing.T) {
	f := NewFake("guild-1")
	f.OnCommand(func(ctx context.Context, inv CommandInvocation) CommandReply {
		return CommandReply{Text: "BTC 107,018"}
	})

	reply := f.Invoke(context.Background(), CommandInvocation{Name: "price"})
	if reply.Text != "BTC 107,018" {
		t.Fatalf("reply=%q, want BTC 107,018", reply.Text)
	}
}
