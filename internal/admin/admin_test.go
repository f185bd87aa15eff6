package admin

import (
	"errors"
	"math"
	"testing"

	"dmcx/internal/ledger"
	"dmcx/internal/oracle"
)

func ptr[T any](v T) *T { return &v }

func TestApplyPatch(t *testing.T) {
	base := defaultSettings()

	t.Run("empty patch changes nothing", func(t *testing.T) {
		got := applyPatch(base, SettingsPatch{})
		if got != base {
			t.Fatalf("got %+v, want %+v", got, base)
		}
	})

	t.Run("merges only set fields", func(t *testing.T) {
		got := applyPatch(base, SettingsPatch{
			ApricotsPerDMC:     ptr(int64(20_000)),
			PlatformFeePercent: ptr(0.5),
		})
		if got.ApricotsPerDMC != 20_000 || got.PlatformFeePercent != 0.5 {
			t.Fatalf("patched fields wrong: %+v", got)
		}
		if got.SecretCipherWord != base.SecretCipherWord || got.CipherReward != base.CipherReward {
			t.Fatalf("unset fields changed: %+v", got)
		}
	})

	t.Run("cipher word is trimmed and uppercased", func(t *testing.T) {
		got := applyPatch(base, SettingsPatch{SecretCipherWord: ptr("  peach ")})
		if got.SecretCipherWord != "PEACH" {
			t.Fatalf("got %q, want PEACH", got.SecretCipherWord)
		}
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		got := applyPatch(base, SettingsPatch{
			ApricotsPerDMC:     ptr(int64(0)),
			PlatformFeePercent: ptr(-1.0),
			SecretCipherWord:   ptr("   "),
			CipherReward:       ptr(int64(-5)),
		})
		if got != base {
			t.Fatalf("invalid values applied: %+v", got)
		}
	})

	t.Run("zero fee is allowed", func(t *testing.T) {
		got := applyPatch(base, SettingsPatch{PlatformFeePercent: ptr(0.0)})
		if got.PlatformFeePercent != 0 {
			t.Fatalf("got %v, want 0", got.PlatformFeePercent)
		}
	})

	t.Run("ai toggle", func(t *testing.T) {
		got := applyPatch(base, SettingsPatch{AIEnabled: ptr(false)})
		if got.AIEnabled {
			t.Fatal("AIEnabled not patched to false")
		}
	})
}

func TestActorFor(t *testing.T) {
	s := NewService(nil, nil, []string{"root-user"}, nil)

	if a := s.ActorFor("root-user"); !a.Admin || a.UserID != "root-user" {
		t.Fatalf("allowlisted user: got %+v", a)
	}
	if a := s.ActorFor("someone-else"); a.Admin {
		t.Fatalf("non-allowlisted user granted admin: %+v", a)
	}
}

func TestForcePrice(t *testing.T) {
	feed := oracle.New("", "", 0, nil, nil)
	s := NewService(nil, feed, []string{"root-user"}, nil)
	admin := s.ActorFor("root-user")

	if _, err := s.ForcePrice(ledger.Actor{UserID: "u1"}, PricePump); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}

	got, err := s.ForcePrice(admin, PricePump)
	if err != nil || got != oracle.PumpFactor {
		t.Fatalf("pump: got %v, %v", got, err)
	}
	got, err = s.ForcePrice(admin, PriceDump)
	if err != nil || math.Abs(got-0.9775) > 1e-9 {
		t.Fatalf("dump after pump: got %v, %v", got, err)
	}
	got, err = s.ForcePrice(admin, PriceReset)
	if err != nil || got != 1.0 {
		t.Fatalf("reset: got %v, %v", got, err)
	}

	if _, err := s.ForcePrice(admin, PriceAction("moon")); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestDefaultSettings(t *testing.T) {
	def := defaultSettings()
	if def.ApricotsPerDMC != 10_000 || def.PlatformFeePercent != 1.0 ||
		def.SecretCipherWord != "APRICOT" || def.CipherReward != 50_000 || !def.AIEnabled {
		t.Fatalf("unexpected defaults: %+v", def)
	}
}
