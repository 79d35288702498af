package vault

import (
	"bytes"
	"errors"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	plaintext := []byte(`{"listio:lists":"[]"}`)

	sealed, err := Seal(plaintext, "correct horse")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatal("sealed output contains plaintext")
	}

	got, err := Open(sealed, "correct horse")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("got %q, want %q", got, plaintext)
	}
}

func TestOpenWrongPassphrase(t *testing.T) {
	sealed, err := Seal([]byte("secret"), "right")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := Open(sealed, "wrong"); err == nil {
		t.Error("expected error with wrong passphrase")
	}
}

func TestOpenTooSmall(t *testing.T) {
	if _, err := Open([]byte("short"), "x"); !errors.Is(err, ErrCorrupt) {
		t.Errorf("err = %v, want ErrCorrupt", err)
	}
}

func TestVaultStrings(t *testing.T) {
	v := New("pass")

	sealed, err := v.SealString("eyJhbGciOi.token")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !IsSealed(sealed) {
		t.Fatalf("expected sealed prefix, got %q", sealed)
	}

	got, err := v.OpenString(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got != "eyJhbGciOi.token" {
		t.Errorf("got %q", got)
	}

	// Values written before sealing was enabled pass through.
	if got, _ := v.OpenString("plain-token"); got != "plain-token" {
		t.Errorf("plain passthrough = %q", got)
	}
}

func TestDisabledVault(t *testing.T) {
	v := New("")
	if v.Enabled() {
		t.Fatal("expected disabled vault")
	}
	s, _ := v.SealString("abc")
	if s != "abc" {
		t.Errorf("disabled seal = %q", s)
	}

	sealed, _ := New("pass").SealString("abc")
	if _, err := v.OpenString(sealed); !errors.Is(err, ErrNoPassphrase) {
		t.Errorf("err = %v, want ErrNoPassphrase", err)
	}
}
