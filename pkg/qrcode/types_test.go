package qrcode

import (
	"errors"
	"testing"
)

func TestNewShopDomain(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		input   string
		wantErr error
		wantVal string
	}{
		{name: "valid", input: " shop-a.example.com ", wantVal: "shop-a.example.com"},
		{name: "empty", input: "   ", wantErr: ErrInvalidShopDomain},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			result, err := NewShopDomain(tc.input)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected error %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.String() != tc.wantVal {
				t.Fatalf("expected %q, got %q", tc.wantVal, result.String())
			}
		})
	}
}

func TestNewCodeID(t *testing.T) {
	t.Parallel()
	_, err := NewCodeID("")
	if !errors.Is(err, ErrInvalidCodeID) {
		t.Fatalf("expected ErrInvalidCodeID, got %v", err)
	}
}

func TestNewCodeTitle(t *testing.T) {
	t.Parallel()
	_, err := NewCodeTitle("   ")
	if !errors.Is(err, ErrInvalidTitle) {
		t.Fatalf("expected ErrInvalidTitle, got %v", err)
	}
	title, err := NewCodeTitle(" Aisle QR ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if title.String() != "Aisle QR" {
		t.Fatalf("expected trimmed title, got %q", title.String())
	}
}

func TestParseDestination(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		input   string
		wantErr error
		want    Destination
	}{
		{name: "product", input: "product", want: DestinationProduct},
		{name: "checkout", input: "checkout", want: DestinationCheckout},
		{name: "padded", input: " product ", want: DestinationProduct},
		{name: "unknown", input: "cart", wantErr: ErrInvalidDestination},
		{name: "empty", input: "", wantErr: ErrInvalidDestination},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			destination, err := ParseDestination(tc.input)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected error %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if destination != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, destination)
			}
		})
	}
}

func TestNewPointBalance(t *testing.T) {
	t.Parallel()
	if _, err := NewPointBalance(-1); !errors.Is(err, ErrInvalidPointBalance) {
		t.Fatalf("expected ErrInvalidPointBalance, got %v", err)
	}
	balance, err := NewPointBalance(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance.Int64() != 0 {
		t.Fatalf("expected zero balance, got %d", balance.Int64())
	}
}

func TestCodePatchIsEmpty(t *testing.T) {
	t.Parallel()
	if !(CodePatch{}).IsEmpty() {
		t.Fatalf("expected empty patch")
	}
	reference := "p1"
	if (CodePatch{ProductReference: &reference}).IsEmpty() {
		t.Fatalf("expected non-empty patch")
	}
}
