package model

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestKindFromCode(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		want    ServiceKind
		wantErr bool
	}{
		{name: "weather", code: 1, want: KindWeather},
		{name: "blog", code: 2, want: KindBlog},
		{name: "manga", code: 3, want: KindManga},
		{name: "zero", code: 0, wantErr: true},
		{name: "out of range", code: 99, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KindFromCode(tt.code)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownKind) {
					t.Fatalf("expected ErrUnknownKind, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("KindFromCode(%d) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestKindFromName(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		want    ServiceKind
		wantErr bool
	}{
		{name: "exact", arg: "WEATHER", want: KindWeather},
		{name: "lowercase", arg: "blog", want: KindBlog},
		{name: "padded", arg: "  manga ", want: KindManga},
		{name: "unknown", arg: "NEWS", wantErr: true},
		{name: "empty", arg: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KindFromName(tt.arg)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownKind) {
					t.Fatalf("expected ErrUnknownKind, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("KindFromName(%q) = %v, want %v", tt.arg, got, tt.want)
			}
		})
	}
}

func TestKindRoundTrip(t *testing.T) {
	for _, k := range Kinds() {
		got, err := KindFromName(k.String())
		if err != nil {
			t.Fatalf("round trip %v: %v", k, err)
		}
		if got != k {
			t.Errorf("round trip %v: got %v", k, got)
		}
	}
}

func TestMulti(t *testing.T) {
	want := map[ServiceKind]bool{
		KindWeather: false,
		KindBlog:    false,
		KindManga:   true,
	}
	got := make(map[ServiceKind]bool)
	for _, k := range Kinds() {
		got[k] = k.Multi()
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Multi mismatch (-want +got):\n%s", diff)
	}
}
