package wpa

import (
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-edge/internal/link"
)

func TestRenderConf(t *testing.T) {
	tests := []struct {
		name    string
		creds   link.Credentials
		want    []string
		notWant []string
	}{
		{
			name:    "open network",
			creds:   link.Credentials{SSID: "cafe"},
			want:    []string{"ssid=63616665", "key_mgmt=NONE"},
			notWant: []string{"psk="},
		},
		{
			name:  "passphrase",
			creds: link.Credentials{SSID: "home", Password: `pa"ss word`},
			want:  []string{"ssid=686f6d65", "key_mgmt=WPA-PSK", `psk="pa"ss word"`},
		},
		{
			name:  "raw hex psk",
			creds: link.Credentials{SSID: "home", Password: strings.Repeat("ab", 32)},
			want:  []string{"psk=" + strings.Repeat("ab", 32)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := renderConf("/run/wpa_supplicant", tt.creds)
			if err != nil {
				t.Fatalf("renderConf() error = %v", err)
			}
			if !strings.HasPrefix(got, "ctrl_interface=DIR=/run/wpa_supplicant\n") {
				t.Errorf("missing ctrl_interface line:\n%s", got)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("output missing %q:\n%s", w, got)
				}
			}
			for _, nw := range tt.notWant {
				if strings.Contains(got, nw) {
					t.Errorf("output contains %q:\n%s", nw, got)
				}
			}
		})
	}
}

func TestRenderConf_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{"64 bytes not hex", strings.Repeat("z", 64)},
		{"newline", "line1\nline2"},
		{"passphrase under 8 bytes", "short7!"},
		{"one byte passphrase", "p"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := renderConf("/run", link.Credentials{SSID: "x", Password: tt.password})
			if !errors.Is(err, ErrUnsupportedCredential) {
				t.Errorf("error = %v, want ErrUnsupportedCredential", err)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	out := "bssid=aa:bb:cc:dd:ee:ff\nfreq=2437\nssid=a=b\nwpa_state=COMPLETED\ngarbage line\n"
	got := parseStatus(out)

	if got["wpa_state"] != "COMPLETED" {
		t.Errorf("wpa_state = %q, want COMPLETED", got["wpa_state"])
	}
	if got["ssid"] != "a=b" {
		t.Errorf("ssid = %q, want a=b", got["ssid"])
	}
	if _, ok := got["garbage line"]; ok {
		t.Error("line without '=' should be ignored")
	}
}

func TestParseRoutes(t *testing.T) {
	table := "Iface\tDestination\tGateway\n" +
		"eth0\t00000000\t0101A8C0\n" +
		"wlan0\t00000000\t0104A8C0\n"

	gw, err := parseRoutes(strings.NewReader(table), "wlan0")
	if err != nil {
		t.Fatalf("parseRoutes() error = %v", err)
	}
	if gw.String() != "192.168.4.1" {
		t.Errorf("gateway = %s, want 192.168.4.1", gw)
	}

	if _, err := parseRoutes(strings.NewReader(table), "wlan1"); err == nil {
		t.Error("expected error for interface without default route")
	}
}

func TestParseResolv(t *testing.T) {
	got, err := parseResolv(strings.NewReader("nameserver 9.9.9.9\nnameserver bogus\noptions edns0\n"))
	if err != nil {
		t.Fatalf("parseResolv() error = %v", err)
	}
	if len(got) != 1 || got[0].String() != "9.9.9.9" {
		t.Errorf("nameservers = %v, want [9.9.9.9]", got)
	}
}
