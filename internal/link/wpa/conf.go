package wpa

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nerrad567/gray-logic-edge/internal/link"
)

// confFileName is the supplicant configuration written under StateDir.
const confFileName = "wpa_supplicant.conf"

const (
	// pskHexLength is the length of a raw 256-bit PSK in hex.
	pskHexLength = 64

	// minPassphraseLength is the WPA-PSK passphrase minimum (IEEE 802.11i).
	minPassphraseLength = 8
)

// renderConf produces a wpa_supplicant.conf for a single station network.
//
// The SSID is written hex-encoded so any byte sequence survives. A
// 64-character password is taken as a raw hex PSK, which is how the
// supplicant treats it; shorter ones are quoted passphrases.
func renderConf(ctrlDir string, creds link.Credentials) (string, error) {
	netBlock, err := networkFields(creds)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ctrl_interface=DIR=%s\n", ctrlDir)
	b.WriteString("update_config=0\n")
	b.WriteString("ap_scan=1\n\n")
	b.WriteString("network={\n")
	for _, f := range netBlock {
		fmt.Fprintf(&b, "\t%s=%s\n", f[0], f[1])
	}
	b.WriteString("}\n")
	return b.String(), nil
}

// networkFields returns the key/value pairs of a network block. The
// same values feed set_network when configuring over the control socket.
func networkFields(creds link.Credentials) ([][2]string, error) {
	fields := [][2]string{
		{"ssid", hex.EncodeToString([]byte(creds.SSID))},
		{"scan_ssid", "1"},
	}

	switch {
	case creds.Password == "":
		fields = append(fields, [2]string{"key_mgmt", "NONE"})
	case len(creds.Password) == pskHexLength:
		if _, err := hex.DecodeString(creds.Password); err != nil {
			return nil, fmt.Errorf("%w: 64-byte password must be a hex PSK", ErrUnsupportedCredential)
		}
		fields = append(fields,
			[2]string{"key_mgmt", "WPA-PSK"},
			[2]string{"psk", creds.Password},
		)
	case len(creds.Password) < minPassphraseLength:
		return nil, fmt.Errorf("%w: WPA-PSK passphrase is %d bytes, need at least %d",
			ErrUnsupportedCredential, len(creds.Password), minPassphraseLength)
	default:
		if strings.ContainsAny(creds.Password, "\n\r\x00") {
			return nil, fmt.Errorf("%w: password contains control characters", ErrUnsupportedCredential)
		}
		fields = append(fields,
			[2]string{"key_mgmt", "WPA-PSK"},
			[2]string{"psk", `"` + creds.Password + `"`},
		)
	}
	return fields, nil
}

// writeConf writes the configuration file readable only by its owner.
func writeConf(dir, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating state dir: %w", err)
	}

	path := filepath.Join(dir, confFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("installing %s: %w", path, err)
	}
	return path, nil
}
