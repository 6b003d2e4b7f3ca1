package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func writePayload(t *testing.T, content string) (path, sum string) {
	t.Helper()
	path = filepath.Join(t.TempDir(), "payload.vsix")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	h := sha256.Sum256([]byte(content))
	return path, hex.EncodeToString(h[:])
}

func TestCheckPassesOnMatch(t *testing.T) {
	path, sum := writePayload(t, "extension bytes")

	res, err := Check(path, sum, LevelError, zerolog.Nop())
	if err != nil || res != Pass {
		t.Fatalf("Check = %v, %v; want Pass, nil", res, err)
	}
}

func TestCheckAcceptsUppercaseDeclaration(t *testing.T) {
	path, sum := writePayload(t, "extension bytes")

	res, err := Check(path, strings.ToUpper(sum), LevelError, zerolog.Nop())
	if err != nil || res != Pass {
		t.Fatalf("Check = %v, %v; want Pass, nil", res, err)
	}
}

func TestCheckErrorLevelFailsOnMismatch(t *testing.T) {
	path, _ := writePayload(t, "extension bytes")
	declared := "deadbeef" + "00000000000000000000000000000000000000000000000000000000"

	_, err := Check(path, declared, LevelError, zerolog.Nop())
	var mismatch *Error
	if !errors.As(err, &mismatch) {
		t.Fatalf("got %v, want *integrity.Error", err)
	}
	if mismatch.Declared != declared || mismatch.Path != path {
		t.Errorf("mismatch = %+v", mismatch)
	}
}

func TestCheckWarnLevelContinuesOnMismatch(t *testing.T) {
	path, _ := writePayload(t, "extension bytes")
	declared := "deadbeef" + "00000000000000000000000000000000000000000000000000000000"

	res, err := Check(path, declared, LevelWarn, zerolog.Nop())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res != Warn {
		t.Errorf("result = %v, want Warn", res)
	}
}

func TestCheckNoneLevelSkipsHashing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.vsix")

	res, err := Check(missing, "irrelevant", LevelNone, zerolog.Nop())
	if err != nil || res != Pass {
		t.Fatalf("Check = %v, %v; want Pass without opening the file", res, err)
	}
}

func TestCheckReportsUnreadableFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.vsix")

	_, err := Check(missing, "irrelevant", LevelError, zerolog.Nop())
	if err == nil {
		t.Fatal("Check succeeded on a missing file")
	}
	var mismatch *Error
	if errors.As(err, &mismatch) {
		t.Error("read failure reported as checksum mismatch")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"":      LevelNone,
		"NONE":  LevelNone,
		"warn":  LevelWarn,
		"ERROR": LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("STRICT"); err == nil {
		t.Error("ParseLevel accepted STRICT")
	}
}
