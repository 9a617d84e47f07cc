package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnv_fallbacks(t *testing.T) {
	t.Setenv("AVATAR_TEST_INT", "not-a-number")
	t.Setenv("AVATAR_TEST_FLOAT", "2.5")
	t.Setenv("AVATAR_TEST_BOOL", "true")
	t.Setenv("AVATAR_TEST_DUR", "3s")

	if got := GetEnv("AVATAR_TEST_UNSET", "x"); got != "x" {
		t.Errorf("GetEnv fallback: got %q", got)
	}
	if got := GetEnvInt("AVATAR_TEST_INT", 7); got != 7 {
		t.Errorf("GetEnvInt invalid should fall back, got %d", got)
	}
	if got := GetEnvFloat("AVATAR_TEST_FLOAT", 0); got != 2.5 {
		t.Errorf("GetEnvFloat: got %v", got)
	}
	if got := GetEnvBool("AVATAR_TEST_BOOL", false); !got {
		t.Error("GetEnvBool: expected true")
	}
	if got := GetEnvDuration("AVATAR_TEST_DUR", 0); got != 3*time.Second {
		t.Errorf("GetEnvDuration: got %v", got)
	}
}

func TestFromEnv_defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("SKELETON_MAX_DEPTH", "")
	t.Setenv("TEXT_TO_MOTION_API_KEY", "")
	t.Setenv("text_to_motion__api_key", "legacy-key")

	s := FromEnv()
	if s.Port != "8080" {
		t.Errorf("Port: got %q", s.Port)
	}
	if s.MaxDepth != 12 {
		t.Errorf("MaxDepth: got %d", s.MaxDepth)
	}
	if s.MotionAPIKey != "legacy-key" {
		t.Errorf("MotionAPIKey should fall back to legacy key, got %q", s.MotionAPIKey)
	}
}

func TestLoad_dotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("AVATAR_TEST_FROM_FILE=hello\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AVATAR_TEST_FROM_FILE", "")
	os.Unsetenv("AVATAR_TEST_FROM_FILE")

	if err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := GetEnv("AVATAR_TEST_FROM_FILE", ""); got != "hello" {
		t.Errorf("expected value from .env, got %q", got)
	}
	if err := Load(filepath.Join(dir, "missing.env")); err == nil {
		t.Error("expected error for missing file")
	}
}
