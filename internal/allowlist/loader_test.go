package allowlist

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/SteelMorgan/telemetry-ingest/internal/domain"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func TestLoad_NormalizesNamesAndKeys(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "uhf_config.json", `{"801": [" RSSI ", "Temp", "rssi", ""], "bogus": ["x"]}`)
	writeFile(t, dir, "eps_config.yaml", "\"205\":\n  - Bus_Voltage\n  - btry_temp_1\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	uhf, ok := cfg.Lookup(domain.CategoryUHF, 801)
	if !ok {
		t.Fatalf("expected uhf entry for 801")
	}
	if got, want := uhf.Params(), []string{"rssi", "temp"}; !reflect.DeepEqual(got, want) {
		t.Errorf("uhf params = %v, want %v", got, want)
	}
	if !uhf.Contains("rssi") || uhf.Contains("RSSI") {
		t.Errorf("Contains should match lowercase names only")
	}

	if !cfg.HasTMID(domain.CategoryEPS, 205) {
		t.Errorf("expected eps entry for 205")
	}
	eps, _ := cfg.Lookup(domain.CategoryEPS, 205)
	if !eps.Contains("bus_voltage") {
		t.Errorf("expected bus_voltage to be allowed, got %v", eps.Params())
	}

	// obc file is missing: empty allow-list, not an error
	if ids := cfg.TMIDs(domain.CategoryOBC); len(ids) != 0 {
		t.Errorf("expected empty obc allow-list, got %v", ids)
	}
}

func TestLoad_MalformedFileYieldsEmptyList(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "obc_config.json", `{"501": [`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HasTMID(domain.CategoryOBC, 501) {
		t.Errorf("malformed file should not produce entries")
	}
}

func TestLoad_MissingDirectoryFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestLoad_PathIsFileFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "plain.txt", "x")
	if _, err := Load(filepath.Join(dir, "plain.txt")); err == nil {
		t.Fatalf("expected error when path is a file")
	}
}

func TestFromMap(t *testing.T) {
	cfg := FromMap(map[domain.Category]map[string][]string{
		domain.CategoryUHF: {"801": {"rssi"}, " 802 ": {"adc"}, "x": {"y"}},
	})

	if got, want := cfg.TMIDs(domain.CategoryUHF), []int{801, 802}; !reflect.DeepEqual(got, want) {
		t.Errorf("TMIDs = %v, want %v", got, want)
	}
	if cfg.HasTMID(domain.CategoryEPS, 801) {
		t.Errorf("tm_id must be scoped to its subsystem")
	}

	var nilCfg *Config
	if nilCfg.HasTMID(domain.CategoryUHF, 801) {
		t.Errorf("nil config should have no entries")
	}
}

func TestLoad_ShippedConfigs(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	for _, sub := range []domain.Category{domain.CategoryEPS, domain.CategoryOBC, domain.CategoryUHF} {
		if len(cfg.TMIDs(sub)) == 0 {
			t.Errorf("no tm_ids configured for %s", sub)
		}
	}

	list, ok := cfg.Lookup(domain.CategoryUHF, 801)
	if !ok || !list.Contains("rssi") {
		t.Error("uhf 801 should allow rssi")
	}
}
