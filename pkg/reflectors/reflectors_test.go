package reflectors

import (
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dbehnke/ysf-gateway/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

func writeHosts(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hosts.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write hosts: %v", err)
	}
	return path
}

func loaded(t *testing.T, d *Directory) {
	t.Helper()
	if err := d.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !d.Reload() {
		t.Fatal("Reload returned false")
	}
}

const ysfHosts = `# YSF hosts
00003;charlie;Third room;127.0.0.1;42000;001
00001;Alpha;First room;127.0.0.1;42001;002
00002;bravo;Second;127.0.0.1;42002;003
00004;short
`

func TestLoad_SortsCaseInsensitively(t *testing.T) {
	d := New(Config{Path: writeHosts(t, ysfHosts), Type: TypeYSF}, testLogger())
	loaded(t, d)

	cur := d.Current()
	if len(cur) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(cur))
	}
	want := []string{"Alpha", "bravo", "charlie"}
	for i, r := range cur {
		if r.TrimmedName() != want[i] {
			t.Errorf("entry %d = %q, want %q", i, r.TrimmedName(), want[i])
		}
		if len(r.Name) != NameLength || len(r.Description) != DescLength {
			t.Errorf("entry %d not padded: %q %q", i, r.Name, r.Description)
		}
	}
	if cur[0].ID != "1" {
		t.Errorf("numeric id should drop leading zeros, got %q", cur[0].ID)
	}
	if cur[0].Addr == nil || cur[0].Addr.Port != 42001 {
		t.Errorf("unexpected address %v", cur[0].Addr)
	}
}

func TestLoad_EmptyKeepsActiveList(t *testing.T) {
	path := writeHosts(t, ysfHosts)
	d := New(Config{Path: path, Type: TypeYSF}, testLogger())
	loaded(t, d)

	if err := os.WriteFile(path, []byte("# nothing\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := d.Load(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Load on empty file = %v, want ErrEmpty", err)
	}
	if d.Reload() {
		t.Fatal("Reload should fail with nothing pending")
	}
	if d.Len() != 3 {
		t.Fatalf("active list changed: %d entries", d.Len())
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	d := New(Config{Path: filepath.Join(t.TempDir(), "nope"), Type: TypeDMR}, testLogger())
	if err := d.Load(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestLoad_ParrotEntry(t *testing.T) {
	d := New(Config{Path: "", Type: TypeYSF}, testLogger())
	d.SetParrot(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 42012})
	loaded(t, d)

	r := d.FindByID(ParrotID)
	if r == nil {
		t.Fatal("parrot entry missing")
	}
	if r.Name != ParrotName || r.Type != TypeYSF || r.Addr.Port != 42012 {
		t.Errorf("unexpected parrot entry %+v", r)
	}
}

func TestLoad_MakeUpper(t *testing.T) {
	d := New(Config{Path: writeHosts(t, ysfHosts), Type: TypeYSF, MakeUpper: true}, testLogger())
	loaded(t, d)

	if r := d.FindByName("bravo"); r == nil || r.TrimmedName() != "BRAVO" {
		t.Fatalf("FindByName with upper-casing failed: %+v", r)
	}
}

func TestParseFormats(t *testing.T) {
	tests := []struct {
		name    string
		typ     NetworkType
		content string
		id      string
		rname   string
		count   string
		option  int
	}{
		{"fcs", TypeFCS, "FCS00290;FCS-290;Germany\n", "290", "FCS-290", "000", 0},
		{"nxdn", TypeNXDN, "65000;NXDN World;Worldwide\n", "65000", "NXDN World", "000", 0},
		{"p25", TypeP25, "10200;P25 NA;North America\n", "10200", "P25 NA", "000", 0},
		{"dmr", TypeDMR, "91;0;7;Worldwide;World wide\n", "91", "Worldwide", "007", 0},
		{"dmr private", TypeDMR, "4000;2;12;Unlink;Disconnect\n", "4000", "Unlink", "012", OptionPrivateCall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(Config{Path: writeHosts(t, tt.content), Type: tt.typ}, testLogger())
			loaded(t, d)
			r := d.FindByID(tt.id)
			if r == nil {
				t.Fatalf("id %s not found", tt.id)
			}
			if r.TrimmedName() != tt.rname || r.Count != tt.count || r.Option != tt.option || r.Type != tt.typ {
				t.Errorf("unexpected entry %+v", r)
			}
		})
	}
}

func TestFindByName_PadsQuery(t *testing.T) {
	d := New(Config{Path: writeHosts(t, ysfHosts), Type: TypeYSF}, testLogger())
	loaded(t, d)

	if r := d.FindByName("charlie"); r == nil || r.ID != "3" {
		t.Fatalf("FindByName(charlie) = %+v", r)
	}
	if r := d.FindByName("Charlie"); r != nil {
		t.Fatal("name lookup is exact without MakeUpper")
	}
	if r := d.FindByID("99"); r != nil {
		t.Fatal("unknown id should return nil")
	}
}

func TestSearch_SubstringAnywhere(t *testing.T) {
	hosts := `1;ABC Room;d;127.0.0.1;1;x
2;xxabcxx;d;127.0.0.1;2;x
3;Other;d;127.0.0.1;3;x
4;AB C;d;127.0.0.1;4;x
`
	d := New(Config{Path: writeHosts(t, hosts), Type: TypeYSF}, testLogger())
	loaded(t, d)

	found := d.Search("abc  ")
	if len(found) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(found))
	}
	if found[0].ID != "1" || found[1].ID != "2" {
		t.Errorf("matches not sorted by name: %s, %s", found[0].ID, found[1].ID)
	}

	if got := d.Search("    "); len(got) != 0 {
		t.Errorf("blank query matched %d entries", len(got))
	}
}

func TestSearch_NoDuplicates(t *testing.T) {
	d := New(Config{Path: writeHosts(t, "1;AAAA;d;127.0.0.1;1;x\n"), Type: TypeYSF}, testLogger())
	loaded(t, d)

	if got := d.Search("A"); len(got) != 1 {
		t.Fatalf("repeated substring should match once, got %d", len(got))
	}
}

func TestClock_ReloadsOnInterval(t *testing.T) {
	path := writeHosts(t, "91;0;0;Worldwide;World\n")
	d := New(Config{Path: path, Type: TypeDMR, ReloadTime: time.Minute}, testLogger())
	loaded(t, d)

	if err := os.WriteFile(path, []byte("91;0;0;Worldwide;World\n3100;0;0;USA;Nationwide\n"), 0644); err != nil {
		t.Fatal(err)
	}
	d.Clock(30000)
	if d.Len() != 1 {
		t.Fatal("reloaded before the interval elapsed")
	}
	d.Clock(30000)
	if d.Len() != 2 {
		t.Fatalf("expected reload to pick up 2 entries, got %d", d.Len())
	}
}

func TestCompareNames(t *testing.T) {
	if compareNames("abc", "ABD") >= 0 {
		t.Error("abc should sort before ABD")
	}
	if compareNames("Zed", "zed") != 0 {
		t.Error("case should not matter")
	}
	if !strings.HasPrefix(pad("toolongname-exceeding", NameLength), "toolongname-exce") {
		t.Error("pad should truncate to the fixed width")
	}
}
