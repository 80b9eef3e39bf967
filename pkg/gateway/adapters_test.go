package gateway

import (
	"net"
	"testing"

	"github.com/dbehnke/ysf-gateway/pkg/reflectors"
	"github.com/dbehnke/ysf-gateway/pkg/ysf"
)

type fakeFCS struct {
	fakeRepeater
	room    string
	unlinks int
}

func (f *fakeFCS) WriteLink(room string) error { f.room = room; return nil }
func (f *fakeFCS) WriteUnlink() error          { f.unlinks++; f.room = ""; return nil }

func TestFCSAdapter_LinksRoom(t *testing.T) {
	fcs := &fakeFCS{}
	g, err := New(Config{Callsign: "GW1ABC"}, Networks{
		Repeater: &fakeRepeater{},
		FCS:      fcs,
		Directories: map[reflectors.NetworkType]*reflectors.Directory{
			reflectors.TypeFCS: loadDirectory(t, reflectors.TypeFCS, "FCS00100;Room 100;First room\nFCS00290;Room 290;Other\n", nil),
		},
	}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !g.Connect(SelectFCS) || !g.Connect(100) {
		t.Fatal("link failed")
	}
	if fcs.room != "FCS00100" {
		t.Errorf("room = %q", fcs.room)
	}
	if !g.Connect(290) {
		t.Fatal("relink failed")
	}
	if fcs.room != "FCS00290" || fcs.unlinks != 1 {
		t.Errorf("room = %q unlinks = %d", fcs.room, fcs.unlinks)
	}
}

func TestBridgeAdapter_SendsConnectRequest(t *testing.T) {
	link := &fakeYSF{}
	bridge := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 42022}
	g, err := New(Config{Callsign: "GW1ABC"}, Networks{
		Repeater:   &fakeRepeater{},
		YSF:        link,
		NXDNBridge: bridge,
		Directories: map[reflectors.NetworkType]*reflectors.Directory{
			reflectors.TypeNXDN: loadDirectory(t, reflectors.TypeNXDN, "65000;WW NXDN;Worldwide\n", nil),
		},
	}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !g.Connect(SelectBridge) || !g.Connect(65000) {
		t.Fatal("link failed")
	}
	if link.dest != bridge || link.polls != 1 {
		t.Errorf("dest = %v polls = %d", link.dest, link.polls)
	}
	out := link.take()
	if len(out) == 0 {
		t.Fatal("no connect request sent")
	}
	for i, f := range out {
		fich, ok := ysf.DecodeFrame(f)
		if !ok || fich.DT != ysf.DTDataFR {
			t.Errorf("frame %d is not a data frame", i)
		}
	}
	if nt, dst := g.Active(); nt != reflectors.TypeNXDN || dst != 65000 {
		t.Errorf("Active = %v %d", nt, dst)
	}
}

func TestBridgeAdapter_RejectsNonNumericTalkgroup(t *testing.T) {
	a := &bridgeAdapter{kind: reflectors.TypeP25, net: &fakeYSF{}, addr: &net.UDPAddr{}, request: func(int) [][]byte { return nil }}
	if err := a.Link(&reflectors.Reflector{ID: "TG"}); err == nil {
		t.Error("expected an error for a non numeric talkgroup")
	}
}

func TestYSFAdapter_NeedsAddress(t *testing.T) {
	a := &ysfAdapter{net: &fakeYSF{}}
	if err := a.Link(&reflectors.Reflector{ID: "1"}); err == nil {
		t.Error("expected an error without an address")
	}
}
