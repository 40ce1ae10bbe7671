package sinocastel

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
)

func TestBuildAck(t *testing.T) {
	want, err := hex.DecodeString("40402900043231384C314542323032333030303536310000009001FFFFFFFF0000F185DA689F2B0D0A")
	if err != nil {
		t.Fatalf("bad literal: %v", err)
	}

	tests := []struct {
		name   string
		packet *Packet
		want   []byte
	}{
		{name: "login", packet: &Packet{Header: "1001"}, want: want},
		{name: "unknown", packet: &Packet{Header: "9999"}},
		{name: "reply header", packet: &Packet{Header: "9001"}},
		{name: "padded header", packet: &Packet{Header: "1001 "}},
		{name: "nil packet", packet: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildAck(tt.packet)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("BuildAck() = %x, want %x", got, tt.want)
			}
		})
	}
}

func TestBuildAckOnlyForLogin(t *testing.T) {
	for i := 0; i <= 0xFFFF; i++ {
		header := fmt.Sprintf("%04x", i)
		got := BuildAck(&Packet{Header: header})
		if header == HeaderLogin {
			if len(got) != 41 {
				t.Fatalf("login ack length = %d, want 41", len(got))
			}
			continue
		}
		if got != nil {
			t.Fatalf("BuildAck(%s) = %x, want nil", header, got)
		}
	}
}

func TestBuildAckReturnsCopy(t *testing.T) {
	first := LoginAck()
	first[0] = 0x00
	second := LoginAck()
	if second[0] != 0x40 {
		t.Fatalf("ack literal was mutated through a returned slice")
	}
	if !strings.EqualFold(hex.EncodeToString(second), loginAckHex) {
		t.Fatalf("LoginAck() = %x", second)
	}
}

func TestLoginAckFraming(t *testing.T) {
	ack := LoginAck()
	n, token, err := SplitFrames(ack, false)
	if err != nil {
		t.Fatalf("SplitFrames() error: %v", err)
	}
	if n != len(ack) || !bytes.Equal(token, ack) {
		t.Fatalf("SplitFrames() = %d %x, want the whole ack", n, token)
	}
}
