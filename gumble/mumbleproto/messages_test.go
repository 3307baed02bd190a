package mumbleproto

import "testing"

func TestVersionRoundTrip(t *testing.T) {
	t.Parallel()

	in := &Version{Version: 0x00010204, Release: "1.2.4", OS: "Linux", OSVersion: "6.1"}
	out := &Version{}
	if err := out.Unmarshal(in.Marshal()); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if *out != *in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestPingRoundTrip(t *testing.T) {
	t.Parallel()

	in := &Ping{Timestamp: 123456789, Good: 10, Late: 1, Lost: 2, Resync: 0, UDPPackets: 5, TCPPackets: 6, TCPPingAvg: 12.5}
	out := &Ping{}
	if err := out.Unmarshal(in.Marshal()); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if *out != *in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestRejectUnmarshal(t *testing.T) {
	t.Parallel()

	var b []byte
	b = appendVarint(b, 1, 6) // ServerFull
	b = appendString(b, 2, "server is full")

	out := &Reject{}
	if err := out.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Type != "ServerFull" {
		t.Errorf("Type = %q, want ServerFull", out.Type)
	}
	if out.Reason != "server is full" {
		t.Errorf("Reason = %q, want %q", out.Reason, "server is full")
	}
}

func TestServerSyncUnmarshal(t *testing.T) {
	t.Parallel()

	var b []byte
	b = appendVarint(b, 1, 42)
	b = appendVarint(b, 2, 72000)
	b = appendString(b, 3, "welcome")
	b = appendVarint(b, 4, 0xFFFFFFFF)

	out := &ServerSync{}
	if err := out.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Session != 42 || out.MaxBandwidth != 72000 || out.WelcomeText != "welcome" || out.Permissions != 0xFFFFFFFF {
		t.Errorf("got %+v", out)
	}
}

func TestChannelStateRoundTrip(t *testing.T) {
	t.Parallel()

	name := "Lobby"
	parent := uint32(0)
	in := &ChannelState{ChannelID: 3, Parent: &parent, Name: &name}
	out := &ChannelState{}
	if err := out.Unmarshal(in.Marshal()); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.ChannelID != 3 || out.Name == nil || *out.Name != "Lobby" || out.Parent == nil || *out.Parent != 0 {
		t.Errorf("got %+v", out)
	}
}

func TestUserStateRoundTrip(t *testing.T) {
	t.Parallel()

	session := uint32(12)
	mute := true
	in := &UserState{Session: &session, Mute: &mute}
	out := &UserState{}
	if err := out.Unmarshal(in.Marshal()); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Session == nil || *out.Session != 12 {
		t.Fatalf("Session = %v, want 12", out.Session)
	}
	if out.Mute == nil || !*out.Mute {
		t.Fatalf("Mute = %v, want true", out.Mute)
	}
	if out.Deaf != nil {
		t.Fatalf("Deaf = %v, want nil (unset field must stay nil)", out.Deaf)
	}
}

func TestTextMessageRoundTrip(t *testing.T) {
	t.Parallel()

	in := &TextMessage{Session: []uint32{1, 2}, Message: "hello"}
	out := &TextMessage{}
	if err := out.Unmarshal(in.Marshal()); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(out.Session) != 2 || out.Session[0] != 1 || out.Session[1] != 2 {
		t.Fatalf("Session = %v", out.Session)
	}
	if out.Message != "hello" {
		t.Fatalf("Message = %q, want hello", out.Message)
	}
}

func TestChannelRemoveRoundTrip(t *testing.T) {
	t.Parallel()

	in := &ChannelRemove{ChannelID: 9}
	out := &ChannelRemove{}
	if err := out.Unmarshal(in.Marshal()); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.ChannelID != 9 {
		t.Fatalf("ChannelID = %d, want 9", out.ChannelID)
	}
}

func TestServerConfigUnmarshal(t *testing.T) {
	t.Parallel()

	var b []byte
	b = appendVarint(b, 1, 128000)
	b = appendBool(b, 3, true)
	b = appendVarint(b, 4, 256)

	out := &ServerConfig{}
	if err := out.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.MaxBandwidth != 128000 || !out.AllowHTML || out.MessageLength != 256 {
		t.Errorf("got %+v", out)
	}
}

func TestUnknownFieldIsSkipped(t *testing.T) {
	t.Parallel()

	var b []byte
	b = appendString(b, 99, "from a newer server")
	b = appendVarint(b, 1, 1)

	out := &ServerSync{}
	if err := out.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Session != 1 {
		t.Fatalf("Session = %d, want 1", out.Session)
	}
}

func TestUserStateKeepsUnknownFields(t *testing.T) {
	t.Parallel()

	var b []byte
	b = appendVarint(b, 1, 7)
	b = appendString(b, 99, "from a newer server")

	out := &UserState{}
	if err := out.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	raw, ok := out.Unknown[99]
	if !ok {
		t.Fatal("field 99 should be preserved in Unknown")
	}
	if len(raw) == 0 {
		t.Fatal("preserved field 99 is empty")
	}
}
