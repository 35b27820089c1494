package protocol

import "testing"

func TestParseInbound(t *testing.T) {
	tests := []struct {
		line     string
		kind     InboundKind
		username string
		typing   bool
	}{
		{"USERNAME|Alice", InboundUsername, "Alice", false},
		{"USERNAME|  Bob  \r\n", InboundUsername, "Bob", false},
		{"USERNAME|", InboundText, "", false},
		{"USERNAME|Al|ice,Eve", InboundUsername, "Al_ice_Eve", false},
		{"PONG", InboundPong, "", false},
		{"PONG|10:00:00", InboundPong, "", false},
		{"PONGS are great", InboundText, "", false},
		{"TYPING|Alice|true", InboundTyping, "Alice", true},
		{"TYPING|10:00:00|Alice|false", InboundTyping, "Alice", false},
		{"TYPING|Alice|maybe", InboundText, "", false},
		{"TYPING|Alice", InboundText, "", false},
		{"hello", InboundText, "", false},
		{"/w Bob hi", InboundText, "", false},
	}

	for _, tt := range tests {
		got := ParseInbound(tt.line)
		if got.Kind != tt.kind {
			t.Errorf("ParseInbound(%q).Kind = %v, want %v", tt.line, got.Kind, tt.kind)
			continue
		}
		if got.Username != tt.username {
			t.Errorf("ParseInbound(%q).Username = %q, want %q", tt.line, got.Username, tt.username)
		}
		if got.Typing != tt.typing {
			t.Errorf("ParseInbound(%q).Typing = %v, want %v", tt.line, got.Typing, tt.typing)
		}
	}
}

func TestHandshake(t *testing.T) {
	in := ParseInbound(Handshake("Carol"))
	if in.Kind != InboundUsername || in.Username != "Carol" {
		t.Errorf("handshake round trip = %+v", in)
	}
}

func TestNormalizedUsernameSurvivesEncoding(t *testing.T) {
	name := ParseInbound("USERNAME|Al|ice,Eve").Username

	chat := Decode(Encode(Chat(name, "hello")))
	if chat.Type != TypeChat || chat.Field(0) != name || chat.Field(1) != "hello" {
		t.Errorf("Decoded chat = %+v", chat)
	}

	users := Decode(Encode(UserList([]string{"Bob", name}))).Users()
	if len(users) != 2 || users[1] != name {
		t.Errorf("Users() = %q", users)
	}
}
