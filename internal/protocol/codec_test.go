package protocol

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// TestEncodeLayout verifies the TYPE|timestamp|fields wire layout.
func TestEncodeLayout(t *testing.T) {
	ts := time.Date(2024, 5, 1, 9, 8, 7, 0, time.Local)

	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"chat", Message{Type: TypeChat, Timestamp: ts, Fields: []string{"Alice", "hello"}}, "CHAT|09:08:07|Alice|hello\n"},
		{"private", Message{Type: TypePrivate, Timestamp: ts, Fields: []string{"Bob", "Alice", "hi"}}, "PRIVATE|09:08:07|Bob|Alice|hi\n"},
		{"system", Message{Type: TypeSystem, Timestamp: ts, Fields: []string{"Welcome"}}, "SYSTEM|09:08:07|Welcome\n"},
		{"empty roster", Message{Type: TypeUserList, Timestamp: ts, Fields: []string{""}}, "USERLIST|09:08:07|\n"},
		{"ping", Message{Type: TypePing, Timestamp: ts}, "PING|09:08:07\n"},
		{"raw", Raw("just text"), "just text\n"},
		{"newline in field", Message{Type: TypeChat, Timestamp: ts, Fields: []string{"Alice", "a\nb"}}, "CHAT|09:08:07|Alice|a b\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Encode(tt.msg); got != tt.want {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestDecodeKnownTypes verifies every message type survives a round trip
// through the line format.
func TestDecodeKnownTypes(t *testing.T) {
	msgs := []Message{
		Chat("Alice", "hello"),
		Private("Bob", "Alice", "psst"),
		Join("Alice joined the chat"),
		Leave("Alice left the chat"),
		System("Welcome"),
		UserList([]string{"Alice", "Bob"}),
		Typing("Alice", true),
		Ping(),
		Pong(),
	}

	for _, m := range msgs {
		t.Run(m.Type.String(), func(t *testing.T) {
			got := Decode(Encode(m))
			if got.Type != m.Type {
				t.Fatalf("Decode type = %v, want %v", got.Type, m.Type)
			}
			if len(got.Fields) != len(m.Fields) {
				t.Fatalf("Decode fields = %q, want %q", got.Fields, m.Fields)
			}
			for i := range m.Fields {
				if got.Fields[i] != m.Fields[i] {
					t.Errorf("field %d = %q, want %q", i, got.Fields[i], m.Fields[i])
				}
			}
			if got.Timestamp.Format(TimeLayout) != m.Timestamp.Format(TimeLayout) {
				t.Errorf("timestamp = %v, want %v", got.Timestamp, m.Timestamp)
			}
		})
	}
}

// TestDecodeKeepsPipesInLastField verifies the bounded split.
func TestDecodeKeepsPipesInLastField(t *testing.T) {
	got := Decode("CHAT|10:00:00|Alice|a|b|c")
	if got.Type != TypeChat {
		t.Fatalf("Type = %v, want CHAT", got.Type)
	}
	if got.Field(0) != "Alice" || got.Field(1) != "a|b|c" {
		t.Errorf("Fields = %q", got.Fields)
	}

	got = Decode("PRIVATE|10:00:00|Bob|Alice|x|y")
	if got.Field(2) != "x|y" {
		t.Errorf("private content = %q, want %q", got.Field(2), "x|y")
	}
}

// TestDecodeFallsBackToRaw verifies malformed input never fails.
func TestDecodeFallsBackToRaw(t *testing.T) {
	lines := []string{
		"hello world",
		"",
		"UNKNOWN|10:00:00|x",
		"CHAT|10:00:00|only-sender",
		"PRIVATE|10:00:00|Bob|Alice",
		"SYSTEM",
	}

	for _, line := range lines {
		got := Decode(line)
		if got.Type != TypeRaw {
			t.Errorf("Decode(%q).Type = %v, want RAW", line, got.Type)
		}
		if got.Field(0) != line {
			t.Errorf("Decode(%q) raw content = %q", line, got.Field(0))
		}
		if got.Text() != line {
			t.Errorf("Decode(%q).Text() = %q", line, got.Text())
		}
	}
}

// TestDecodeBarePing verifies liveness lines without timestamps.
func TestDecodeBarePing(t *testing.T) {
	for _, line := range []string{"PING", "PONG\r\n"} {
		got := Decode(line)
		if got.Type != TypePing && got.Type != TypePong {
			t.Errorf("Decode(%q).Type = %v", line, got.Type)
		}
		if len(got.Fields) != 0 {
			t.Errorf("Decode(%q).Fields = %q, want none", line, got.Fields)
		}
	}
}

// TestUsers verifies roster payload splitting.
func TestUsers(t *testing.T) {
	if got := UserList(nil).Users(); len(got) != 0 {
		t.Errorf("empty roster Users() = %q", got)
	}
	want := []string{"Alice", "Bob"}
	if got := Decode(Encode(UserList(want))).Users(); !reflect.DeepEqual(got, want) {
		t.Errorf("Users() = %q, want %q", got, want)
	}
}

// TestMessageText verifies the rendering used for logs.
func TestMessageText(t *testing.T) {
	text := Chat("Alice", "hello").Text()
	if !strings.HasSuffix(text, "Alice: hello") {
		t.Errorf("Text() = %q", text)
	}
	text = Join("Alice joined the chat").Text()
	if !strings.HasSuffix(text, "*** Alice joined the chat") {
		t.Errorf("Text() = %q", text)
	}
}
