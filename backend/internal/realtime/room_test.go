package realtime

import (
	"testing"

	"canvasServer/backend/internal/canvas"
)

func TestRoomID(t *testing.T) {
	if got := RoomID("d1", ""); got != "d1" {
		t.Fatalf("RoomID = %q, want %q", got, "d1")
	}
	if got := RoomID("d1", "tok"); got != "d1:tok" {
		t.Fatalf("RoomID = %q, want %q", got, "d1:tok")
	}
}

func TestCanSend(t *testing.T) {
	cases := []struct {
		name  string
		owner string
		user  string
		token string
		want  bool
	}{
		{"无 owner 任何人可发", "", "u2", "", true},
		{"owner 本人可发", "u1", "u1", "", true},
		{"非 owner 无令牌不可发", "u1", "u2", "", false},
		{"非 owner 有令牌可发", "u1", "u2", "tok", true},
	}
	for _, tc := range cases {
		doc := &canvas.Document{ID: "d1", OwnerID: tc.owner}
		if got := CanSend(doc, tc.user, tc.token); got != tc.want {
			t.Fatalf("%s: CanSend = %v, want %v", tc.name, got, tc.want)
		}
	}
	if CanSend(nil, "u1", "tok") {
		t.Fatalf("CanSend(nil doc) = true, want false")
	}
}

func TestMintSessionToken(t *testing.T) {
	a := MintSessionToken()
	b := MintSessionToken()
	if a == "" || b == "" {
		t.Fatalf("empty token")
	}
	if a == b {
		t.Fatalf("tokens not random: %q == %q", a, b)
	}
}
