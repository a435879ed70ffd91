package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer write", role: RoleViewer, action: ActionWrite, allow: false},
		{name: "editor write", role: RoleEditor, action: ActionWrite, allow: true},
		{name: "editor admin", role: RoleEditor, action: ActionAdmin, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "none read", role: RoleNone, action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestFromAccessLevel(t *testing.T) {
	cases := map[int]Role{
		0:  RoleNone,
		5:  RoleNone,
		10: RoleViewer,
		20: RoleViewer,
		30: RoleEditor,
		40: RoleAdmin,
		50: RoleAdmin,
	}
	for level, want := range cases {
		if got := FromAccessLevel(level); got != want {
			t.Fatalf("FromAccessLevel(%d) = %q, want %q", level, got, want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("editor") != RoleEditor || Normalize("owner") != RoleNone {
		t.Fatal("unexpected Normalize result")
	}
}
