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
		{name: "viewer generate", role: RoleViewer, action: ActionGenerate, allow: false},
		{name: "editor generate", role: RoleEditor, action: ActionGenerate, allow: true},
		{name: "editor publish", role: RoleEditor, action: ActionPublish, allow: true},
		{name: "editor admin", role: RoleEditor, action: ActionAdmin, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown role", role: Role("ghost"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("editor") != RoleEditor {
		t.Error("known role should pass through")
	}
	if Normalize("member") != RoleEditor {
		t.Error("member accounts should map to editor")
	}
	if Normalize("superuser") != RoleViewer {
		t.Error("unknown role should fall back to viewer")
	}
}
