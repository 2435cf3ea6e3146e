package rbac

import "testing"

func TestAtLeast(t *testing.T) {
	tests := []struct {
		name string
		role Role
		min  Role
		want bool
	}{
		{"owner over editor", RoleOwner, RoleEditor, true},
		{"owner over viewer", RoleOwner, RoleViewer, true},
		{"editor over viewer", RoleEditor, RoleViewer, true},
		{"editor at editor", RoleEditor, RoleEditor, true},
		{"viewer below editor", RoleViewer, RoleEditor, false},
		{"viewer below owner", RoleViewer, RoleOwner, false},
		{"editor below owner", RoleEditor, RoleOwner, false},
		{"unknown below viewer", Role("ghost"), RoleViewer, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.role.AtLeast(tt.min); got != tt.want {
				t.Errorf("%s.AtLeast(%s) = %v, want %v", tt.role, tt.min, got, tt.want)
			}
		})
	}
}

func TestAssignable(t *testing.T) {
	if !Assignable(RoleEditor) || !Assignable(RoleViewer) {
		t.Error("editor and viewer must be assignable")
	}
	if Assignable(RoleOwner) {
		t.Error("owner must not be assignable directly")
	}
	if Assignable(Role("admin")) {
		t.Error("unknown role must not be assignable")
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("owner") != RoleOwner {
		t.Errorf("Normalize(owner) = %v", Normalize("owner"))
	}
	if Normalize("nonsense") != RoleViewer {
		t.Errorf("Normalize(nonsense) = %v, want viewer", Normalize("nonsense"))
	}
}
