package version

import "testing"

func TestShort(t *testing.T) {
	tests := []struct {
		info Info
		want string
	}{
		{Info{Version: "v1.0.0"}, "v1.0.0"},
		{Info{Version: "v1.0.0", Revision: "3f9a2c1d7e0b"}, "v1.0.0 (3f9a2c1d)"},
		{Info{Version: "dev", Revision: "abc", DirtyTree: true}, "dev (abc+dirty)"},
	}
	for _, tt := range tests {
		if got := tt.info.Short(); got != tt.want {
			t.Errorf("Short() = %q, want %q", got, tt.want)
		}
	}
}

func TestWarning(t *testing.T) {
	if w := (Info{Version: "dev"}).Warning(); w == "" {
		t.Error("dev build without revision should warn")
	}
	if w := (Info{Version: "v1.0.0", Revision: "abc"}).Warning(); w != "" {
		t.Errorf("clean release warned: %q", w)
	}
	if w := (Info{Version: "v1.0.0", Revision: "abc", DirtyTree: true}).Warning(); w == "" {
		t.Error("dirty tree should warn")
	}
}

func TestGet(t *testing.T) {
	info := Get()
	if info.Version != Version {
		t.Errorf("Version = %q, want %q", info.Version, Version)
	}
}
