package semver

import "testing"

func TestCheckCompatible(t *testing.T) {
	tests := []struct {
		name       string
		version    string
		constraint string
		want       bool
		wantErr    bool
	}{
		{"no constraint", "anything", "", true, false},
		{"major match", "0.3.34", "0", true, false},
		{"major mismatch", "1.0.0", "0", false, false},
		{"bare minimum met", "0.3.34", "0.3.0", true, false},
		{"bare minimum equal", "0.3.0", "0.3.0", true, false},
		{"bare minimum missed", "0.2.9", "0.3.0", false, false},
		{"caret", "0.3.34", "^0.3.0", true, false},
		{"caret excludes minor bump below 1", "0.4.0", "^0.3.0", false, false},
		{"tilde", "1.2.9", "~1.2.0", true, false},
		{"comparison range", "1.5.0", ">=1.0.0 <2.0.0", true, false},
		{"comparison range miss", "2.0.0", ">=1.0.0 <2.0.0", false, false},
		{"leading v", "v1.2.3", ">=1.0.0", true, false},
		{"bad version", "not-a-version", ">=1.0.0", false, true},
		{"bad constraint", "1.0.0", ">>nope", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CheckCompatible(tt.version, tt.constraint)
			if (err != nil) != tt.wantErr {
				t.Fatalf("semver:compat_test - err = %v, wantErr %t", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("semver:compat_test - CheckCompatible(%q, %q) = %t, want %t", tt.version, tt.constraint, got, tt.want)
			}
		})
	}
}

func TestValidateConstraint(t *testing.T) {
	for _, c := range []string{"", "0", "0.3.0", "^1.2.0", ">=1.0.0 <2.0.0"} {
		if err := ValidateConstraint(c); err != nil {
			t.Errorf("semver:compat_test - %q: %v", c, err)
		}
	}
	if err := ValidateConstraint(">>nope"); err == nil {
		t.Error("semver:compat_test - expected error for invalid constraint")
	}
}

func TestIsMajorOnly(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"3", true},
		{"10", true},
		{"3.2", false},
		{"^3", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsMajorOnly(tt.in); got != tt.want {
			t.Errorf("semver:compat_test - IsMajorOnly(%q) = %t, want %t", tt.in, got, tt.want)
		}
	}
}
