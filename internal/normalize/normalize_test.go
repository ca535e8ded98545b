package normalize

import "testing"

func TestEmail(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"Jane@Acme.ORG", "jane@acme.org", true},
		{"  bob@example.com  ", "bob@example.com", true},
		{"", "", false},
		{"   ", "", false},
		{"not-an-email", "", false},
	}

	for _, tt := range tests {
		got, ok := Email(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Email(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jane Doe", "jane doe"},
		{"  JANE   DOE  ", "jane doe"},
		{"José García", "jose garcia"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Name(tt.in); got != tt.want {
			t.Errorf("Name(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDomain(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"jane@acme.org", "acme.org", true},
		{"Jane@ACME.org", "acme.org", true},
		{"user@gmail.com", "", false},
		{"user@YAHOO.COM", "", false},
		{"broken", "", false},
		{"trailing@", "", false},
	}

	for _, tt := range tests {
		got, ok := Domain(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Domain(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestIsFreeDomain(t *testing.T) {
	if !IsFreeDomain("gmail.com") {
		t.Error("expected gmail.com to be a free domain")
	}
	if !IsFreeDomain("Hotmail.com") {
		t.Error("expected free domain check to be case-insensitive")
	}
	if IsFreeDomain("acme.org") {
		t.Error("did not expect acme.org to be a free domain")
	}
}
